package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/labi-le/tinyirc/pkg/id"
	"github.com/nightlyone/lockfile"
	"github.com/rs/zerolog"
)

var (
	ErrCannotLock     = errors.New("cannot get locked process: %s")
	ErrCannotUnlock   = errors.New("cannot unlock process: %s")
	ErrAlreadyRunning = errors.New("tinyirc is already connected as this identity. pid %d")
)

// Name derives the lock file name for one identity on one network.
func Name(host string, port uint16, nick string) string {
	return fmt.Sprintf("tinyirc-%016x.lck", id.Hash(host, fmt.Sprint(port), nick))
}

// Must takes the lock or exits; the returned func releases it.
func Must(logger zerolog.Logger, name string) func() {
	lock, err := lockfile.New(filepath.Join(os.TempDir(), name))
	if err != nil {
		logger.Fatal().Msgf(ErrCannotLock.Error(), err)
	}

	if lockErr := lock.TryLock(); lockErr != nil {
		owner, err := lock.GetOwner()
		if err != nil {
			logger.Fatal().Msgf(ErrCannotLock.Error(), err)
		}
		logger.Fatal().Msgf(ErrAlreadyRunning.Error(), owner.Pid)
	}

	logger.Trace().Str("file", string(lock)).Msg("instance lock taken")

	return func() {
		Unlock(lock, logger)
	}
}

func Unlock(lock lockfile.Lockfile, l zerolog.Logger) {
	if err := lock.Unlock(); err != nil {
		l.Error().Msgf(ErrCannotUnlock.Error(), err)
	}
}
