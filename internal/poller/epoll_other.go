//go:build !linux

package poller

func New() (Poller, error) {
	return nil, ErrNotSupported
}
