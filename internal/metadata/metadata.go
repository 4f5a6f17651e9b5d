package metadata

import (
	"fmt"
	"runtime"
)

var (
	Version    = "freshest"
	CommitHash = "n/a"
	BuildTime  = "n/a"
)

// CTCPVersion is the answer to a CTCP VERSION request.
func CTCPVersion() string {
	return fmt.Sprintf("tinyirc %s (%s) %s/%s", Version, CommitHash, runtime.GOOS, runtime.GOARCH)
}
