//go:build !linux || baremetal

package thread

import "errors"

// Realtime is only supported on Linux.
func Realtime() error {
	return errors.New("thread: realtime scheduling not supported on this platform")
}
