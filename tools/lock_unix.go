//go:build unix

package tools

import (
	"errors"
	"syscall"
)

// isProcessRunning probes pid with signal 0. EPERM still means the process exists.
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
