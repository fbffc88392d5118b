package errorutil

import (
	"errors"
	"os"
)

// IsTimeoutErr returns true if the error is a timeout error.
func IsTimeoutErr(err error) bool {
	var e interface{ Timeout() bool }
	return errors.As(err, &e) && e.Timeout()
}

// SyscallName returns the name of the failed system call wrapped in err, if any.
// For example, a UDP dial that failed to bind reports "bind".
func SyscallName(err error) (string, bool) {
	var e *os.SyscallError
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Syscall, true
}
