//go:build !linux

package osthread

import (
	"errors"
	"runtime"
)

// Current returns 0: thread ids are not exposed on this platform.
func Current() int {
	return 0
}

// Pin is not available outside Linux.
func Pin(int) error {
	return errors.ErrUnsupported
}

// SetName is a no-op outside Linux.
func SetName(string) error {
	return nil
}

// Priority is not available outside Linux.
func Priority(int) (int, error) {
	return 0, errors.ErrUnsupported
}

// SetPriority is not available outside Linux.
func SetPriority(int, int) error {
	return errors.ErrUnsupported
}

// NumCPU returns the number of logical CPUs available.
func NumCPU() int {
	return runtime.NumCPU()
}
