package primitive

import "errors"

// Status errors shared by every package in this module. Callers match them
// with errors.Is; operations wrap them with context.
var (
	// ErrTimedOut means the wait budget elapsed before the resource became
	// available. With a NoWait budget it means "not available right now".
	ErrTimedOut = errors.New("timed out")

	// ErrBadParameter means an argument was out of range or an object was
	// used in a state that forbids the call.
	ErrBadParameter = errors.New("bad parameter")

	// ErrOutOfMemory means a requested size could not be represented or
	// allocated.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrFailed is a generic failure, usually wrapping a user callback error.
	ErrFailed = errors.New("failed")

	// ErrClosed means the object was closed while the caller waited on it.
	ErrClosed = errors.New("closed")
)
