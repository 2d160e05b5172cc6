package ptl

import (
	"context"
	"errors"

	"github.com/rocketbitz/portals4-go/internal/abi"
)

// Errno re-exports the Portals return code type for consumers of the ptl package.
type Errno = abi.Errno

// Return codes. Every error returned by this package either is one of these
// values or wraps one, so errors.Is can be used to classify failures.
const (
	ErrFail          = abi.Fail
	ErrArgInvalid    = abi.ArgInvalid
	ErrInUse         = abi.InUse
	ErrCTNoneReached = abi.CTNoneReached
	ErrEQDropped     = abi.EQDropped
	ErrEQEmpty       = abi.EQEmpty
	ErrIgnored       = abi.Ignored
	ErrInterrupted   = abi.Interrupted
	ErrListTooLong   = abi.ListTooLong
	ErrNoInit        = abi.NoInit
	ErrNoSpace       = abi.NoSpace
	ErrPIDInUse      = abi.PIDInUse
	ErrPTFull        = abi.PTFull
	ErrPTEQNeeded    = abi.PTEQNeeded
	ErrPTInUse       = abi.PTInUse
	ErrAborted       = abi.Aborted
)

// ErrInvalidHandle reports a nil, stale, or mismatched handle. It matches
// ErrArgInvalid under errors.Is.
type ErrInvalidHandle struct {
	Resource string
}

func (e ErrInvalidHandle) Error() string {
	return "invalid or closed " + e.Resource + " handle"
}

// Is lets ErrInvalidHandle satisfy errors.Is(err, ErrArgInvalid).
func (e ErrInvalidHandle) Is(target error) bool {
	return target == ErrArgInvalid
}

// ReturnCode converts err into the integer return convention: zero on success,
// the wrapped Errno when present, and PTL_FAIL for foreign errors.
func ReturnCode(err error) int {
	if err == nil {
		return int(abi.OK)
	}
	var code Errno
	if errors.As(err, &code) {
		return int(code)
	}
	var invalid ErrInvalidHandle
	if errors.As(err, &invalid) {
		return int(ErrArgInvalid)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return int(ErrInterrupted)
	}
	return int(ErrFail)
}
