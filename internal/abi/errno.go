package abi

import "fmt"

// Errno represents a Portals return code. Zero is success; failures are drawn
// from the low PTL_NI_* compatible range and the extended range starting at 32.
type Errno int32

// Return codes mirrored from portals4.h.
const (
	OK            Errno = 0x0
	Fail          Errno = 0x6
	ArgInvalid    Errno = 0x7
	InUse         Errno = 0x8
	CTNoneReached Errno = 32
	EQDropped     Errno = 33
	EQEmpty       Errno = 34
	Ignored       Errno = 36
	Interrupted   Errno = 37
	ListTooLong   Errno = 38
	NoInit        Errno = 39
	NoSpace       Errno = 40
	PIDInUse      Errno = 41
	PTFull        Errno = 42
	PTEQNeeded    Errno = 43
	PTInUse       Errno = 44
	Aborted       Errno = 47
)

var errnoNames = map[Errno]string{
	OK:            "PTL_OK",
	Fail:          "PTL_FAIL",
	ArgInvalid:    "PTL_ARG_INVALID",
	InUse:         "PTL_IN_USE",
	CTNoneReached: "PTL_CT_NONE_REACHED",
	EQDropped:     "PTL_EQ_DROPPED",
	EQEmpty:       "PTL_EQ_EMPTY",
	Ignored:       "PTL_IGNORED",
	Interrupted:   "PTL_INTERRUPTED",
	ListTooLong:   "PTL_LIST_TOO_LONG",
	NoInit:        "PTL_NO_INIT",
	NoSpace:       "PTL_NO_SPACE",
	PIDInUse:      "PTL_PID_IN_USE",
	PTFull:        "PTL_PT_FULL",
	PTEQNeeded:    "PTL_PT_EQ_NEEDED",
	PTInUse:       "PTL_PT_IN_USE",
	Aborted:       "PTL_ABORTED",
}

var errnoMessages = map[Errno]string{
	OK:            "success",
	Fail:          "operation failed",
	ArgInvalid:    "invalid argument",
	InUse:         "resource in use",
	CTNoneReached: "no counting event reached its test value",
	EQDropped:     "event queue dropped events",
	EQEmpty:       "event queue is empty",
	Ignored:       "request ignored",
	Interrupted:   "wait interrupted",
	ListTooLong:   "list too long",
	NoInit:        "interface not initialized",
	NoSpace:       "insufficient resources",
	PIDInUse:      "pid already in use",
	PTFull:        "portal table full",
	PTEQNeeded:    "portal table entry requires an event queue",
	PTInUse:       "portal table entry in use",
	Aborted:       "operation aborted",
}

// Errnos lists every defined return code in ascending order.
func Errnos() []Errno {
	return []Errno{OK, Fail, ArgInvalid, InUse, CTNoneReached, EQDropped, EQEmpty, Ignored,
		Interrupted, ListTooLong, NoInit, NoSpace, PIDInUse, PTFull, PTEQNeeded, PTInUse, Aborted}
}

// Valid reports whether e is one of the defined return codes.
func (e Errno) Valid() bool {
	_, ok := errnoNames[e]
	return ok
}

// Name returns the PTL_* identifier for the code.
func (e Errno) Name() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("PTL_UNKNOWN(%d)", int32(e))
}

// Error returns the human-readable message for the code.
func (e Errno) Error() string {
	return e.String()
}

// String returns "PTL_NAME: message".
func (e Errno) String() string {
	msg, ok := errnoMessages[e]
	if !ok {
		return e.Name()
	}
	return e.Name() + ": " + msg
}

// WithOp adds operation context to the provided Errno.
func (e Errno) WithOp(op string) error {
	if op == "" {
		return e
	}
	return fmt.Errorf("%s: %w", op, e)
}
