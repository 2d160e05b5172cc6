package abi

import "fmt"

// EventKind enumerates ptl_event_kind_t.
type EventKind int32

const (
	EventGet EventKind = iota
	EventGetOverflow
	EventPut
	EventPutOverflow
	EventAtomic
	EventAtomicOverflow
	EventFetchAtomic
	EventFetchAtomicOverflow
	EventReply
	EventSend
	EventAck
	EventPTDisabled
	EventAutoUnlink
	EventAutoFree
	EventSearch
	EventLink
)

var eventNames = [...]string{
	EventGet:                 "PTL_EVENT_GET",
	EventGetOverflow:         "PTL_EVENT_GET_OVERFLOW",
	EventPut:                 "PTL_EVENT_PUT",
	EventPutOverflow:         "PTL_EVENT_PUT_OVERFLOW",
	EventAtomic:              "PTL_EVENT_ATOMIC",
	EventAtomicOverflow:      "PTL_EVENT_ATOMIC_OVERFLOW",
	EventFetchAtomic:         "PTL_EVENT_FETCH_ATOMIC",
	EventFetchAtomicOverflow: "PTL_EVENT_FETCH_ATOMIC_OVERFLOW",
	EventReply:               "PTL_EVENT_REPLY",
	EventSend:                "PTL_EVENT_SEND",
	EventAck:                 "PTL_EVENT_ACK",
	EventPTDisabled:          "PTL_EVENT_PT_DISABLED",
	EventAutoUnlink:          "PTL_EVENT_AUTO_UNLINK",
	EventAutoFree:            "PTL_EVENT_AUTO_FREE",
	EventSearch:              "PTL_EVENT_SEARCH",
	EventLink:                "PTL_EVENT_LINK",
}

// EventKinds lists every defined event kind.
func EventKinds() []EventKind {
	kinds := make([]EventKind, len(eventNames))
	for i := range eventNames {
		kinds[i] = EventKind(i)
	}
	return kinds
}

// Valid reports whether k is a defined event kind.
func (k EventKind) Valid() bool {
	return k >= 0 && int(k) < len(eventNames)
}

func (k EventKind) String() string {
	if k.Valid() {
		return eventNames[k]
	}
	return fmt.Sprintf("PTL_EVENT_UNKNOWN(%d)", int32(k))
}

// Overflow maps a communication event to its overflow-list counterpart.
func (k EventKind) Overflow() EventKind {
	switch k {
	case EventGet, EventPut, EventAtomic, EventFetchAtomic:
		return k + 1
	default:
		return k
	}
}

// IsTarget reports whether k is generated on the target side of an operation.
func (k EventKind) IsTarget() bool {
	switch k {
	case EventSend, EventAck, EventReply:
		return false
	default:
		return k.Valid()
	}
}

// NIFail enumerates ptl_ni_fail_t. Values are carried inside events, never
// returned from calls.
type NIFail int32

const (
	NIOK            NIFail = 0x0
	NIUndeliverable NIFail = 0x6
	NIPTDisabled    NIFail = 0x7
	NIDropped       NIFail = 0x8
	NIPermViolation NIFail = 0x9
	NIOpViolation   NIFail = 0xA
	NISegv          NIFail = 0xB
	NINoMatch       NIFail = 0xC
	// NIArgInvalid is the BXI extension. The header aliases it to
	// PTL_ARG_INVALID, which collides with PTL_NI_PT_DISABLED, so it carries
	// its own value here.
	NIArgInvalid NIFail = 0xD
)

var niFailNames = map[NIFail]string{
	NIOK:            "PTL_NI_OK",
	NIUndeliverable: "PTL_NI_UNDELIVERABLE",
	NIPTDisabled:    "PTL_NI_PT_DISABLED",
	NIDropped:       "PTL_NI_DROPPED",
	NIPermViolation: "PTL_NI_PERM_VIOLATION",
	NIOpViolation:   "PTL_NI_OP_VIOLATION",
	NISegv:          "PTL_NI_SEGV",
	NINoMatch:       "PTL_NI_NO_MATCH",
	NIArgInvalid:    "PTL_NI_ARG_INVALID",
}

// NIFails lists every defined failure type.
func NIFails() []NIFail {
	return []NIFail{NIOK, NIUndeliverable, NIPTDisabled, NIDropped, NIPermViolation,
		NIOpViolation, NISegv, NINoMatch, NIArgInvalid}
}

// Valid reports whether f is a defined failure type.
func (f NIFail) Valid() bool {
	_, ok := niFailNames[f]
	return ok
}

func (f NIFail) String() string {
	if name, ok := niFailNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PTL_NI_UNKNOWN(%d)", int32(f))
}
