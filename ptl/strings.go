package ptl

import (
	"fmt"
	"math"
	"strings"

	"github.com/rocketbitz/portals4-go/internal/abi"
)

// ToStr names a return code, event kind or failure type, as selected by
// which. Undefined values render with their number; an unknown selector
// yields the empty string.
func ToStr(code int, which int32) string {
	if code < math.MinInt32 || code > math.MaxInt32 {
		switch which {
		case StrError:
			return fmt.Sprintf("PTL_UNKNOWN(%d)", code)
		case StrEvent:
			return fmt.Sprintf("PTL_EVENT_UNKNOWN(%d)", code)
		case StrFailType:
			return fmt.Sprintf("PTL_NI_UNKNOWN(%d)", code)
		default:
			return ""
		}
	}
	switch which {
	case StrError:
		return abi.Errno(code).Name()
	case StrEvent:
		return abi.EventKind(code).String()
	case StrFailType:
		return abi.NIFail(code).String()
	default:
		return ""
	}
}

// EvToStr renders ev on one line of at most EvStrSize-1 bytes. niOptions
// selects how the initiator is printed: rank on logical interfaces, nid/pid
// on physical ones.
func EvToStr(niOptions uint32, ev *Event) string {
	if ev == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(ev.Type.String())
	if ev.NIFailType != NIOK {
		fmt.Fprintf(&b, " fail=%s", ev.NIFailType)
	}
	switch {
	case ev.Type == EventLink || ev.Type == EventAutoUnlink || ev.Type == EventAutoFree || ev.Type == EventPTDisabled:
		fmt.Fprintf(&b, " pt=%d list=%d", ev.PTIndex, ev.PtlList)
	case ev.Type.Valid() && !ev.Type.IsTarget():
		fmt.Fprintf(&b, " pt=%d mlength=%d offset=%d", ev.PTIndex, ev.MLength, ev.RemoteOffset)
	default:
		fmt.Fprintf(&b, " pt=%d list=%d match=0x%x rlength=%d mlength=%d offset=%d hdr=0x%x uid=%d",
			ev.PTIndex, ev.PtlList, ev.MatchBits, ev.RLength, ev.MLength, ev.RemoteOffset, ev.HdrData, ev.UID)
	}
	if ev.Type != EventLink && ev.Type != EventAutoUnlink && ev.Type != EventAutoFree {
		if niOptions&NILogical != 0 {
			fmt.Fprintf(&b, " rank=%d", ev.Initiator.Rank)
		} else {
			fmt.Fprintf(&b, " nid=%d pid=%d", ev.Initiator.NID, ev.Initiator.PID)
		}
	}
	if isAtomicEvent(ev.Type) {
		fmt.Fprintf(&b, " op=%s type=%s", ev.AtomicOperation, ev.AtomicType)
	}
	s := b.String()
	if len(s) > EvStrSize-1 {
		s = s[:EvStrSize-1]
	}
	return s
}

func isAtomicEvent(k EventKind) bool {
	switch k {
	case EventAtomic, EventAtomicOverflow, EventFetchAtomic, EventFetchAtomicOverflow:
		return true
	}
	return false
}
