package ptl

import (
	"time"

	"github.com/rocketbitz/portals4-go/internal/abi"
)

// EventKind re-exports abi.EventKind for consumers of the public API.
type EventKind = abi.EventKind

const (
	EventGet                 = abi.EventGet
	EventGetOverflow         = abi.EventGetOverflow
	EventPut                 = abi.EventPut
	EventPutOverflow         = abi.EventPutOverflow
	EventAtomic              = abi.EventAtomic
	EventAtomicOverflow      = abi.EventAtomicOverflow
	EventFetchAtomic         = abi.EventFetchAtomic
	EventFetchAtomicOverflow = abi.EventFetchAtomicOverflow
	EventReply               = abi.EventReply
	EventSend                = abi.EventSend
	EventAck                 = abi.EventAck
	EventPTDisabled          = abi.EventPTDisabled
	EventAutoUnlink          = abi.EventAutoUnlink
	EventAutoFree            = abi.EventAutoFree
	EventSearch              = abi.EventSearch
	EventLink                = abi.EventLink
)

// NIFail re-exports abi.NIFail. Failure types only travel inside events.
type NIFail = abi.NIFail

const (
	NIOK            = abi.NIOK
	NIUndeliverable = abi.NIUndeliverable
	NIPTDisabled    = abi.NIPTDisabled
	NIDropped       = abi.NIDropped
	NIPermViolation = abi.NIPermViolation
	NIOpViolation   = abi.NIOpViolation
	NISegv          = abi.NISegv
	NINoMatch       = abi.NINoMatch
	NIArgInvalid    = abi.NIArgInvalid
)

// Op re-exports abi.Op for atomic operations.
type Op = abi.Op

const (
	OpMin     = abi.OpMin
	OpMax     = abi.OpMax
	OpSum     = abi.OpSum
	OpProd    = abi.OpProd
	OpLOr     = abi.OpLOr
	OpLAnd    = abi.OpLAnd
	OpLXor    = abi.OpLXor
	OpBOr     = abi.OpBOr
	OpBAnd    = abi.OpBAnd
	OpBXor    = abi.OpBXor
	OpSwap    = abi.OpSwap
	OpCSwapGT = abi.OpCSwapGT
	OpCSwapLT = abi.OpCSwapLT
	OpCSwapGE = abi.OpCSwapGE
	OpCSwapLE = abi.OpCSwapLE
	OpCSwap   = abi.OpCSwap
	OpCSwapNE = abi.OpCSwapNE
	OpMSwap   = abi.OpMSwap
)

// ParseOp resolves a PTL_* operation name such as "PTL_SUM".
func ParseOp(name string) (Op, bool) { return abi.ParseOp(name) }

// Datatype re-exports abi.Datatype for atomic operations.
type Datatype = abi.Datatype

// ParseDatatype resolves a PTL_* datatype name such as "PTL_UINT64_T".
func ParseDatatype(name string) (Datatype, bool) { return abi.ParseDatatype(name) }

const (
	Int8              = abi.Int8
	Uint8             = abi.Uint8
	Int16             = abi.Int16
	Uint16            = abi.Uint16
	Int32             = abi.Int32
	Uint32            = abi.Uint32
	Int64             = abi.Int64
	Uint64            = abi.Uint64
	Float             = abi.Float
	FloatComplex      = abi.FloatComplex
	Double            = abi.Double
	DoubleComplex     = abi.DoubleComplex
	LongDouble        = abi.LongDouble
	LongDoubleComplex = abi.LongDoubleComplex
)

// TimeForever disables the timeout of EQPoll and CTPoll.
const TimeForever time.Duration = -1

// Process identifies a peer. Physical interfaces address peers by NID and
// PID; logical interfaces use Rank and ignore the other fields.
type Process struct {
	NID  uint32
	PID  uint32
	Rank uint32
}

// Event is an immutable record of one completion or failure.
type Event struct {
	// Start references the bytes the operation touched in the entry's memory.
	// It aliases that memory when the range is contiguous.
	Start           []byte
	UserPtr         any
	HdrData         uint64
	MatchBits       uint64
	RLength         uint64
	MLength         uint64
	RemoteOffset    uint64
	UID             uint32
	Initiator       Process
	Type            EventKind
	PtlList         int32
	PTIndex         uint32
	NIFailType      NIFail
	AtomicOperation Op
	AtomicType      Datatype
}

// CTEvent is the success/failure pair of a counting event.
type CTEvent struct {
	Success uint64
	Failure uint64
}

// ME describes a matching list entry. Exactly one of Start or IOVecs
// describes the memory; IOVecs is used when Options carries IOVec.
type ME struct {
	Start      []byte
	IOVecs     [][]byte
	CT         Handle
	UID        int32
	Options    uint32
	MatchID    Process
	MatchBits  uint64
	IgnoreBits uint64
	MinFree    uint64
}

// LE describes a list entry on a non-matching interface.
type LE struct {
	Start   []byte
	IOVecs  [][]byte
	CT      Handle
	UID     int32
	Options uint32
}

func (le *LE) asME() *ME {
	return &ME{
		Start:      le.Start,
		IOVecs:     le.IOVecs,
		CT:         le.CT,
		UID:        le.UID,
		Options:    le.Options,
		IgnoreBits: ^uint64(0),
		MatchID:    Process{NID: NIDAny, PID: PIDAny, Rank: RankAny},
	}
}

// MD describes a memory descriptor.
type MD struct {
	Start   []byte
	IOVecs  [][]byte
	Options uint32
	EQ      Handle
	CT      Handle
}
