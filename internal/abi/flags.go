package abi

// NI options.
const (
	NIPhysical   uint32 = 0x1 << 0
	NIMatching   uint32 = 0x1 << 1
	NILogical    uint32 = 0x1 << 2
	NINoMatching uint32 = 0x1 << 3
)

// NI limit features.
const (
	TargetBindInaccessible uint32 = 0x1
	TotalDataOrdering      uint32 = 0x2
)

// Portal table entry options.
const (
	PTOnlyUseOnce   uint32 = 1
	PTOnlyTruncate  uint32 = 2
	PTFlowCtrl      uint32 = 4
	PTAllocDisabled uint32 = 8
)

// Acknowledgement requests.
const (
	NoAckReq int32 = 0x0
	CTAckReq int32 = 0x1
	OCAckReq int32 = 0x2
	AckReq   int32 = 0x3
)

// List entry / match entry options. The LE_* names share these values.
const (
	MEEventCommDisable     uint32 = 0x1
	MEEventSuccessDisable  uint32 = 0x2
	MEEventOverDisable     uint32 = 0x4
	MEEventLinkDisable     uint32 = 0x8
	MEEventCTBytes         uint32 = 0x10
	MEEventCTOverflow      uint32 = 0x20
	MEEventCTComm          uint32 = 0x40
	MEOpPut                uint32 = 0x100
	MEOpGet                uint32 = 0x200
	MEUseOnce              uint32 = 0x400
	MEAckDisable           uint32 = 0x800
	MEMayAlign             uint32 = 0x1000
	MEEventUnlinkDisable   uint32 = 0x2000
	MEManageLocal          uint32 = 0x4000
	MENoTruncate           uint32 = 0x8000
	MEUnexpectedHdrDisable uint32 = 0x10000
	MEEventFlowCtrlDisable uint32 = 0x20000
	MEIsAccessible         uint32 = 0x40000
	MELocalIncUHRLength    uint32 = 0x100000
)

// MEUHLocalOffsetIncManipulated is the BXI extension flag that lets an
// unexpected header advance a locally managed offset.
const MEUHLocalOffsetIncManipulated uint32 = 0x200000

// IOVec marks a region given as a scatter/gather list.
const IOVec uint32 = 0x80

// Memory descriptor options.
const (
	MDEventSuccessDisable uint32 = 0x1
	MDEventCTSend         uint32 = 0x2
	MDEventCTReply        uint32 = 0x4
	MDEventCTAck          uint32 = 0x8
	MDEventCTBytes        uint32 = 0x10
	MDUnordered           uint32 = 0x20
	MDEventSendDisable    uint32 = 0x40
	MDVolatile            uint32 = 0x100
	MDUnreliable          uint32 = 0x200
)

// Search operations.
const (
	SearchOnly   uint32 = 0x0
	SearchDelete uint32 = 0x1
)

// List selectors.
const (
	PriorityList int32 = 0x0
	OverflowList int32 = 0x1
)

// Status register indexes.
const (
	SRDropCount int32 = iota
	SRPermissionViolations
	SROperationViolations
)

// Identity and sizing constants.
const (
	TimeForever  int64  = -1
	IfaceDefault int32  = 0
	PIDMax       uint32 = (1 << 12) - 1
	PTAny        uint32 = ^uint32(0)
	PIDAny       uint32 = 0x0
	UIDAny       int32  = -1
	NIDAny       uint32 = 0x0
	RankAny      uint32 = 0x7fffff
)

// EvStrSize bounds the formatted event string, terminator included.
const EvStrSize = 256

// String conversion selectors.
const (
	StrError int32 = iota
	StrEvent
	StrFailType
)
