package ptl

import "github.com/rocketbitz/portals4-go/internal/abi"

// NI options.
const (
	NIPhysical   = abi.NIPhysical
	NIMatching   = abi.NIMatching
	NILogical    = abi.NILogical
	NINoMatching = abi.NINoMatching
)

// Limit features.
const (
	TargetBindInaccessible = abi.TargetBindInaccessible
	TotalDataOrdering      = abi.TotalDataOrdering
)

// Portal table entry options.
const (
	PTOnlyUseOnce   = abi.PTOnlyUseOnce
	PTOnlyTruncate  = abi.PTOnlyTruncate
	PTFlowCtrl      = abi.PTFlowCtrl
	PTAllocDisabled = abi.PTAllocDisabled
)

// Acknowledgement requests.
const (
	NoAckReq = abi.NoAckReq
	CTAckReq = abi.CTAckReq
	OCAckReq = abi.OCAckReq
	AckReq   = abi.AckReq
)

// ME options. LE entries accept the same values.
const (
	MEEventCommDisable     = abi.MEEventCommDisable
	MEEventSuccessDisable  = abi.MEEventSuccessDisable
	MEEventOverDisable     = abi.MEEventOverDisable
	MEEventLinkDisable     = abi.MEEventLinkDisable
	MEEventCTBytes         = abi.MEEventCTBytes
	MEEventCTOverflow      = abi.MEEventCTOverflow
	MEEventCTComm          = abi.MEEventCTComm
	MEOpPut                = abi.MEOpPut
	MEOpGet                = abi.MEOpGet
	MEUseOnce              = abi.MEUseOnce
	MEAckDisable           = abi.MEAckDisable
	MEMayAlign             = abi.MEMayAlign
	MEEventUnlinkDisable   = abi.MEEventUnlinkDisable
	MEManageLocal          = abi.MEManageLocal
	MENoTruncate           = abi.MENoTruncate
	MEUnexpectedHdrDisable = abi.MEUnexpectedHdrDisable
	MEEventFlowCtrlDisable = abi.MEEventFlowCtrlDisable
	MEIsAccessible         = abi.MEIsAccessible
	MELocalIncUHRLength    = abi.MELocalIncUHRLength
)

// IOVec marks MD and ME memory given as a scatter/gather list.
const IOVec = abi.IOVec

// MD options.
const (
	MDEventSuccessDisable = abi.MDEventSuccessDisable
	MDEventCTSend         = abi.MDEventCTSend
	MDEventCTReply        = abi.MDEventCTReply
	MDEventCTAck          = abi.MDEventCTAck
	MDEventCTBytes        = abi.MDEventCTBytes
	MDUnordered           = abi.MDUnordered
	MDEventSendDisable    = abi.MDEventSendDisable
	MDVolatile            = abi.MDVolatile
	MDUnreliable          = abi.MDUnreliable
)

// Search operations.
const (
	SearchOnly   = abi.SearchOnly
	SearchDelete = abi.SearchDelete
)

// List selectors.
const (
	PriorityList = abi.PriorityList
	OverflowList = abi.OverflowList
)

// Status registers.
const (
	SRDropCount            = abi.SRDropCount
	SRPermissionViolations = abi.SRPermissionViolations
	SROperationViolations  = abi.SROperationViolations
)

// Identity wildcards and sizing.
const (
	IfaceDefault = abi.IfaceDefault
	PIDMax       = abi.PIDMax
	PTAny        = abi.PTAny
	PIDAny       = abi.PIDAny
	UIDAny       = abi.UIDAny
	NIDAny       = abi.NIDAny
	RankAny      = abi.RankAny
	EvStrSize    = abi.EvStrSize
)

// String conversion selectors for ToStr.
const (
	StrError    = abi.StrError
	StrEvent    = abi.StrEvent
	StrFailType = abi.StrFailType
)

const (
	niKindMask = NIPhysical | NILogical | NIMatching | NINoMatching

	meOptionMask = MEEventCommDisable | MEEventSuccessDisable | MEEventOverDisable |
		MEEventLinkDisable | MEEventCTBytes | MEEventCTOverflow | MEEventCTComm |
		MEOpPut | MEOpGet | MEUseOnce | MEAckDisable | MEMayAlign | MEEventUnlinkDisable |
		MEManageLocal | MENoTruncate | MEUnexpectedHdrDisable | MEEventFlowCtrlDisable |
		MEIsAccessible | MELocalIncUHRLength | abi.MEUHLocalOffsetIncManipulated | IOVec

	mdOptionMask = MDEventSuccessDisable | MDEventCTSend | MDEventCTReply | MDEventCTAck |
		MDEventCTBytes | MDUnordered | MDEventSendDisable | MDVolatile | MDUnreliable | IOVec

	ptOptionMask = PTOnlyUseOnce | PTOnlyTruncate | PTFlowCtrl | PTAllocDisabled
)
