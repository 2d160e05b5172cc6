package scenario

import (
	"fmt"
	"sort"

	"github.com/rocketbitz/portals4-go/ptl"
)

var meOptions = map[string]uint32{
	"op_put":                 ptl.MEOpPut,
	"op_get":                 ptl.MEOpGet,
	"use_once":               ptl.MEUseOnce,
	"ack_disable":            ptl.MEAckDisable,
	"manage_local":           ptl.MEManageLocal,
	"no_truncate":            ptl.MENoTruncate,
	"may_align":              ptl.MEMayAlign,
	"is_accessible":          ptl.MEIsAccessible,
	"unexpected_hdr_disable": ptl.MEUnexpectedHdrDisable,
	"event_comm_disable":     ptl.MEEventCommDisable,
	"event_success_disable":  ptl.MEEventSuccessDisable,
	"event_over_disable":     ptl.MEEventOverDisable,
	"event_link_disable":     ptl.MEEventLinkDisable,
	"event_unlink_disable":   ptl.MEEventUnlinkDisable,
	"event_flowctrl_disable": ptl.MEEventFlowCtrlDisable,
	"event_ct_comm":          ptl.MEEventCTComm,
	"event_ct_overflow":      ptl.MEEventCTOverflow,
	"event_ct_bytes":         ptl.MEEventCTBytes,
}

var mdOptions = map[string]uint32{
	"event_success_disable": ptl.MDEventSuccessDisable,
	"event_send_disable":    ptl.MDEventSendDisable,
	"event_ct_send":         ptl.MDEventCTSend,
	"event_ct_reply":        ptl.MDEventCTReply,
	"event_ct_ack":          ptl.MDEventCTAck,
	"event_ct_bytes":        ptl.MDEventCTBytes,
	"unordered":             ptl.MDUnordered,
	"volatile":              ptl.MDVolatile,
}

var ptOptions = map[string]uint32{
	"only_use_once":  ptl.PTOnlyUseOnce,
	"only_truncate":  ptl.PTOnlyTruncate,
	"flow_ctrl":      ptl.PTFlowCtrl,
	"alloc_disabled": ptl.PTAllocDisabled,
}

var ackKinds = map[string]int32{
	"":       ptl.AckReq,
	"ack":    ptl.AckReq,
	"ct_ack": ptl.CTAckReq,
	"oc_ack": ptl.OCAckReq,
	"none":   ptl.NoAckReq,
}

var registers = map[string]int32{
	"drop_count":            ptl.SRDropCount,
	"permission_violations": ptl.SRPermissionViolations,
	"operation_violations":  ptl.SROperationViolations,
}

// combine ORs the named options of one table.
func combine(table map[string]uint32, names []string, kind string) (uint32, error) {
	var out uint32
	for _, name := range names {
		v, ok := table[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown %s option %q (known: %v)", ErrInvalid, kind, name, keys(table))
		}
		out |= v
	}
	return out, nil
}

func keys(table map[string]uint32) []string {
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func listOf(name string) (int32, error) {
	switch name {
	case "", "priority":
		return ptl.PriorityList, nil
	case "overflow":
		return ptl.OverflowList, nil
	}
	return 0, fmt.Errorf("%w: unknown list %q", ErrInvalid, name)
}
