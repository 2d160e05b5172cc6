package ptl

import (
	"fmt"

	"go.uber.org/zap"
)

// entry is a linked ME or LE.
type entry struct {
	h       Handle
	pt      *portal
	list    int32
	me      ME
	region  region
	ct      *counter
	userPtr any
	offset  uint64
	linked  bool
	headers int
	// zombie entries were unlinked while unexpected headers still pointed
	// into their memory; they are released with the last header.
	zombie bool
}

func (e *entry) has(opt uint32) bool {
	return e.me.Options&opt != 0
}

// MEAppend links a matching entry onto the priority or overflow list of a
// portal on a matching interface. Appending to the priority list first
// claims matching unexpected headers in arrival order; a use-once entry that
// claims one is consumed without ever being linked.
func (r *Runtime) MEAppend(ni Handle, ptIndex uint32, me *ME, list int32, userPtr any) (Handle, error) {
	return r.appendEntry(ni, ptIndex, me, list, userPtr, kindME, "PtlMEAppend")
}

// LEAppend links a list entry on a non-matching interface.
func (r *Runtime) LEAppend(ni Handle, ptIndex uint32, le *LE, list int32, userPtr any) (Handle, error) {
	if le == nil {
		return InvalidHandle, ErrArgInvalid.WithOp("PtlLEAppend")
	}
	return r.appendEntry(ni, ptIndex, le.asME(), list, userPtr, kindLE, "PtlLEAppend")
}

func (r *Runtime) appendEntry(ni Handle, ptIndex uint32, me *ME, list int32, userPtr any, kind handleKind, op string) (Handle, error) {
	n, err := r.niFor(ni, op)
	if err != nil {
		return InvalidHandle, err
	}
	if me == nil || (kind == kindME) != n.matching() {
		return InvalidHandle, ErrArgInvalid.WithOp(op)
	}
	if me.Options&^meOptionMask != 0 || (list != PriorityList && list != OverflowList) {
		return InvalidHandle, ErrArgInvalid.WithOp(op)
	}
	rgn, err := newRegion(me.Start, me.IOVecs, me.Options, n.limits.MaxIOVecs)
	if err != nil {
		return InvalidHandle, wrapOp(err, op)
	}
	ct, err := r.optionalCT(n, me.CT, op)
	if err != nil {
		return InvalidHandle, err
	}
	if err := lockRegion(r.mem, rgn); err != nil {
		return InvalidHandle, fmt.Errorf("%w: %v", ErrNoSpace.WithOp(op), err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	h, err := n.linkLocked(ptIndex, me, rgn, ct, list, userPtr, kind)
	if err != nil {
		unlockRegion(r.mem, rgn)
		return InvalidHandle, wrapOp(err, op)
	}
	return h, nil
}

func (n *netIface) linkLocked(ptIndex uint32, me *ME, rgn region, ct *counter, list int32, userPtr any, kind handleKind) (Handle, error) {
	p, err := n.portalLocked(ptIndex)
	if err != nil {
		return InvalidHandle, err
	}
	if p.options&PTOnlyUseOnce != 0 && me.Options&MEUseOnce == 0 {
		return InvalidHandle, ErrArgInvalid
	}
	if p.options&PTOnlyTruncate != 0 && me.Options&MENoTruncate != 0 {
		return InvalidHandle, ErrArgInvalid
	}
	lst := p.list(list)
	if len(*lst) >= n.limits.MaxListSize {
		return InvalidHandle, ErrListTooLong
	}
	e := &entry{pt: p, list: list, me: *me, region: rgn, ct: ct, userPtr: userPtr}
	ref, err := n.entries.Insert(e)
	if err != nil {
		return InvalidHandle, ErrNoSpace
	}
	e.h = n.child(kind, ref)

	if list == PriorityList && n.claimHeadersLocked(p, e) && e.has(MEUseOnce) {
		n.autoUnlinkLocked(e)
		return e.h, nil
	}
	*lst = append(*lst, e)
	e.linked = true
	if !e.has(MEEventLinkDisable) {
		p.eq.post(Event{
			UserPtr:    userPtr,
			Type:       EventLink,
			PtlList:    list,
			PTIndex:    p.index,
			NIFailType: NIOK,
		})
	}
	n.logger.Debug("entry linked",
		zap.Stringer("handle", e.h),
		zap.Uint32("pt_index", p.index),
		zap.Int32("list", list),
		zap.Uint64("match_bits", me.MatchBits),
	)
	return e.h, nil
}

// claimHeadersLocked hands unexpected headers that match e to it, oldest
// first. A use-once entry claims at most one.
func (n *netIface) claimHeadersLocked(p *portal, e *entry) bool {
	claimed := false
	kept := make([]*header, 0, len(p.unexpected))
	for _, h := range p.unexpected {
		if (claimed && e.has(MEUseOnce)) || !n.matches(e, h.matchBits, h.initiator) || e.permits(h.class, h.uid) != NIOK {
			kept = append(kept, h)
			continue
		}
		claimed = true
		n.overflowEventLocked(p, e.me.Options, e.ct, e.userPtr, h)
		n.dropHeaderLocked(h)
	}
	p.unexpected = kept
	return claimed
}

// overflowEventLocked reports that a buffered message was claimed.
func (n *netIface) overflowEventLocked(p *portal, options uint32, ct *counter, userPtr any, h *header) {
	if options&(MEEventOverDisable|MEEventSuccessDisable) == 0 {
		p.eq.post(h.event(h.class.targetEvent().Overflow(), userPtr, p.index, PriorityList))
	}
	if ct != nil && options&MEEventCTOverflow != 0 {
		ct.record(true, options&MEEventCTBytes != 0, h.mlength)
	}
}

func (n *netIface) dropHeaderLocked(h *header) {
	e := h.entry
	e.headers--
	if e.zombie && e.headers == 0 {
		if !e.has(MEEventUnlinkDisable) {
			e.pt.eq.post(Event{
				UserPtr:    e.userPtr,
				Type:       EventAutoFree,
				PtlList:    e.list,
				PTIndex:    e.pt.index,
				NIFailType: NIOK,
			})
		}
		n.releaseLocked(e)
	}
}

// autoUnlinkLocked removes e after use-once consumption or when its free
// space fell below MinFree.
func (n *netIface) autoUnlinkLocked(e *entry) {
	n.detachLocked(e)
	if !e.has(MEEventUnlinkDisable) {
		e.pt.eq.post(Event{
			UserPtr:    e.userPtr,
			Type:       EventAutoUnlink,
			PtlList:    e.list,
			PTIndex:    e.pt.index,
			NIFailType: NIOK,
		})
	}
	if e.headers > 0 {
		e.zombie = true
		return
	}
	n.releaseLocked(e)
}

func (n *netIface) detachLocked(e *entry) {
	if !e.linked {
		return
	}
	lst := e.pt.list(e.list)
	for i, cur := range *lst {
		if cur == e {
			*lst = append((*lst)[:i], (*lst)[i+1:]...)
			break
		}
	}
	e.linked = false
}

func (n *netIface) releaseLocked(e *entry) {
	n.entries.Remove(e.h.obj)
	unlockRegion(n.rt.mem, e.region)
}

// MEUnlink removes a matching entry. No event is generated. Overflow entries
// that still back unexpected headers cannot be unlinked (ErrInUse).
func (r *Runtime) MEUnlink(me Handle) error {
	return r.unlinkEntry(me, kindME, "PtlMEUnlink")
}

// LEUnlink removes a list entry.
func (r *Runtime) LEUnlink(le Handle) error {
	return r.unlinkEntry(le, kindLE, "PtlLEUnlink")
}

func (r *Runtime) unlinkEntry(h Handle, kind handleKind, op string) error {
	if h.kind != kind {
		return ErrInvalidHandle{kindNames[kind]}
	}
	n, err := r.ownerOf(h, op)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries.Lookup(h.obj)
	if !ok {
		return ErrInvalidHandle{kindNames[kind]}
	}
	if e.headers > 0 || e.zombie {
		return ErrInUse.WithOp(op)
	}
	n.detachLocked(e)
	n.releaseLocked(e)
	n.logger.Debug("entry unlinked", zap.Stringer("handle", h))
	return nil
}

// MESearch looks for unexpected headers matching me without linking it.
// SearchOnly reports the first match in one EventSearch. SearchDelete claims
// every match, raising an overflow event for each. When nothing matches a
// single EventSearch with NINoMatch is raised.
func (r *Runtime) MESearch(ni Handle, ptIndex uint32, me *ME, searchOp uint32, userPtr any) error {
	return r.search(ni, ptIndex, me, searchOp, userPtr, kindME, "PtlMESearch")
}

// LESearch is MESearch for non-matching interfaces.
func (r *Runtime) LESearch(ni Handle, ptIndex uint32, le *LE, searchOp uint32, userPtr any) error {
	if le == nil {
		return ErrArgInvalid.WithOp("PtlLESearch")
	}
	return r.search(ni, ptIndex, le.asME(), searchOp, userPtr, kindLE, "PtlLESearch")
}

func (r *Runtime) search(ni Handle, ptIndex uint32, me *ME, searchOp uint32, userPtr any, kind handleKind, op string) error {
	n, err := r.niFor(ni, op)
	if err != nil {
		return err
	}
	if me == nil || (kind == kindME) != n.matching() || (searchOp != SearchOnly && searchOp != SearchDelete) {
		return ErrArgInvalid.WithOp(op)
	}
	ct, err := r.optionalCT(n, me.CT, op)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.portalLocked(ptIndex)
	if err != nil {
		return wrapOp(err, op)
	}
	probe := &entry{me: *me}
	found := false
	kept := make([]*header, 0, len(p.unexpected))
	for _, h := range p.unexpected {
		if (found && searchOp == SearchOnly) || !n.matches(probe, h.matchBits, h.initiator) {
			kept = append(kept, h)
			continue
		}
		found = true
		if searchOp == SearchOnly {
			if !probe.has(MEEventSuccessDisable) {
				p.eq.post(h.event(EventSearch, userPtr, p.index, OverflowList))
			}
			kept = append(kept, h)
			continue
		}
		n.overflowEventLocked(p, me.Options, ct, userPtr, h)
		n.dropHeaderLocked(h)
	}
	p.unexpected = kept
	if !found {
		p.eq.post(Event{
			UserPtr:    userPtr,
			Type:       EventSearch,
			PTIndex:    p.index,
			PtlList:    OverflowList,
			NIFailType: NINoMatch,
		})
	}
	return nil
}
