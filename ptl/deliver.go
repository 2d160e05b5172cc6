package ptl

import (
	"go.uber.org/zap"

	"github.com/rocketbitz/portals4-go/internal/abi"
)

// message is an operation as it arrives at the target.
type message struct {
	class        opClass
	initiator    Process
	uid          uint32
	ptIndex      uint32
	matchBits    uint64
	remoteOffset uint64
	hdrData      uint64
	length       uint64
	payload      []byte
	operand      []byte
	op           Op
	dt           Datatype
}

// delivery is what the target reports back to the initiator. reply is
// allocated from the target runtime's MemOps.
type delivery struct {
	fail        NIFail
	mlength     uint64
	offset      uint64
	reply       []byte
	ackDisabled bool
}

// deliver processes one inbound message. Holding the interface lock for the
// whole match-and-move keeps deliveries to a portal linearizable with the
// events they produce.
func (n *netIface) deliver(m *message) delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return delivery{fail: NIUndeliverable}
	}
	if int(m.ptIndex) >= len(n.pts) || n.pts[m.ptIndex] == nil {
		n.bump(SRDropCount)
		n.logger.Warn("message dropped", zap.Uint32("pt_index", m.ptIndex), zap.String("reason", "portal not allocated"))
		return delivery{fail: NIDropped}
	}
	p := n.pts[m.ptIndex]
	if !p.enabled {
		n.bump(SRDropCount)
		n.logger.Warn("message dropped", zap.Uint32("pt_index", m.ptIndex), zap.String("reason", "portal disabled"))
		return delivery{fail: NIPTDisabled}
	}

	if e := n.findLocked(p.priority, m); e != nil {
		return n.landLocked(p, e, m)
	}
	if e := n.findLocked(p.overflow, m); e != nil {
		if !e.has(MEUnexpectedHdrDisable) && len(p.unexpected) >= n.limits.MaxUnexpectedHeaders {
			return n.noMatchLocked(p, m, "unexpected header space exhausted")
		}
		return n.landLocked(p, e, m)
	}
	return n.noMatchLocked(p, m, "no matching entry")
}

func (n *netIface) findLocked(list []*entry, m *message) *entry {
	for _, e := range list {
		if n.matches(e, m.matchBits, m.initiator) && e.admits(m.remoteOffset, m.length) {
			return e
		}
	}
	return nil
}

// noMatchLocked drops the message. Flow-controlled portals also disable
// themselves and say so on their event queue.
func (n *netIface) noMatchLocked(p *portal, m *message, reason string) delivery {
	n.bump(SRDropCount)
	if p.options&PTFlowCtrl == 0 {
		n.logger.Warn("message dropped", zap.Uint32("pt_index", p.index), zap.String("reason", reason))
		return delivery{fail: NIDropped}
	}
	p.enabled = false
	p.eq.post(Event{
		HdrData:    m.hdrData,
		MatchBits:  m.matchBits,
		RLength:    m.length,
		UID:        m.uid,
		Initiator:  m.initiator,
		Type:       EventPTDisabled,
		PTIndex:    p.index,
		NIFailType: NIPTDisabled,
	})
	n.logger.Warn("portal disabled by flow control", zap.Uint32("pt_index", p.index), zap.String("reason", reason))
	return delivery{fail: NIPTDisabled}
}

// landLocked moves data into or out of e and raises the target-side events.
func (n *netIface) landLocked(p *portal, e *entry, m *message) delivery {
	if fail := e.permits(m.class, m.uid); fail != NIOK {
		if fail == NIOpViolation {
			n.bump(SROperationViolations)
		} else {
			n.bump(SRPermissionViolations)
		}
		n.logger.Warn("access violation", zap.Uint32("pt_index", p.index), zap.Stringer("fail", fail))
		return delivery{fail: fail}
	}

	offset := e.targetOffset(m.remoteOffset)
	mlength := e.fit(offset, m.length)
	if m.class.atomic() {
		mlength -= mlength % uint64(m.dt.Size())
	}
	res := delivery{fail: NIOK, mlength: mlength, offset: offset, ackDisabled: e.has(MEAckDisable)}

	rt := n.rt
	switch m.class {
	case classPut:
		e.region.write(offset, m.payload[:mlength])
	case classGet:
		reply, err := rt.scratch(mlength)
		if err != nil {
			n.bump(SRDropCount)
			return delivery{fail: NIDropped}
		}
		e.region.read(offset, reply)
		res.reply = reply
	case classAtomic:
		cur, err := rt.scratch(mlength)
		if err != nil {
			n.bump(SRDropCount)
			return delivery{fail: NIDropped}
		}
		e.region.read(offset, cur)
		abi.ApplyAtomic(m.op, m.dt, cur, m.payload[:mlength], nil)
		e.region.write(offset, cur)
		rt.release(cur)
	case classFetch, classSwap:
		reply, err := rt.scratch(mlength)
		if err != nil {
			n.bump(SRDropCount)
			return delivery{fail: NIDropped}
		}
		cur, err := rt.scratch(mlength)
		if err != nil {
			rt.release(reply)
			n.bump(SRDropCount)
			return delivery{fail: NIDropped}
		}
		e.region.read(offset, reply)
		copy(cur, reply)
		abi.ApplyAtomic(m.op, m.dt, cur, m.payload[:mlength], m.operand)
		e.region.write(offset, cur)
		rt.release(cur)
		res.reply = reply
	}
	if e.has(MEManageLocal) {
		e.offset = offset + mlength
	}

	ev := Event{
		Start:        e.region.slice(offset, mlength),
		UserPtr:      e.userPtr,
		HdrData:      m.hdrData,
		MatchBits:    m.matchBits,
		RLength:      m.length,
		MLength:      mlength,
		RemoteOffset: offset,
		UID:          m.uid,
		Initiator:    m.initiator,
		Type:         m.class.targetEvent(),
		PtlList:      e.list,
		PTIndex:      p.index,
		NIFailType:   NIOK,
	}
	if m.class.atomic() {
		ev.AtomicOperation = m.op
		ev.AtomicType = m.dt
	}
	if e.list == OverflowList && !e.has(MEUnexpectedHdrDisable) {
		p.unexpected = append(p.unexpected, &header{
			class:     m.class,
			entry:     e,
			initiator: m.initiator,
			uid:       m.uid,
			matchBits: m.matchBits,
			hdrData:   m.hdrData,
			rlength:   m.length,
			mlength:   mlength,
			offset:    offset,
			start:     ev.Start,
			op:        ev.AtomicOperation,
			dt:        ev.AtomicType,
		})
		e.headers++
	}
	if !e.has(MEEventCommDisable) && !e.has(MEEventSuccessDisable) {
		p.eq.post(ev)
	}
	if e.ct != nil && e.has(MEEventCTComm) {
		e.ct.record(true, e.has(MEEventCTBytes), mlength)
	}

	if e.has(MEUseOnce) || (e.has(MEManageLocal) && e.me.MinFree > 0 && e.region.length-e.offset < e.me.MinFree) {
		n.autoUnlinkLocked(e)
	}
	return res
}
