package ptl

import "go.uber.org/zap"

// portal is one portal table entry with its two match lists and the
// unexpected headers left behind by overflow deliveries.
type portal struct {
	index      uint32
	options    uint32
	eq         *eventQueue
	enabled    bool
	priority   []*entry
	overflow   []*entry
	unexpected []*header
}

func (p *portal) list(which int32) *[]*entry {
	if which == OverflowList {
		return &p.overflow
	}
	return &p.priority
}

func (p *portal) busy() bool {
	return len(p.priority) > 0 || len(p.overflow) > 0 || len(p.unexpected) > 0
}

func (n *netIface) portalLocked(index uint32) (*portal, error) {
	if n.closed {
		return nil, ErrInvalidHandle{"network interface"}
	}
	if int(index) >= len(n.pts) || n.pts[index] == nil {
		return nil, ErrArgInvalid
	}
	return n.pts[index], nil
}

// PTAlloc allocates a portal table entry. req is the wanted index or PTAny
// for the lowest free one. Flow-controlled portals need an event queue to
// report that they disabled themselves.
func (r *Runtime) PTAlloc(ni Handle, options uint32, eq Handle, req uint32) (uint32, error) {
	const op = "PtlPTAlloc"
	n, err := r.niFor(ni, op)
	if err != nil {
		return 0, err
	}
	if options&^ptOptionMask != 0 {
		return 0, ErrArgInvalid.WithOp(op)
	}
	if options&PTFlowCtrl != 0 && eq.IsNone() {
		return 0, ErrPTEQNeeded.WithOp(op)
	}
	q, err := r.optionalEQ(n, eq, op)
	if err != nil {
		return 0, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return 0, ErrInvalidHandle{"network interface"}
	}
	index := req
	if req == PTAny {
		index = PTAny
		for i, p := range n.pts {
			if p == nil {
				index = uint32(i)
				break
			}
		}
		if index == PTAny {
			return 0, ErrPTFull.WithOp(op)
		}
	} else {
		if int(req) >= len(n.pts) {
			return 0, ErrArgInvalid.WithOp(op)
		}
		if n.pts[req] != nil {
			return 0, ErrPTInUse.WithOp(op)
		}
	}
	n.pts[index] = &portal{
		index:   index,
		options: options,
		eq:      q,
		enabled: options&PTAllocDisabled == 0,
	}
	n.logger.Debug("pt allocated", zap.Uint32("pt_index", index), zap.Uint32("options", options))
	return index, nil
}

// PTFree releases a portal table entry. It fails with ErrPTInUse while list
// entries or unexpected headers remain.
func (r *Runtime) PTFree(ni Handle, index uint32) error {
	const op = "PtlPTFree"
	n, err := r.niFor(ni, op)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.portalLocked(index)
	if err != nil {
		return wrapOp(err, op)
	}
	if p.busy() {
		return ErrPTInUse.WithOp(op)
	}
	n.pts[index] = nil
	n.logger.Debug("pt freed", zap.Uint32("pt_index", index))
	return nil
}

// PTEnable re-enables a portal, typically after flow control disabled it.
func (r *Runtime) PTEnable(ni Handle, index uint32) error {
	return r.setPortalEnabled(ni, index, true, "PtlPTEnable")
}

// PTDisable stops a portal from accepting messages. Messages that arrive
// while it is disabled are dropped.
func (r *Runtime) PTDisable(ni Handle, index uint32) error {
	return r.setPortalEnabled(ni, index, false, "PtlPTDisable")
}

func (r *Runtime) setPortalEnabled(ni Handle, index uint32, enabled bool, op string) error {
	n, err := r.niFor(ni, op)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.portalLocked(index)
	if err != nil {
		return wrapOp(err, op)
	}
	p.enabled = enabled
	return nil
}

// wrapOp adds operation context to bare return codes and leaves other errors
// untouched.
func wrapOp(err error, op string) error {
	if code, ok := err.(Errno); ok {
		return code.WithOp(op)
	}
	return err
}
