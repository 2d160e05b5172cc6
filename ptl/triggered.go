package ptl

// Triggered operations are validated when they are registered and run on the
// interface's dispatcher once the success count of trigCT reaches threshold.
// Their MDs cannot be released while they are pending.

// TriggeredPut registers a Put to run when trigCT reaches threshold.
func (r *Runtime) TriggeredPut(req PutRequest, trigCT Handle, threshold uint64) error {
	const name = "PtlTriggeredPut"
	o, err := r.preparePut(req, name)
	if err != nil {
		return err
	}
	return r.armOperation(o, trigCT, threshold)
}

// TriggeredGet registers a Get to run when trigCT reaches threshold.
func (r *Runtime) TriggeredGet(req GetRequest, trigCT Handle, threshold uint64) error {
	const name = "PtlTriggeredGet"
	o, err := r.prepareGet(req, name)
	if err != nil {
		return err
	}
	return r.armOperation(o, trigCT, threshold)
}

// TriggeredAtomic registers an Atomic to run when trigCT reaches threshold.
func (r *Runtime) TriggeredAtomic(req AtomicRequest, trigCT Handle, threshold uint64) error {
	const name = "PtlTriggeredAtomic"
	o, err := r.prepareAtomic(req, name)
	if err != nil {
		return err
	}
	return r.armOperation(o, trigCT, threshold)
}

// TriggeredFetchAtomic registers a FetchAtomic to run when trigCT reaches
// threshold.
func (r *Runtime) TriggeredFetchAtomic(req FetchAtomicRequest, trigCT Handle, threshold uint64) error {
	const name = "PtlTriggeredFetchAtomic"
	o, err := r.prepareFetch(req, name)
	if err != nil {
		return err
	}
	return r.armOperation(o, trigCT, threshold)
}

// TriggeredSwap registers a Swap to run when trigCT reaches threshold.
func (r *Runtime) TriggeredSwap(req SwapRequest, trigCT Handle, threshold uint64) error {
	const name = "PtlTriggeredSwap"
	o, err := r.prepareSwap(req, name)
	if err != nil {
		return err
	}
	return r.armOperation(o, trigCT, threshold)
}

// TriggeredCTInc registers an increment of ct to run when trigCT reaches
// threshold.
func (r *Runtime) TriggeredCTInc(ct Handle, inc CTEvent, trigCT Handle, threshold uint64) error {
	const name = "PtlTriggeredCTInc"
	if inc.Success != 0 && inc.Failure != 0 {
		return ErrArgInvalid.WithOp(name)
	}
	return r.armCounter(ct, trigCT, threshold, name, func(v *CTEvent) {
		v.Success += inc.Success
		v.Failure += inc.Failure
	})
}

// TriggeredCTSet registers an overwrite of ct to run when trigCT reaches
// threshold.
func (r *Runtime) TriggeredCTSet(ct Handle, value CTEvent, trigCT Handle, threshold uint64) error {
	return r.armCounter(ct, trigCT, threshold, "PtlTriggeredCTSet", func(v *CTEvent) { *v = value })
}

func (r *Runtime) armOperation(o *operation, trigCT Handle, threshold uint64) error {
	n := o.ni
	return r.arm(n, trigCT, threshold, o.name, o.mds(), func() error {
		n.mu.Lock()
		closed := n.closed
		n.mu.Unlock()
		if closed {
			return ErrInterrupted.WithOp(o.name)
		}
		return r.execute(o)
	})
}

func (r *Runtime) armCounter(ct, trigCT Handle, threshold uint64, name string, fn func(*CTEvent)) error {
	n, c, err := r.lookupCT(ct, name)
	if err != nil {
		return err
	}
	return r.arm(n, trigCT, threshold, name, nil, func() error {
		if cur, ok := n.cts.Lookup(ct.obj); !ok || cur != c {
			return ErrInvalidHandle{"counting event"}
		}
		c.mutate(fn)
		return nil
	})
}

// arm registers fire on trigCT. The trigger counts against MaxTriggeredOps
// and pins mds until it has run or been discarded.
func (r *Runtime) arm(n *netIface, trigCT Handle, threshold uint64, name string, mds []*memDesc, fire func() error) error {
	owner, c, err := r.lookupCT(trigCT, name)
	if err != nil {
		return err
	}
	if owner != n {
		return ErrArgInvalid.WithOp(name)
	}
	if n.triggered.Add(1) > int64(n.limits.MaxTriggeredOps) {
		n.triggered.Add(-1)
		return ErrNoSpace.WithOp(name)
	}
	for i, md := range mds {
		if !md.pin() {
			for _, pinned := range mds[:i] {
				pinned.unpin()
			}
			n.triggered.Add(-1)
			return ErrInvalidHandle{"memory descriptor"}
		}
	}
	t := &trigger{name: name, threshold: threshold, fire: fire, mds: mds, ni: n}
	if err := c.arm(t); err != nil {
		t.done()
		return ErrInvalidHandle{"counting event"}
	}
	return nil
}
