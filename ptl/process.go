package ptl

// SetMap installs the rank to nid/pid table of a logical interface. Entry i
// describes rank i and must carry NID and PID. The table can be set once;
// later calls return ErrIgnored and leave it untouched.
func (r *Runtime) SetMap(ni Handle, mapping []Process) error {
	const op = "PtlSetMap"
	n, err := r.niFor(ni, op)
	if err != nil {
		return err
	}
	if !n.logical() || len(mapping) == 0 || len(mapping) > int(RankAny) {
		return ErrArgInvalid.WithOp(op)
	}
	rank := RankAny
	for i, p := range mapping {
		if p.NID == NIDAny || p.PID == PIDAny {
			return ErrArgInvalid.WithOp(op)
		}
		if p.NID == r.nid && p.PID == n.pid && rank == RankAny {
			rank = uint32(i)
		}
	}
	if rank == RankAny {
		return ErrArgInvalid.WithOp(op)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.procMap != nil {
		return ErrIgnored.WithOp(op)
	}
	n.procMap = make([]Process, len(mapping))
	for i, p := range mapping {
		n.procMap[i] = Process{NID: p.NID, PID: p.PID, Rank: uint32(i)}
	}
	n.rank = rank
	return nil
}

// GetMap returns a copy of the rank table of a logical interface.
func (r *Runtime) GetMap(ni Handle) ([]Process, error) {
	const op = "PtlGetMap"
	n, err := r.niFor(ni, op)
	if err != nil {
		return nil, err
	}
	if !n.logical() {
		return nil, ErrArgInvalid.WithOp(op)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.procMap == nil {
		return nil, ErrArgInvalid.WithOp(op)
	}
	out := make([]Process, len(n.procMap))
	copy(out, n.procMap)
	return out, nil
}

// resolveTarget turns the caller's view of a peer into its physical address.
func (n *netIface) resolveTarget(target Process) (Process, error) {
	if !n.logical() {
		return Process{NID: target.NID, PID: target.PID}, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.procMap == nil || target.Rank >= uint32(len(n.procMap)) {
		return Process{}, ErrArgInvalid
	}
	return n.procMap[target.Rank], nil
}
