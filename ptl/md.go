package ptl

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// memDesc is a bound memory descriptor.
type memDesc struct {
	h       Handle
	region  region
	options uint32
	eq      *eventQueue
	ct      *counter

	mu       sync.Mutex
	pending  int
	released bool
}

func (md *memDesc) has(opt uint32) bool {
	return md.options&opt != 0
}

// pin holds md for a pending triggered operation. It fails once md has
// been released.
func (md *memDesc) pin() bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.released {
		return false
	}
	md.pending++
	return true
}

func (md *memDesc) unpin() {
	md.mu.Lock()
	md.pending--
	md.mu.Unlock()
}

// release marks md released unless a triggered operation still pins it.
func (md *memDesc) release() error {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.released {
		return ErrInvalidHandle{"memory descriptor"}
	}
	if md.pending > 0 {
		return ErrInUse
	}
	md.released = true
	return nil
}

// MDBind binds memory for use as the local side of data movement.
func (r *Runtime) MDBind(ni Handle, md *MD) (Handle, error) {
	const op = "PtlMDBind"
	n, err := r.niFor(ni, op)
	if err != nil {
		return InvalidHandle, err
	}
	if md == nil || md.Options&^mdOptionMask != 0 {
		return InvalidHandle, ErrArgInvalid.WithOp(op)
	}
	rgn, err := newRegion(md.Start, md.IOVecs, md.Options, n.limits.MaxIOVecs)
	if err != nil {
		return InvalidHandle, wrapOp(err, op)
	}
	q, err := r.optionalEQ(n, md.EQ, op)
	if err != nil {
		return InvalidHandle, err
	}
	ct, err := r.optionalCT(n, md.CT, op)
	if err != nil {
		return InvalidHandle, err
	}
	if err := lockRegion(r.mem, rgn); err != nil {
		return InvalidHandle, fmt.Errorf("%w: %v", ErrNoSpace.WithOp(op), err)
	}

	d := &memDesc{region: rgn, options: md.Options, eq: q, ct: ct}
	ref, err := n.mds.Insert(d)
	if err != nil {
		unlockRegion(r.mem, rgn)
		return InvalidHandle, ErrNoSpace.WithOp(op)
	}
	d.h = n.child(kindMD, ref)
	n.logger.Debug("md bound", zap.Stringer("md", d.h), zap.Uint64("length", rgn.length))
	return d.h, nil
}

// MDRelease unbinds a memory descriptor. It fails with ErrInUse while
// triggered operations that use it are pending.
func (r *Runtime) MDRelease(mdh Handle) error {
	const op = "PtlMDRelease"
	n, md, err := r.lookupMD(mdh, op)
	if err != nil {
		return err
	}
	if err := md.release(); err != nil {
		return wrapOp(err, op)
	}
	if _, ok := n.mds.Remove(mdh.obj); !ok {
		return ErrInvalidHandle{"memory descriptor"}
	}
	unlockRegion(r.mem, md.region)
	n.logger.Debug("md released", zap.Stringer("md", mdh))
	return nil
}

// completion posts an initiator-side event and counts it. countCT selects
// whether the MD's counter participates.
func (md *memDesc) completion(ev Event, post bool, countCT bool, bytes uint64) {
	ok := ev.NIFailType == NIOK
	if post && !(ok && md.has(MDEventSuccessDisable)) {
		md.eq.post(ev)
	}
	if countCT && md.ct != nil {
		md.ct.record(ok, md.has(MDEventCTBytes), bytes)
	}
}
