package ptl

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rocketbitz/portals4-go/internal/handle"
)

// netIface is one initialized network interface. A runtime holds at most one
// per kind (matching or not, physical or logical), all sharing one pid.
type netIface struct {
	rt      *Runtime
	h       Handle
	ref     handle.Ref
	options uint32
	pid     uint32
	limits  Limits
	logger  *zap.Logger
	refs    int

	entries *handle.Table[*entry]
	mds     *handle.Table[*memDesc]
	eqs     *handle.Table[*eventQueue]
	cts     *handle.Table[*counter]

	dispatch  *dispatcher
	triggered atomic.Int64
	status    [3]atomic.Uint64
	bundles   atomic.Int32

	mu      sync.Mutex
	closed  bool
	pts     []*portal
	procMap []Process
	rank    uint32
}

func newNetIface(rt *Runtime, options, pid uint32, limits Limits) *netIface {
	logger := rt.logger.With(zap.Uint32("pid", pid), zap.String("ni_kind", niKindString(options)))
	return &netIface{
		rt:      rt,
		options: options,
		pid:     pid,
		limits:  limits,
		logger:  logger,
		entries: handle.NewTable[*entry](limits.MaxEntries),
		mds:     handle.NewTable[*memDesc](limits.MaxMDs),
		eqs:     handle.NewTable[*eventQueue](limits.MaxEQs),
		cts:     handle.NewTable[*counter](limits.MaxCTs),
		pts:     make([]*portal, limits.MaxPTIndex+1),
		rank:    RankAny,
	}
}

func niKindString(options uint32) string {
	kind := "physical"
	if options&NILogical != 0 {
		kind = "logical"
	}
	if options&NIMatching != 0 {
		return kind + "/matching"
	}
	return kind + "/non-matching"
}

func (n *netIface) matching() bool {
	return n.options&NIMatching != 0
}

func (n *netIface) logical() bool {
	return n.options&NILogical != 0
}

func (n *netIface) child(kind handleKind, ref handle.Ref) Handle {
	return Handle{runtime: n.rt.serial, kind: kind, ni: n.ref, obj: ref}
}

// self returns the identity peers see in events originating here.
func (n *netIface) self() Process {
	if n.logical() {
		n.mu.Lock()
		defer n.mu.Unlock()
		return Process{Rank: n.rank}
	}
	return Process{NID: n.rt.nid, PID: n.pid}
}

func (n *netIface) bump(reg int32) {
	n.status[reg].Add(1)
}

// teardown invalidates every child object and unblocks their waiters.
func (n *netIface) teardown() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.pts = nil
	n.mu.Unlock()

	n.rt.fabric.unregister(n)
	// Counters go first so no mutation can release triggers into a stopped
	// dispatcher.
	for _, c := range n.cts.Drain() {
		for _, t := range c.shutdown() {
			t.done()
		}
	}
	for _, t := range n.dispatch.shutdown() {
		t.done()
	}
	for _, q := range n.eqs.Drain() {
		q.shutdown()
	}
	for _, e := range n.entries.Drain() {
		unlockRegion(n.rt.mem, e.region)
	}
	for _, md := range n.mds.Drain() {
		md.mu.Lock()
		md.released = true
		md.mu.Unlock()
		unlockRegion(n.rt.mem, md.region)
	}
	n.logger.Debug("ni finalized")
}

// NIInit initializes a network interface, or returns the existing one when an
// interface of the same kind is already up. options must select exactly one
// of NIMatching/NINoMatching and one of NIPhysical/NILogical. desired may be
// nil; the granted limits are returned.
func (r *Runtime) NIInit(iface int32, options uint32, pid uint32, desired *Limits) (Handle, Limits, error) {
	const op = "PtlNIInit"
	if err := r.checkOpen(op); err != nil {
		return InvalidHandle, Limits{}, err
	}
	if iface != IfaceDefault || options&^niKindMask != 0 || pid > PIDMax {
		return InvalidHandle, Limits{}, ErrArgInvalid.WithOp(op)
	}
	if (options&NIMatching != 0) == (options&NINoMatching != 0) ||
		(options&NIPhysical != 0) == (options&NILogical != 0) {
		return InvalidHandle, Limits{}, ErrArgInvalid.WithOp(op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return InvalidHandle, Limits{}, ErrNoInit.WithOp(op)
	}
	if ref, ok := r.byKind[options]; ok {
		if n, ok := r.nis.Lookup(ref); ok {
			if pid != PIDAny && pid != n.pid {
				return InvalidHandle, Limits{}, ErrArgInvalid.WithOp(op)
			}
			n.refs++
			return n.h, n.limits, nil
		}
	}
	if r.pid != PIDAny && pid != PIDAny && pid != r.pid {
		return InvalidHandle, Limits{}, ErrArgInvalid.WithOp(op)
	}

	claimed, fresh := r.pid, false
	if claimed == PIDAny {
		got, err := r.fabric.claimPID(r.nid, pid, r.serial)
		if err != nil {
			return InvalidHandle, Limits{}, ErrPIDInUse.WithOp(op)
		}
		claimed, fresh = got, true
	}

	n := newNetIface(r, options, claimed, negotiate(desired, r.defLimits))
	ref, err := r.nis.Insert(n)
	if err != nil {
		if fresh {
			r.fabric.releasePID(r.nid, claimed)
		}
		return InvalidHandle, Limits{}, ErrNoSpace.WithOp(op)
	}
	n.ref = ref
	n.h = Handle{runtime: r.serial, kind: kindNI, ni: ref, obj: ref}
	n.refs = 1
	n.dispatch = newDispatcher(n.logger, r.backlogWarn)
	r.byKind[options] = ref
	r.pid = claimed
	r.fabric.register(n)

	n.logger.Debug("ni initialized",
		zap.Int("max_pt_index", n.limits.MaxPTIndex),
		zap.Uint64("max_msg_size", n.limits.MaxMsgSize),
	)
	return n.h, n.limits, nil
}

// NIFini drops one reference to the interface. The last reference tears it
// down: every child handle becomes invalid and blocked waiters return
// ErrInterrupted.
func (r *Runtime) NIFini(ni Handle) error {
	n, err := r.niFor(ni, "PtlNIFini")
	if err != nil {
		return err
	}
	r.mu.Lock()
	n.refs--
	last := n.refs <= 0
	if last {
		delete(r.byKind, n.options)
		r.nis.Remove(n.ref)
	}
	r.mu.Unlock()
	if !last {
		return nil
	}
	n.teardown()

	// The pid stays claimed while any interface of the runtime uses it.
	r.mu.Lock()
	if !r.closed && r.pid == n.pid && r.nis.Len() == 0 {
		r.fabric.releasePID(r.nid, r.pid)
		r.pid = PIDAny
	}
	r.mu.Unlock()
	return nil
}

// NIHandle returns the interface that owns any handle.
func (r *Runtime) NIHandle(h Handle) (Handle, error) {
	n, err := r.ownerOf(h, "PtlNIHandle")
	if err != nil {
		return InvalidHandle, err
	}
	return n.h, nil
}

// NIStatus reads a status register.
func (r *Runtime) NIStatus(ni Handle, reg int32) (uint64, error) {
	n, err := r.niFor(ni, "PtlNIStatus")
	if err != nil {
		return 0, err
	}
	if reg < 0 || int(reg) >= len(n.status) {
		return 0, ErrArgInvalid.WithOp("PtlNIStatus")
	}
	return n.status[reg].Load(), nil
}

// TriggeredFailures reports how many released triggered operations failed to
// execute on the interface. Those failures have no caller to return to.
func (r *Runtime) TriggeredFailures(ni Handle) (uint64, error) {
	n, err := r.niFor(ni, "PtlTriggeredFailures")
	if err != nil {
		return 0, err
	}
	return n.dispatch.failures.Load(), nil
}

// TriggeredFired reports how many released triggered operations the
// interface has dispatched, failed ones included.
func (r *Runtime) TriggeredFired(ni Handle) (uint64, error) {
	n, err := r.niFor(ni, "PtlTriggeredFired")
	if err != nil {
		return 0, err
	}
	return n.dispatch.fired.Load(), nil
}

// GetID returns the caller's identity on the interface: its rank on logical
// interfaces, its nid/pid otherwise.
func (r *Runtime) GetID(ni Handle) (Process, error) {
	n, err := r.niFor(ni, "PtlGetId")
	if err != nil {
		return Process{}, err
	}
	if n.logical() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.procMap == nil {
			return Process{}, ErrArgInvalid.WithOp("PtlGetId")
		}
		return Process{Rank: n.rank}, nil
	}
	return Process{NID: r.nid, PID: n.pid}, nil
}

// GetPhysID returns the physical nid/pid of the interface.
func (r *Runtime) GetPhysID(ni Handle) (Process, error) {
	n, err := r.niFor(ni, "PtlGetPhysId")
	if err != nil {
		return Process{}, err
	}
	return Process{NID: r.nid, PID: n.pid}, nil
}

// GetUID returns the user identifier stamped on outgoing messages.
func (r *Runtime) GetUID(ni Handle) (uint32, error) {
	if _, err := r.niFor(ni, "PtlGetUid"); err != nil {
		return 0, err
	}
	return r.uid, nil
}

// StartBundle marks the beginning of a group of operations the caller would
// like issued together. Operations complete synchronously, so bundles only
// nest.
func (r *Runtime) StartBundle(ni Handle) error {
	n, err := r.niFor(ni, "PtlStartBundle")
	if err != nil {
		return err
	}
	n.bundles.Add(1)
	return nil
}

// EndBundle closes the innermost bundle.
func (r *Runtime) EndBundle(ni Handle) error {
	n, err := r.niFor(ni, "PtlEndBundle")
	if err != nil {
		return err
	}
	for {
		cur := n.bundles.Load()
		if cur <= 0 {
			return ErrArgInvalid.WithOp("PtlEndBundle")
		}
		if n.bundles.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// AtomicSync orders earlier atomics before later ones. Atomics complete
// before their call returns, so it only checks the runtime is live.
func (r *Runtime) AtomicSync() error {
	return r.checkOpen("PtlAtomicSync")
}

func (r *Runtime) niFor(h Handle, op string) (*netIface, error) {
	if h.kind != kindNI {
		if err := r.checkOpen(op); err != nil {
			return nil, err
		}
		return nil, ErrInvalidHandle{"network interface"}
	}
	return r.ownerOf(h, op)
}

func (r *Runtime) ownerOf(h Handle, op string) (*netIface, error) {
	if err := r.checkOpen(op); err != nil {
		return nil, err
	}
	if h.kind == kindNone || h.runtime != r.serial {
		return nil, ErrInvalidHandle{"network interface"}
	}
	n, ok := r.nis.Lookup(h.ni)
	if !ok {
		return nil, ErrInvalidHandle{"network interface"}
	}
	return n, nil
}

func (r *Runtime) lookupEQ(h Handle, op string) (*netIface, *eventQueue, error) {
	if h.kind != kindEQ {
		return nil, nil, ErrInvalidHandle{"event queue"}
	}
	n, err := r.ownerOf(h, op)
	if err != nil {
		return nil, nil, err
	}
	q, ok := n.eqs.Lookup(h.obj)
	if !ok {
		return nil, nil, ErrInvalidHandle{"event queue"}
	}
	return n, q, nil
}

func (r *Runtime) lookupCT(h Handle, op string) (*netIface, *counter, error) {
	if h.kind != kindCT {
		return nil, nil, ErrInvalidHandle{"counting event"}
	}
	n, err := r.ownerOf(h, op)
	if err != nil {
		return nil, nil, err
	}
	c, ok := n.cts.Lookup(h.obj)
	if !ok {
		return nil, nil, ErrInvalidHandle{"counting event"}
	}
	return n, c, nil
}

func (r *Runtime) lookupMD(h Handle, op string) (*netIface, *memDesc, error) {
	if h.kind != kindMD {
		return nil, nil, ErrInvalidHandle{"memory descriptor"}
	}
	n, err := r.ownerOf(h, op)
	if err != nil {
		return nil, nil, err
	}
	md, ok := n.mds.Lookup(h.obj)
	if !ok {
		return nil, nil, ErrInvalidHandle{"memory descriptor"}
	}
	return n, md, nil
}

// optionalEQ resolves an EQ handle that may be EQNone. The queue must belong
// to n.
func (r *Runtime) optionalEQ(n *netIface, h Handle, op string) (*eventQueue, error) {
	if h.IsNone() {
		return nil, nil
	}
	owner, q, err := r.lookupEQ(h, op)
	if err != nil {
		return nil, err
	}
	if owner != n {
		return nil, ErrInvalidHandle{"event queue"}
	}
	return q, nil
}

// optionalCT resolves a CT handle that may be CTNone. The counter must belong
// to n.
func (r *Runtime) optionalCT(n *netIface, h Handle, op string) (*counter, error) {
	if h.IsNone() {
		return nil, nil
	}
	owner, c, err := r.lookupCT(h, op)
	if err != nil {
		return nil, err
	}
	if owner != n {
		return nil, ErrInvalidHandle{"counting event"}
	}
	return c, nil
}
