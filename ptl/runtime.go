// Package ptl implements an in-process Portals4 engine: network interfaces,
// portal tables with matching lists, memory descriptors, event queues,
// counting events and triggered operations.
package ptl

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rocketbitz/portals4-go/internal/handle"
)

var runtimeSerial atomic.Uint32

// Runtime is the context object created by Init. Every operation of the
// interface is a method on it; after Fini they all fail with ErrNoInit.
type Runtime struct {
	id          uuid.UUID
	serial      uint32
	nid         uint32
	uid         uint32
	fabric      *Fabric
	mem         MemOps
	logger      *zap.Logger
	backlogWarn int
	defLimits   Limits

	nis *handle.Table[*netIface]

	mu     sync.Mutex
	pid    uint32
	byKind map[uint32]handle.Ref
	closed bool
}

// Init creates a runtime.
func Init(opts ...Option) (*Runtime, error) {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.resolve()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, ErrFail.WithOp("PtlInit")
	}
	def := DefaultLimits
	if cfg.defaultLimit != nil {
		def = negotiate(cfg.defaultLimit, DefaultLimits)
	}
	rt := &Runtime{
		id:          id,
		serial:      runtimeSerial.Add(1),
		nid:         cfg.nid,
		uid:         *cfg.uid,
		fabric:      cfg.fabric,
		mem:         cfg.memOps,
		backlogWarn: cfg.backlogWarn,
		defLimits:   def,
		nis:         handle.NewTable[*netIface](4),
		byKind:      make(map[uint32]handle.Ref),
	}
	rt.logger = cfg.logger.With(zap.String("runtime_id", id.String()), zap.Uint32("nid", rt.nid))
	rt.logger.Debug("runtime initialized", zap.Uint32("uid", rt.uid))
	return rt, nil
}

// ID returns the runtime's unique identifier.
func (r *Runtime) ID() string {
	return r.id.String()
}

// NID returns the node identifier the runtime registered on its fabric.
func (r *Runtime) NID() uint32 {
	return r.nid
}

// Fabric returns the fabric the runtime is attached to.
func (r *Runtime) Fabric() *Fabric {
	return r.fabric
}

// Fini tears down every NI the runtime still holds. It is safe to call more
// than once.
func (r *Runtime) Fini() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.byKind = make(map[uint32]handle.Ref)
	pid := r.pid
	r.pid = PIDAny
	r.mu.Unlock()

	for _, n := range r.nis.Drain() {
		n.teardown()
	}
	if pid != PIDAny {
		r.fabric.releasePID(r.nid, pid)
	}
	r.logger.Debug("runtime finalized")
}

// Abort reports a catastrophic inconsistency and terminates the process.
func (r *Runtime) Abort() {
	r.logger.Fatal("PtlAbort called", zap.Int("live_nis", r.nis.Len()))
}

func (r *Runtime) checkOpen(op string) error {
	if r == nil {
		return ErrNoInit.WithOp(op)
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrNoInit.WithOp(op)
	}
	return nil
}

func (r *Runtime) scratch(n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf, err := r.mem.Alloc(int(n))
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) < n {
		r.mem.Free(buf)
		return nil, ErrNoSpace
	}
	return buf[:n], nil
}

func (r *Runtime) release(buf []byte) {
	if buf != nil {
		r.mem.Free(buf)
	}
}
