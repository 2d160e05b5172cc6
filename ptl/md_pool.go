package ptl

import (
	"errors"
	"sync/atomic"
)

// PooledMD is a memory descriptor bound over a buffer owned by an MDPool.
type PooledMD struct {
	Handle Handle
	Buf    []byte
}

// MDPool manages reusable memory descriptors of a fixed size.
type MDPool struct {
	rt     *Runtime
	ni     Handle
	size   int
	tmpl   MD
	pool   chan *PooledMD
	closed atomic.Bool
}

// NewMDPool constructs a pool that dispenses descriptors bound on ni. Each
// descriptor takes its EQ, CT and options from tmpl and its memory from the
// runtime's MemOps. Descriptors are provisioned lazily; up to capacity idle
// ones are retained.
func (r *Runtime) NewMDPool(ni Handle, size int, tmpl MD, capacity int) (*MDPool, error) {
	if _, err := r.niFor(ni, "NewMDPool"); err != nil {
		return nil, err
	}
	if size <= 0 || tmpl.Options&IOVec != 0 {
		return nil, ErrArgInvalid.WithOp("NewMDPool")
	}
	if capacity < 0 {
		capacity = 0
	}
	tmpl.Start, tmpl.IOVecs = nil, nil
	return &MDPool{
		rt:   r,
		ni:   ni,
		size: size,
		tmpl: tmpl,
		pool: make(chan *PooledMD, capacity),
	}, nil
}

// Size reports the buffer length of every pooled descriptor.
func (p *MDPool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}

// Acquire returns a bound descriptor from the pool, binding a new one when
// the pool is empty. Callers must Release it when finished.
func (p *MDPool) Acquire() (*PooledMD, error) {
	if p == nil {
		return nil, errors.New("portals: nil MDPool")
	}
	if p.closed.Load() {
		return nil, errors.New("portals: MDPool closed")
	}
	select {
	case md := <-p.pool:
		return md, nil
	default:
	}
	buf, err := p.rt.scratch(uint64(p.size))
	if err != nil {
		return nil, ErrNoSpace.WithOp("MDPool.Acquire")
	}
	desc := p.tmpl
	desc.Start = buf
	h, err := p.rt.MDBind(p.ni, &desc)
	if err != nil {
		p.rt.release(buf)
		return nil, err
	}
	return &PooledMD{Handle: h, Buf: buf}, nil
}

// Release returns the descriptor for reuse. Descriptors that do not fit the
// pool, or arrive once it is closed or full, are unbound and freed.
func (p *MDPool) Release(md *PooledMD) {
	if p == nil || md == nil {
		return
	}
	if p.closed.Load() || len(md.Buf) != p.size {
		p.discard(md)
		return
	}
	select {
	case p.pool <- md:
	default:
		p.discard(md)
	}
}

// Close unbinds every idle descriptor and prevents further acquisitions.
func (p *MDPool) Close() {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case md := <-p.pool:
			p.discard(md)
		default:
			return
		}
	}
}

func (p *MDPool) discard(md *PooledMD) {
	if err := p.rt.MDRelease(md.Handle); err != nil && errors.Is(err, ErrInUse) {
		return
	}
	p.rt.release(md.Buf)
}
