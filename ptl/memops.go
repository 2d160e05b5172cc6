package ptl

// MemOps is the memory-management hook. The engine allocates its internal
// staging buffers through Alloc and Free, and calls Lock and Unlock on every
// region bound to an MD or linked as an ME/LE for as long as the binding
// lives.
type MemOps interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
	Lock(buf []byte) error
	Unlock(buf []byte) error
}

// HeapMemOps allocates from the Go heap and never pins memory.
type HeapMemOps struct{}

// Alloc returns a zeroed slice of the requested size.
func (HeapMemOps) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Free is a no-op; the garbage collector reclaims the buffer.
func (HeapMemOps) Free([]byte) {}

// Lock is a no-op.
func (HeapMemOps) Lock([]byte) error { return nil }

// Unlock is a no-op.
func (HeapMemOps) Unlock([]byte) error { return nil }

func lockRegion(ops MemOps, r region) error {
	for i, seg := range r.segs {
		if err := ops.Lock(seg); err != nil {
			for _, prev := range r.segs[:i] {
				_ = ops.Unlock(prev)
			}
			return err
		}
	}
	return nil
}

func unlockRegion(ops MemOps, r region) {
	for _, seg := range r.segs {
		_ = ops.Unlock(seg)
	}
}
