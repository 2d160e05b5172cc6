package ptl

import (
	"sync"
	"sync/atomic"
)

// Fabric is the in-process network that connects runtimes. NIs register
// under their (nid, pid, kind) address; a message whose target is not
// registered is undeliverable.
type Fabric struct {
	nextNID atomic.Uint32

	mu     sync.RWMutex
	owners map[procKey]uint32
	nis    map[niKey]*netIface
}

type procKey struct {
	nid uint32
	pid uint32
}

type niKey struct {
	nid  uint32
	pid  uint32
	kind uint32
}

// NewFabric returns an empty fabric.
func NewFabric() *Fabric {
	return &Fabric{
		owners: make(map[procKey]uint32),
		nis:    make(map[niKey]*netIface),
	}
}

func (f *Fabric) allocNID() uint32 {
	return f.nextNID.Add(1)
}

// claimPID reserves (nid, pid) for the runtime identified by owner. PIDAny
// picks the lowest free pid.
func (f *Fabric) claimPID(nid, pid, owner uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pid == PIDAny {
		for p := uint32(1); p <= PIDMax; p++ {
			if _, taken := f.owners[procKey{nid, p}]; !taken {
				f.owners[procKey{nid, p}] = owner
				return p, nil
			}
		}
		return 0, ErrPIDInUse
	}
	if cur, taken := f.owners[procKey{nid, pid}]; taken && cur != owner {
		return 0, ErrPIDInUse
	}
	f.owners[procKey{nid, pid}] = owner
	return pid, nil
}

func (f *Fabric) releasePID(nid, pid uint32) {
	f.mu.Lock()
	delete(f.owners, procKey{nid, pid})
	f.mu.Unlock()
}

func (f *Fabric) register(n *netIface) {
	f.mu.Lock()
	f.nis[niKey{n.rt.nid, n.pid, n.options}] = n
	f.mu.Unlock()
}

func (f *Fabric) unregister(n *netIface) {
	f.mu.Lock()
	key := niKey{n.rt.nid, n.pid, n.options}
	if f.nis[key] == n {
		delete(f.nis, key)
	}
	f.mu.Unlock()
}

func (f *Fabric) lookup(nid, pid, kind uint32) *netIface {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nis[niKey{nid, pid, kind}]
}
