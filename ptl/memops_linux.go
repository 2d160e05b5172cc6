//go:build linux

package ptl

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinnedMemOps allocates staging buffers from anonymous mappings and pins
// bound regions with mlock(2) so they stay resident while the engine may
// touch them. Pinning is subject to RLIMIT_MEMLOCK.
type PinnedMemOps struct{}

// Alloc maps a private anonymous region of at least size bytes.
func (PinnedMemOps) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return []byte{}, nil
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("portals: mmap %d bytes: %w", size, err)
	}
	return buf, nil
}

// Free unmaps a buffer returned by Alloc.
func (PinnedMemOps) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	_ = unix.Munmap(buf[:cap(buf)])
}

// Lock pins buf in physical memory.
func (PinnedMemOps) Lock(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := unix.Mlock(buf); err != nil {
		return fmt.Errorf("portals: mlock: %w", err)
	}
	return nil
}

// Unlock releases a pin taken by Lock.
func (PinnedMemOps) Unlock(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := unix.Munlock(buf); err != nil {
		return fmt.Errorf("portals: munlock: %w", err)
	}
	return nil
}
