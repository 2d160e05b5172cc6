//go:build !linux

package ptl

// PinnedMemOps falls back to heap allocation on platforms without mlock
// support in this package.
type PinnedMemOps struct {
	HeapMemOps
}
