//go:build linux

package ptl

import (
	"bytes"
	"testing"
)

func TestPinnedMemOps(t *testing.T) {
	var ops PinnedMemOps
	buf, err := ops.Alloc(4096)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	defer ops.Free(buf)
	if len(buf) != 4096 {
		t.Fatalf("expected 4096 bytes, got %d", len(buf))
	}
	if err := ops.Lock(buf); err != nil {
		t.Skipf("mlock unavailable: %v", err)
	}
	if err := ops.Unlock(buf); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
}

func TestPinnedMemOpsDrivesEngine(t *testing.T) {
	var ops PinnedMemOps
	probe, err := ops.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	lockErr := ops.Lock(probe)
	if lockErr == nil {
		_ = ops.Unlock(probe)
	}
	ops.Free(probe)
	if lockErr != nil {
		t.Skipf("mlock unavailable: %v", lockErr)
	}

	f := NewFabric()
	ini := setupEndpoint(t, f, matchingPhys, WithMemOps(ops))
	tgt := setupEndpoint(t, f, matchingPhys, WithMemOps(ops))
	pt := tgt.portal(t, 0)
	dst := make([]byte, 8)
	tgt.appendME(t, pt, anyME(dst, MEOpPut|MEEventLinkDisable, 0), PriorityList, nil)
	md := ini.bind(t, []byte("pinned!!"), MDEventSendDisable, CTNone)
	if err := ini.rt.Put(PutRequest{MD: md, Length: 8, Target: tgt.id, PTIndex: pt}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !bytes.Equal(dst, []byte("pinned!!")) {
		t.Fatalf("unexpected target contents %q", dst)
	}
}
