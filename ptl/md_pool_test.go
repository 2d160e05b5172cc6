package ptl

import (
	"errors"
	"testing"
)

func TestMDPoolAcquireRelease(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)

	pool, err := ep.rt.NewMDPool(ep.ni, 64, MD{Options: MDEventSendDisable, EQ: ep.eq}, 2)
	if err != nil {
		t.Fatalf("NewMDPool failed: %v", err)
	}
	defer pool.Close()

	md1, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if md1 == nil || len(md1.Buf) != 64 {
		t.Fatalf("unexpected descriptor from pool")
	}
	pool.Release(md1)

	md2, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if md2.Handle != md1.Handle {
		t.Fatalf("expected pooled descriptor to be reused")
	}
	pool.Release(md2)
}

func TestMDPoolClose(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)

	pool, err := ep.rt.NewMDPool(ep.ni, 32, MD{}, 1)
	if err != nil {
		t.Fatalf("NewMDPool failed: %v", err)
	}
	md, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.Release(md)
	pool.Close()

	if _, err := pool.Acquire(); err == nil {
		t.Fatalf("expected error acquiring from closed pool")
	}
	if err := ep.rt.MDRelease(md.Handle); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected Close to unbind idle descriptors, got %v", err)
	}
	pool.Release(&PooledMD{Handle: InvalidHandle, Buf: make([]byte, 16)})
}

func TestNewMDPoolValidation(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	if _, err := ep.rt.NewMDPool(ep.ni, 0, MD{}, 1); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected zero size to fail, got %v", err)
	}
	if _, err := ep.rt.NewMDPool(ep.eq, 8, MD{}, 1); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected non-NI handle to fail, got %v", err)
	}
}
