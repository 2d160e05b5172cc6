package ptl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCTIncAndWait(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	ct := ep.counter(t)

	if err := ep.rt.CTInc(ct, CTEvent{Success: 5}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	if err := ep.rt.CTInc(ct, CTEvent{Success: 3}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	got, err := ep.rt.CTGet(ct)
	if err != nil {
		t.Fatalf("CTGet failed: %v", err)
	}
	if got != (CTEvent{Success: 8}) {
		t.Fatalf("expected {8 0}, got %+v", got)
	}
	got, err = ep.rt.CTWait(ct, 8)
	if err != nil || got.Success != 8 {
		t.Fatalf("CTWait returned %+v, %v", got, err)
	}
	if err := ep.rt.CTInc(ct, CTEvent{Success: 1, Failure: 1}); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected ErrArgInvalid for mixed increment, got %v", err)
	}
	if err := ep.rt.CTSet(ct, CTEvent{Success: 2}); err != nil {
		t.Fatalf("CTSet failed: %v", err)
	}
	if got, _ := ep.rt.CTGet(ct); got.Success != 2 {
		t.Fatalf("expected CTSet to overwrite, got %+v", got)
	}
}

func TestCTWaitReturnsOnFailure(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	ct := ep.counter(t)
	if err := ep.rt.CTInc(ct, CTEvent{Failure: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	got, err := ep.rt.CTWait(ct, 100)
	if err != nil {
		t.Fatalf("CTWait failed: %v", err)
	}
	if got.Failure != 1 || got.Success != 0 {
		t.Fatalf("expected failure to end the wait, got %+v", got)
	}
}

func TestCTWaitWakesOnIncrement(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	ct := ep.counter(t)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = ep.rt.CTInc(ct, CTEvent{Success: 4})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := ep.rt.CTWaitContext(ctx, ct, 4)
	if err != nil {
		t.Fatalf("CTWaitContext failed: %v", err)
	}
	if got.Success != 4 {
		t.Fatalf("expected 4, got %+v", got)
	}
}

func TestCTPoll(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	a := ep.counter(t)
	b := ep.counter(t)

	if _, idx, err := ep.rt.CTPoll([]Handle{a, b}, []uint64{1, 1}, 10*time.Millisecond); !errors.Is(err, ErrCTNoneReached) || idx != -1 {
		t.Fatalf("expected ErrCTNoneReached, got idx=%d err=%v", idx, err)
	}
	if err := ep.rt.CTInc(b, CTEvent{Success: 2}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	got, idx, err := ep.rt.CTPoll([]Handle{a, b}, []uint64{1, 2}, TimeForever)
	if err != nil {
		t.Fatalf("CTPoll failed: %v", err)
	}
	if idx != 1 || got.Success != 2 {
		t.Fatalf("expected second counter, got idx=%d %+v", idx, got)
	}
	if _, _, err := ep.rt.CTPoll([]Handle{a}, []uint64{1, 2}, 0); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected mismatched tests to fail, got %v", err)
	}
}

func TestCTFree(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	ct := ep.counter(t)
	if err := ep.rt.CTFree(ct); err != nil {
		t.Fatalf("CTFree failed: %v", err)
	}
	if _, err := ep.rt.CTGet(ct); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected freed counter to be invalid, got %v", err)
	}
	again := ep.counter(t)
	if HandleIsEqual(ct, again) {
		t.Fatalf("reused slot must not produce an equal handle")
	}
}
