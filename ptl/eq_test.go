package ptl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEQEmptyAndDropped(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	eq, err := ep.rt.EQAlloc(ep.ni, 2)
	if err != nil {
		t.Fatalf("EQAlloc failed: %v", err)
	}
	if _, err := ep.rt.EQGet(eq); !errors.Is(err, ErrEQEmpty) {
		t.Fatalf("expected ErrEQEmpty, got %v", err)
	}

	pt, err := ep.rt.PTAlloc(ep.ni, 0, eq, PTAny)
	if err != nil {
		t.Fatalf("PTAlloc failed: %v", err)
	}
	for i := 1; i <= 3; i++ {
		me := anyME(make([]byte, 4), MEOpPut, uint64(i))
		if _, err := ep.rt.MEAppend(ep.ni, pt, &me, PriorityList, i); err != nil {
			t.Fatalf("MEAppend failed: %v", err)
		}
	}

	ev, err := ep.rt.EQGet(eq)
	if !errors.Is(err, ErrEQDropped) {
		t.Fatalf("expected ErrEQDropped, got %v", err)
	}
	if ev.UserPtr != 2 {
		t.Fatalf("expected oldest surviving event, got %v", ev.UserPtr)
	}
	ev, err = ep.rt.EQGet(eq)
	if err != nil {
		t.Fatalf("expected dropped flag to clear, got %v", err)
	}
	if ev.UserPtr != 3 {
		t.Fatalf("expected newest event, got %v", ev.UserPtr)
	}
	if _, err := ep.rt.EQGet(eq); !errors.Is(err, ErrEQEmpty) {
		t.Fatalf("expected ErrEQEmpty, got %v", err)
	}
}

func TestEQAllocValidation(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	if _, err := ep.rt.EQAlloc(ep.ni, 0); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected zero capacity to fail, got %v", err)
	}
	if _, err := ep.rt.EQAlloc(ep.eq, 4); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected non-NI handle to fail, got %v", err)
	}
}

func TestEQPollTimeout(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	start := time.Now()
	_, idx, err := ep.rt.EQPoll([]Handle{ep.eq}, 20*time.Millisecond)
	if !errors.Is(err, ErrEQEmpty) {
		t.Fatalf("expected ErrEQEmpty on timeout, got %v", err)
	}
	if idx != -1 {
		t.Fatalf("expected index -1, got %d", idx)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("EQPoll returned before its timeout")
	}
	if _, _, err := ep.rt.EQPoll([]Handle{ep.eq}, 0); !errors.Is(err, ErrEQEmpty) {
		t.Fatalf("expected immediate ErrEQEmpty, got %v", err)
	}
}

func TestEQPollReturnsReadyQueue(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	other, err := ep.rt.EQAlloc(ep.ni, 4)
	if err != nil {
		t.Fatalf("EQAlloc failed: %v", err)
	}
	pt, err := ep.rt.PTAlloc(ep.ni, 0, other, PTAny)
	if err != nil {
		t.Fatalf("PTAlloc failed: %v", err)
	}

	done := make(chan struct{})
	var (
		ev  Event
		idx int
		perr error
	)
	go func() {
		defer close(done)
		ev, idx, perr = ep.rt.EQPoll([]Handle{ep.eq, other}, TimeForever)
	}()

	time.Sleep(10 * time.Millisecond)
	me := anyME(make([]byte, 4), MEOpPut, 0)
	if _, err := ep.rt.MEAppend(ep.ni, pt, &me, PriorityList, "wake"); err != nil {
		t.Fatalf("MEAppend failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("EQPoll did not wake up")
	}
	if perr != nil {
		t.Fatalf("EQPoll failed: %v", perr)
	}
	if idx != 1 || ev.Type != EventLink || ev.UserPtr != "wake" {
		t.Fatalf("unexpected poll result idx=%d ev=%+v", idx, ev)
	}
}

func TestEQWaitContextCancel(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := ep.rt.EQWaitContext(ctx, ep.eq); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEQFreeInterruptsWaiter(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	errCh := make(chan error, 1)
	go func() {
		_, err := ep.rt.EQWait(ep.eq)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := ep.rt.EQFree(ep.eq); err != nil {
		t.Fatalf("EQFree failed: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter was not released")
	}
	if _, err := ep.rt.EQGet(ep.eq); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected freed queue handle to be invalid, got %v", err)
	}
}

func TestNIFiniInterruptsWaiters(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	ct := ep.counter(t)
	errCh := make(chan error, 2)
	go func() {
		_, err := ep.rt.EQWait(ep.eq)
		errCh <- err
	}()
	go func() {
		_, err := ep.rt.CTWait(ct, 10)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := ep.rt.NIFini(ep.ni); err != nil {
		t.Fatalf("NIFini failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrInterrupted) {
				t.Fatalf("expected ErrInterrupted, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter was not released")
		}
	}
}
