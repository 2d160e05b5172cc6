package ptl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func waitCT(t *testing.T, rt *Runtime, ct Handle, test uint64) CTEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := rt.CTWaitContext(ctx, ct, test)
	if err != nil {
		t.Fatalf("CTWaitContext(%d) failed: %v", test, err)
	}
	return got
}

func TestTriggeredCTIncFiresOnce(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	trig := ep.counter(t)
	target := ep.counter(t)
	fence := ep.counter(t)

	if err := ep.rt.TriggeredCTInc(target, CTEvent{Success: 1}, trig, 2); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := ep.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	if got, _ := ep.rt.CTGet(target); got.Success != 0 {
		t.Fatalf("trigger fired below its threshold: %+v", got)
	}
	if err := ep.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	waitCT(t, ep.rt, target, 1)

	if err := ep.rt.TriggeredCTInc(fence, CTEvent{Success: 1}, trig, 3); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := ep.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	waitCT(t, ep.rt, fence, 1)
	if got, _ := ep.rt.CTGet(target); got.Success != 1 {
		t.Fatalf("expected trigger to fire exactly once, got %+v", got)
	}
	if fired, err := ep.rt.TriggeredFired(ep.ni); err != nil || fired != 2 {
		t.Fatalf("expected 2 dispatched triggers, got %d, %v", fired, err)
	}
}

func TestTriggeredReleasedInRegistrationOrder(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	trig := ep.counter(t)
	target := ep.counter(t)

	if err := ep.rt.TriggeredCTSet(target, CTEvent{Success: 10}, trig, 1); err != nil {
		t.Fatalf("TriggeredCTSet failed: %v", err)
	}
	if err := ep.rt.TriggeredCTInc(target, CTEvent{Success: 5}, trig, 1); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := ep.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	if got := waitCT(t, ep.rt, target, 15); got.Success != 15 {
		t.Fatalf("expected set then increment, got %+v", got)
	}
}

func TestTriggeredThresholdAlreadyMet(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	trig := ep.counter(t)
	target := ep.counter(t)
	if err := ep.rt.CTSet(trig, CTEvent{Success: 4}); err != nil {
		t.Fatalf("CTSet failed: %v", err)
	}
	if err := ep.rt.TriggeredCTInc(target, CTEvent{Success: 1}, trig, 3); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	waitCT(t, ep.rt, target, 1)
}

func TestTriggeredPutPinsMD(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	dst := make([]byte, 4)
	tgt.appendME(t, pt, anyME(dst, MEOpPut|MEEventLinkDisable, 0), PriorityList, nil)

	trig := ini.counter(t)
	done := ini.counter(t)
	fence := ini.counter(t)
	md := ini.bind(t, []byte("trig"), MDEventSendDisable|MDEventCTAck, done)
	put := PutRequest{MD: md, Length: 4, AckReq: CTAckReq, Target: tgt.id, PTIndex: pt}
	if err := ini.rt.TriggeredPut(put, trig, 1); err != nil {
		t.Fatalf("TriggeredPut failed: %v", err)
	}
	if err := ini.rt.TriggeredCTInc(fence, CTEvent{Success: 1}, trig, 1); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := ini.rt.MDRelease(md); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse while triggered put is pending, got %v", err)
	}
	if string(dst) != "\x00\x00\x00\x00" {
		t.Fatalf("put ran before its trigger: %q", dst)
	}

	if err := ini.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	waitCT(t, ini.rt, done, 1)
	waitCT(t, ini.rt, fence, 1)
	if string(dst) != "trig" {
		t.Fatalf("expected triggered put to land, got %q", dst)
	}
	tgt.next(t, EventPut)
	if err := ini.rt.MDRelease(md); err != nil {
		t.Fatalf("MDRelease after firing failed: %v", err)
	}
}

func TestCTCancelTriggered(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	trig := ini.counter(t)
	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)

	if err := ini.rt.TriggeredPut(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt}, trig, 1); err != nil {
		t.Fatalf("TriggeredPut failed: %v", err)
	}
	if err := ini.rt.CTCancelTriggered(trig); err != nil {
		t.Fatalf("CTCancelTriggered failed: %v", err)
	}
	if err := ini.rt.MDRelease(md); err != nil {
		t.Fatalf("MDRelease after cancel failed: %v", err)
	}
	if err := ini.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	tgt.expectEmpty(t)
}

func TestTriggeredValidationAtRegistration(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	trig := ep.counter(t)
	md := ep.bind(t, make([]byte, 4), 0, CTNone)

	if err := ep.rt.TriggeredPut(PutRequest{MD: md, Length: 8, Target: ep.id}, trig, 1); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected oversize put to be rejected, got %v", err)
	}
	if err := ep.rt.TriggeredPut(PutRequest{MD: md, Length: 4, Target: ep.id}, InvalidHandle, 1); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected missing trigger counter to be rejected, got %v", err)
	}
	if err := ep.rt.TriggeredCTInc(trig, CTEvent{Success: 1, Failure: 1}, trig, 1); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected mixed increment to be rejected, got %v", err)
	}
	if err := ep.rt.MDRelease(md); err != nil {
		t.Fatalf("rejected registrations must not pin the MD: %v", err)
	}
}

func TestMaxTriggeredOps(t *testing.T) {
	rt := newTestRuntime(t, NewFabric())
	ni, _, err := rt.NIInit(IfaceDefault, matchingPhys, PIDAny, &Limits{MaxTriggeredOps: 1})
	if err != nil {
		t.Fatalf("NIInit failed: %v", err)
	}
	trig, err := rt.CTAlloc(ni)
	if err != nil {
		t.Fatalf("CTAlloc failed: %v", err)
	}
	target, err := rt.CTAlloc(ni)
	if err != nil {
		t.Fatalf("CTAlloc failed: %v", err)
	}
	if err := rt.TriggeredCTInc(target, CTEvent{Success: 1}, trig, 5); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := rt.TriggeredCTInc(target, CTEvent{Success: 1}, trig, 5); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expected ErrNoSpace, got %v", err)
	}
	if err := rt.CTCancelTriggered(trig); err != nil {
		t.Fatalf("CTCancelTriggered failed: %v", err)
	}
	if err := rt.TriggeredCTInc(target, CTEvent{Success: 1}, trig, 5); err != nil {
		t.Fatalf("expected capacity to be returned after cancel: %v", err)
	}
}

func TestTriggeredFailureIsLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ep := setupEndpoint(t, NewFabric(), matchingPhys, WithLogger(zap.New(core)))
	trig := ep.counter(t)
	target := ep.counter(t)
	fence := ep.counter(t)

	if err := ep.rt.TriggeredCTInc(target, CTEvent{Success: 1}, trig, 1); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := ep.rt.TriggeredCTInc(fence, CTEvent{Success: 1}, trig, 1); err != nil {
		t.Fatalf("TriggeredCTInc failed: %v", err)
	}
	if err := ep.rt.CTFree(target); err != nil {
		t.Fatalf("CTFree failed: %v", err)
	}
	if err := ep.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	waitCT(t, ep.rt, fence, 1)

	failures, err := ep.rt.TriggeredFailures(ep.ni)
	if err != nil {
		t.Fatalf("TriggeredFailures failed: %v", err)
	}
	if failures != 1 {
		t.Fatalf("expected one failure, got %d", failures)
	}
	if n := logs.FilterMessage("triggered operation failed").FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Fatalf("expected one error record, got %d", n)
	}
}

func TestTriggeredArmAfterMDReleaseFails(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	trig := ini.counter(t)
	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)

	// Resolve the operation first, then release its MD before it is armed.
	o, err := ini.rt.preparePut(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt}, "PtlTriggeredPut")
	if err != nil {
		t.Fatalf("preparePut failed: %v", err)
	}
	if err := ini.rt.MDRelease(md); err != nil {
		t.Fatalf("MDRelease failed: %v", err)
	}
	if err := ini.rt.armOperation(o, trig, 1); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected invalid handle when arming a released MD, got %v", err)
	}
	if n := o.ni.triggered.Load(); n != 0 {
		t.Fatalf("rejected trigger still counted: %d", n)
	}
}

func TestTriggeredPutRacingMDRelease(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	trig := ini.counter(t)

	for i := 0; i < 200; i++ {
		md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)
		put := PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt}

		var (
			wg         sync.WaitGroup
			putErr     error
			releaseErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			putErr = ini.rt.TriggeredPut(put, trig, 1<<40)
		}()
		go func() {
			defer wg.Done()
			releaseErr = ini.rt.MDRelease(md)
		}()
		wg.Wait()

		switch {
		case putErr == nil && releaseErr == nil:
			t.Fatalf("iteration %d: MD released while a triggered put holds it", i)
		case putErr == nil:
			if !errors.Is(releaseErr, ErrInUse) {
				t.Fatalf("iteration %d: expected ErrInUse, got %v", i, releaseErr)
			}
			if err := ini.rt.CTCancelTriggered(trig); err != nil {
				t.Fatalf("CTCancelTriggered failed: %v", err)
			}
			if err := ini.rt.MDRelease(md); err != nil {
				t.Fatalf("MDRelease after cancel failed: %v", err)
			}
		case releaseErr == nil:
			if !errors.Is(putErr, ErrArgInvalid) {
				t.Fatalf("iteration %d: expected invalid handle, got %v", i, putErr)
			}
		default:
			t.Fatalf("iteration %d: both failed: %v / %v", i, putErr, releaseErr)
		}
	}
}

func TestTriggersReleasedAfterDispatcherStopAreDiscarded(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	trig := ini.counter(t)
	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)

	if err := ini.rt.TriggeredPut(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt}, trig, 1); err != nil {
		t.Fatalf("TriggeredPut failed: %v", err)
	}
	n, _, err := ini.rt.lookupMD(md, "test")
	if err != nil {
		t.Fatalf("lookupMD failed: %v", err)
	}
	if left := n.dispatch.shutdown(); len(left) != 0 {
		t.Fatalf("expected an idle dispatcher, %d triggers were queued", len(left))
	}
	if err := ini.rt.CTInc(trig, CTEvent{Success: 1}); err != nil {
		t.Fatalf("CTInc failed: %v", err)
	}
	if got := n.triggered.Load(); got != 0 {
		t.Fatalf("trigger released into a stopped dispatcher still counted: %d", got)
	}
	if err := ini.rt.MDRelease(md); err != nil {
		t.Fatalf("MD still pinned after its trigger was discarded: %v", err)
	}
}
