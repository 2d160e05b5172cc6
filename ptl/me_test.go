package ptl

import (
	"errors"
	"testing"
)

func TestUnexpectedHeaderClaimedByPriorityAppend(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	overflow := make([]byte, 64)
	tgt.appendME(t, pt, catchAll(overflow, MEOpPut|MEEventLinkDisable), OverflowList, "overflow")
	tgt.appendME(t, pt, catchAll(overflow, MEOpPut|MEEventLinkDisable), OverflowList, "spare")

	md := ini.bind(t, []byte("early"), MDEventSendDisable, CTNone)
	if err := ini.rt.Put(PutRequest{MD: md, Length: 5, Target: tgt.id, PTIndex: pt, MatchBits: 3, HdrData: 11}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	landed := tgt.next(t, EventPut)
	if landed.PtlList != OverflowList || landed.UserPtr != "overflow" {
		t.Fatalf("expected overflow landing, got %+v", landed)
	}

	tgt.appendME(t, pt, anyME(make([]byte, 8), MEOpPut, 3), PriorityList, "late")
	claimed := tgt.next(t, EventPutOverflow)
	if claimed.UserPtr != "late" || claimed.HdrData != 11 || claimed.MLength != 5 {
		t.Fatalf("unexpected overflow event %+v", claimed)
	}
	if string(claimed.Start) != "early" {
		t.Fatalf("expected event to reference overflow data, got %q", claimed.Start)
	}
	tgt.next(t, EventLink)
	tgt.expectEmpty(t)
}

func TestUseOnceAppendConsumesHeaderWithoutLinking(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	tgt.appendME(t, pt, catchAll(make([]byte, 64), MEOpPut|MEEventLinkDisable), OverflowList, nil)

	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)
	for i := 0; i < 2; i++ {
		if err := ini.rt.Put(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt, MatchBits: 8}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	tgt.next(t, EventPut)
	tgt.next(t, EventPut)

	h := tgt.appendME(t, pt, anyME(make([]byte, 4), MEOpPut|MEUseOnce, 8), PriorityList, "once")
	tgt.next(t, EventPutOverflow)
	tgt.next(t, EventAutoUnlink)
	tgt.expectEmpty(t)
	if err := tgt.rt.MEUnlink(h); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected consumed entry handle to be stale, got %v", err)
	}

	tgt.appendME(t, pt, anyME(make([]byte, 4), MEOpPut|MEUseOnce, 8), PriorityList, "again")
	tgt.next(t, EventPutOverflow)
	tgt.next(t, EventAutoUnlink)
}

func TestMESearch(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	tgt.appendME(t, pt, catchAll(make([]byte, 64), MEOpPut|MEEventLinkDisable), OverflowList, nil)

	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)
	for _, bits := range []uint64{1, 1, 2} {
		if err := ini.rt.Put(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt, MatchBits: bits}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		tgt.next(t, EventPut)
	}

	probe := anyME(nil, 0, 1)
	if err := tgt.rt.MESearch(tgt.ni, pt, &probe, SearchOnly, "look"); err != nil {
		t.Fatalf("MESearch failed: %v", err)
	}
	found := tgt.next(t, EventSearch)
	if found.NIFailType != NIOK || found.MatchBits != 1 || found.UserPtr != "look" {
		t.Fatalf("unexpected search event %+v", found)
	}
	tgt.expectEmpty(t)

	if err := tgt.rt.MESearch(tgt.ni, pt, &probe, SearchDelete, "take"); err != nil {
		t.Fatalf("MESearch delete failed: %v", err)
	}
	tgt.next(t, EventPutOverflow)
	tgt.next(t, EventPutOverflow)
	tgt.expectEmpty(t)

	if err := tgt.rt.MESearch(tgt.ni, pt, &probe, SearchOnly, nil); err != nil {
		t.Fatalf("MESearch failed: %v", err)
	}
	if miss := tgt.next(t, EventSearch); miss.NIFailType != NINoMatch {
		t.Fatalf("expected no match, got %s", miss.NIFailType)
	}
	if err := tgt.rt.MESearch(tgt.ni, pt, &probe, 7, nil); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected invalid search op to fail, got %v", err)
	}
}

func TestUnlinkRules(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	plain := tgt.appendME(t, pt, anyME(make([]byte, 4), MEOpPut|MEEventLinkDisable, 99), PriorityList, nil)
	backing := tgt.appendME(t, pt, catchAll(make([]byte, 64), MEOpPut|MEEventLinkDisable), OverflowList, nil)

	if err := tgt.rt.MEUnlink(plain); err != nil {
		t.Fatalf("MEUnlink failed: %v", err)
	}
	tgt.expectEmpty(t)
	if err := tgt.rt.MEUnlink(plain); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected stale handle error, got %v", err)
	}

	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)
	if err := ini.rt.Put(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt, MatchBits: 5}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	tgt.next(t, EventPut)
	if err := tgt.rt.MEUnlink(backing); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse while headers remain, got %v", err)
	}
	if err := tgt.rt.PTFree(tgt.ni, pt); !errors.Is(err, ErrPTInUse) {
		t.Fatalf("expected ErrPTInUse, got %v", err)
	}

	probe := anyME(nil, 0, 5)
	if err := tgt.rt.MESearch(tgt.ni, pt, &probe, SearchDelete, nil); err != nil {
		t.Fatalf("MESearch failed: %v", err)
	}
	tgt.next(t, EventPutOverflow)
	if err := tgt.rt.MEUnlink(backing); err != nil {
		t.Fatalf("MEUnlink after headers drained failed: %v", err)
	}
	if err := tgt.rt.PTFree(tgt.ni, pt); err != nil {
		t.Fatalf("PTFree failed: %v", err)
	}
}

func TestAutoFreeAfterZombieHeadersDrain(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	tgt.appendME(t, pt, catchAll(make([]byte, 4), MEOpPut|MEEventLinkDisable|MEUseOnce), OverflowList, "ov")

	md := ini.bind(t, make([]byte, 4), MDEventSendDisable, CTNone)
	if err := ini.rt.Put(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt, MatchBits: 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	tgt.next(t, EventPut)
	tgt.next(t, EventAutoUnlink)

	tgt.appendME(t, pt, anyME(make([]byte, 4), MEOpPut|MEEventLinkDisable, 1), PriorityList, nil)
	tgt.next(t, EventPutOverflow)
	if ev := tgt.next(t, EventAutoFree); ev.UserPtr != "ov" {
		t.Fatalf("expected auto free for overflow entry, got %v", ev.UserPtr)
	}
}

func TestListLimits(t *testing.T) {
	rt := newTestRuntime(t, NewFabric())
	ni, _, err := rt.NIInit(IfaceDefault, matchingPhys, PIDAny, &Limits{MaxListSize: 2})
	if err != nil {
		t.Fatalf("NIInit failed: %v", err)
	}
	pt, err := rt.PTAlloc(ni, 0, EQNone, PTAny)
	if err != nil {
		t.Fatalf("PTAlloc failed: %v", err)
	}
	me := anyME(make([]byte, 4), MEOpPut, 0)
	for i := 0; i < 2; i++ {
		if _, err := rt.MEAppend(ni, pt, &me, PriorityList, nil); err != nil {
			t.Fatalf("MEAppend %d failed: %v", i, err)
		}
	}
	if _, err := rt.MEAppend(ni, pt, &me, PriorityList, nil); !errors.Is(err, ErrListTooLong) {
		t.Fatalf("expected ErrListTooLong, got %v", err)
	}
	if _, err := rt.MEAppend(ni, pt, &me, OverflowList, nil); err != nil {
		t.Fatalf("overflow list should have its own budget: %v", err)
	}
}

func TestPortalOptionsConstrainEntries(t *testing.T) {
	ep := setupEndpoint(t, NewFabric(), matchingPhys)
	once, err := ep.rt.PTAlloc(ep.ni, PTOnlyUseOnce, EQNone, PTAny)
	if err != nil {
		t.Fatalf("PTAlloc failed: %v", err)
	}
	me := anyME(make([]byte, 4), MEOpPut, 0)
	if _, err := ep.rt.MEAppend(ep.ni, once, &me, PriorityList, nil); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected persistent entry to be rejected, got %v", err)
	}
	me.Options |= MEUseOnce
	if _, err := ep.rt.MEAppend(ep.ni, once, &me, PriorityList, nil); err != nil {
		t.Fatalf("MEAppend failed: %v", err)
	}

	if _, err := ep.rt.PTAlloc(ep.ni, PTFlowCtrl, EQNone, PTAny); !errors.Is(err, ErrPTEQNeeded) {
		t.Fatalf("expected ErrPTEQNeeded, got %v", err)
	}
	if _, err := ep.rt.PTAlloc(ep.ni, 0, EQNone, once); !errors.Is(err, ErrPTInUse) {
		t.Fatalf("expected ErrPTInUse, got %v", err)
	}
	if _, err := ep.rt.PTAlloc(ep.ni, 0, EQNone, 10000); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected out of range index to fail, got %v", err)
	}
}

func TestLEOnNonMatchingInterface(t *testing.T) {
	f := NewFabric()
	const nonMatching = NINoMatching | NIPhysical
	ini := setupEndpoint(t, f, nonMatching)
	tgt := setupEndpoint(t, f, nonMatching)
	pt := tgt.portal(t, 0)

	me := anyME(make([]byte, 4), MEOpPut, 0)
	if _, err := tgt.rt.MEAppend(tgt.ni, pt, &me, PriorityList, nil); !errors.Is(err, ErrArgInvalid) {
		t.Fatalf("expected MEAppend to be rejected on a non-matching interface, got %v", err)
	}
	buf := make([]byte, 4)
	le := &LE{Start: buf, UID: UIDAny, Options: MEOpPut | MEEventLinkDisable}
	h, err := tgt.rt.LEAppend(tgt.ni, pt, le, PriorityList, "le")
	if err != nil {
		t.Fatalf("LEAppend failed: %v", err)
	}

	md := ini.bind(t, []byte{9, 9, 9, 9}, MDEventSendDisable, CTNone)
	if err := ini.rt.Put(PutRequest{MD: md, Length: 4, Target: tgt.id, PTIndex: pt, MatchBits: 12345}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ev := tgt.next(t, EventPut); ev.UserPtr != "le" {
		t.Fatalf("expected list entry to receive, got %v", ev.UserPtr)
	}
	if buf[0] != 9 {
		t.Fatalf("expected data to land, got %v", buf)
	}
	if err := tgt.rt.LEUnlink(h); err != nil {
		t.Fatalf("LEUnlink failed: %v", err)
	}
}

func TestCTCommCountsTargetBytes(t *testing.T) {
	ini, tgt := setupPair(t)
	pt := tgt.portal(t, 0)
	ct := tgt.counter(t)
	me := anyME(make([]byte, 32), MEOpPut|MEEventLinkDisable|MEEventCommDisable|MEEventCTComm|MEEventCTBytes, 0)
	me.CT = ct
	tgt.appendME(t, pt, me, PriorityList, nil)

	md := ini.bind(t, make([]byte, 6), MDEventSendDisable, CTNone)
	for i := 0; i < 2; i++ {
		if err := ini.rt.Put(PutRequest{MD: md, Length: 6, Target: tgt.id, PTIndex: pt}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	got, err := tgt.rt.CTWait(ct, 12)
	if err != nil {
		t.Fatalf("CTWait failed: %v", err)
	}
	if got.Success != 12 {
		t.Fatalf("expected 12 bytes counted, got %+v", got)
	}
	tgt.expectEmpty(t)
}
