package ptl

import (
	"errors"
	"testing"
)

const matchingPhys = NIMatching | NIPhysical

type endpoint struct {
	rt *Runtime
	ni Handle
	eq Handle
	id Process
}

func newTestRuntime(t *testing.T, f *Fabric, opts ...Option) *Runtime {
	t.Helper()
	rt, err := Init(append([]Option{WithFabric(f)}, opts...)...)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(rt.Fini)
	return rt
}

func setupEndpoint(t *testing.T, f *Fabric, options uint32, opts ...Option) *endpoint {
	t.Helper()
	rt := newTestRuntime(t, f, opts...)
	ni, _, err := rt.NIInit(IfaceDefault, options, PIDAny, nil)
	if err != nil {
		t.Fatalf("NIInit failed: %v", err)
	}
	eq, err := rt.EQAlloc(ni, 64)
	if err != nil {
		t.Fatalf("EQAlloc failed: %v", err)
	}
	id, err := rt.GetPhysID(ni)
	if err != nil {
		t.Fatalf("GetPhysID failed: %v", err)
	}
	return &endpoint{rt: rt, ni: ni, eq: eq, id: id}
}

func setupPair(t *testing.T) (*endpoint, *endpoint) {
	t.Helper()
	f := NewFabric()
	return setupEndpoint(t, f, matchingPhys), setupEndpoint(t, f, matchingPhys)
}

func (e *endpoint) portal(t *testing.T, options uint32) uint32 {
	t.Helper()
	idx, err := e.rt.PTAlloc(e.ni, options, e.eq, PTAny)
	if err != nil {
		t.Fatalf("PTAlloc failed: %v", err)
	}
	return idx
}

func (e *endpoint) bind(t *testing.T, buf []byte, options uint32, ct Handle) Handle {
	t.Helper()
	md, err := e.rt.MDBind(e.ni, &MD{Start: buf, Options: options, EQ: e.eq, CT: ct})
	if err != nil {
		t.Fatalf("MDBind failed: %v", err)
	}
	return md
}

func (e *endpoint) appendME(t *testing.T, pt uint32, me ME, list int32, userPtr any) Handle {
	t.Helper()
	h, err := e.rt.MEAppend(e.ni, pt, &me, list, userPtr)
	if err != nil {
		t.Fatalf("MEAppend failed: %v", err)
	}
	return h
}

func (e *endpoint) counter(t *testing.T) Handle {
	t.Helper()
	ct, err := e.rt.CTAlloc(e.ni)
	if err != nil {
		t.Fatalf("CTAlloc failed: %v", err)
	}
	return ct
}

func (e *endpoint) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	ev, err := e.rt.EQGet(e.eq)
	if err != nil {
		t.Fatalf("EQGet failed waiting for %s: %v", kind, err)
	}
	if ev.Type != kind {
		t.Fatalf("expected %s, got %s (fail %s)", kind, ev.Type, ev.NIFailType)
	}
	return ev
}

func (e *endpoint) expectEmpty(t *testing.T) {
	t.Helper()
	if ev, err := e.rt.EQGet(e.eq); !errors.Is(err, ErrEQEmpty) {
		t.Fatalf("expected empty queue, got %s (err %v)", ev.Type, err)
	}
}

func anyME(buf []byte, options uint32, bits uint64) ME {
	return ME{
		Start:     buf,
		UID:       UIDAny,
		Options:   options,
		MatchID:   Process{NID: NIDAny, PID: PIDAny, Rank: RankAny},
		MatchBits: bits,
		CT:        CTNone,
	}
}

// catchAll accepts any match bits, as overflow entries usually do.
func catchAll(buf []byte, options uint32) ME {
	me := anyME(buf, options, 0)
	me.IgnoreBits = ^uint64(0)
	return me
}
