package abi

import (
	"errors"
	"strings"
	"testing"
)

func TestErrnoNamesDistinct(t *testing.T) {
	seen := make(map[string]Errno)
	for _, code := range Errnos() {
		name := code.Name()
		if name == "" {
			t.Fatalf("empty name for %d", int32(code))
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("codes %d and %d share name %q", int32(prev), int32(code), name)
		}
		seen[name] = code
	}
	if len(seen) != len(errnoNames) {
		t.Fatalf("Errnos lists %d codes, table has %d", len(seen), len(errnoNames))
	}
}

func TestErrnoWithOp(t *testing.T) {
	err := NoSpace.WithOp("PtlMEAppend")
	if !errors.Is(err, NoSpace) {
		t.Fatalf("expected errors.Is to match NoSpace, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "PtlMEAppend: PTL_NO_SPACE") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if NoSpace.WithOp("") != error(NoSpace) {
		t.Fatalf("empty op should return the bare code")
	}
}

func TestErrnoUnknown(t *testing.T) {
	code := Errno(99)
	if code.Valid() {
		t.Fatalf("99 should not be a valid code")
	}
	if code.Error() != "PTL_UNKNOWN(99)" {
		t.Fatalf("unexpected unknown rendering %q", code.Error())
	}
}

func TestEventKindOverflow(t *testing.T) {
	if EventPut.Overflow() != EventPutOverflow {
		t.Fatalf("put overflow mismatch")
	}
	if EventFetchAtomic.Overflow() != EventFetchAtomicOverflow {
		t.Fatalf("fetch atomic overflow mismatch")
	}
	if EventAck.Overflow() != EventAck {
		t.Fatalf("ack has no overflow counterpart")
	}
	if EventSend.IsTarget() || !EventLink.IsTarget() || EventKind(99).IsTarget() {
		t.Fatalf("IsTarget misclassified events")
	}
}

func TestNamesDistinctPerTaxonomy(t *testing.T) {
	events := make(map[string]bool)
	for _, k := range EventKinds() {
		if events[k.String()] {
			t.Fatalf("duplicate event name %s", k)
		}
		events[k.String()] = true
	}
	if len(events) != 16 {
		t.Fatalf("expected 16 event kinds, got %d", len(events))
	}

	fails := make(map[string]bool)
	for _, f := range NIFails() {
		if f.String() == "" || fails[f.String()] {
			t.Fatalf("bad fail name for %d", int32(f))
		}
		fails[f.String()] = true
	}
	if NIArgInvalid == NIPTDisabled {
		t.Fatalf("fail codes must be distinct")
	}
}
