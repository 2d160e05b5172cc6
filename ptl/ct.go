package ptl

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// counter is a counting event. Triggers armed on it are kept in registration
// order; every mutation releases, in that order, all whose threshold the
// success count has reached.
type counter struct {
	notifier

	h  Handle
	ni *netIface

	mu       sync.Mutex
	value    CTEvent
	triggers []*trigger
	freed    bool
}

func (c *counter) mutate(fn func(*CTEvent)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.freed {
		c.mu.Unlock()
		return
	}
	fn(&c.value)
	released := c.releaseLocked()
	// Enqueue under the lock so concurrent mutations hand triggers to the
	// dispatcher in the order they released them.
	c.ni.dispatch.enqueue(released...)
	c.mu.Unlock()
	c.broadcast()
}

// record counts one completion: a failure, or a success worth n (bytes) or 1.
func (c *counter) record(ok bool, bytes bool, n uint64) {
	c.mutate(func(v *CTEvent) {
		switch {
		case !ok:
			v.Failure++
		case bytes:
			v.Success += n
		default:
			v.Success++
		}
	})
}

func (c *counter) releaseLocked() []*trigger {
	if len(c.triggers) == 0 {
		return nil
	}
	var released []*trigger
	kept := c.triggers[:0]
	for _, t := range c.triggers {
		if t.threshold <= c.value.Success {
			released = append(released, t)
		} else {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(c.triggers); i++ {
		c.triggers[i] = nil
	}
	c.triggers = kept
	return released
}

func (c *counter) snapshot() (CTEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return CTEvent{}, ErrInterrupted
	}
	return c.value, nil
}

// arm registers t, releasing it at once when its threshold is already met.
func (c *counter) arm(t *trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return ErrInterrupted
	}
	if t.threshold <= c.value.Success {
		c.ni.dispatch.enqueue(t)
		return nil
	}
	c.triggers = append(c.triggers, t)
	return nil
}

func (c *counter) cancel() []*trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.triggers
	c.triggers = nil
	return out
}

func (c *counter) shutdown() []*trigger {
	c.mu.Lock()
	c.freed = true
	out := c.triggers
	c.triggers = nil
	c.mu.Unlock()
	c.broadcast()
	return out
}

// reached implements the wait policy: success at or above test, or any
// failure at all.
func reached(v CTEvent, test uint64) bool {
	return v.Success >= test || v.Failure > 0
}

// CTAlloc allocates a counting event initialized to {0, 0}.
func (r *Runtime) CTAlloc(ni Handle) (Handle, error) {
	n, err := r.niFor(ni, "PtlCTAlloc")
	if err != nil {
		return InvalidHandle, err
	}
	c := &counter{ni: n}
	ref, err := n.cts.Insert(c)
	if err != nil {
		return InvalidHandle, ErrNoSpace.WithOp("PtlCTAlloc")
	}
	c.h = n.child(kindCT, ref)
	n.logger.Debug("ct allocated", zap.Stringer("ct", c.h))
	return c.h, nil
}

// CTFree releases the counting event. Pending triggers are discarded and
// blocked waiters return ErrInterrupted.
func (r *Runtime) CTFree(ct Handle) error {
	n, c, err := r.lookupCT(ct, "PtlCTFree")
	if err != nil {
		return err
	}
	if _, ok := n.cts.Remove(ct.obj); !ok {
		return ErrInvalidHandle{"counting event"}
	}
	for _, t := range c.shutdown() {
		t.done()
	}
	n.logger.Debug("ct freed", zap.Stringer("ct", ct))
	return nil
}

// CTGet reads the counters without blocking.
func (r *Runtime) CTGet(ct Handle) (CTEvent, error) {
	_, c, err := r.lookupCT(ct, "PtlCTGet")
	if err != nil {
		return CTEvent{}, err
	}
	return c.snapshot()
}

// CTInc adds inc to the counters. Only one of the two fields may be nonzero.
func (r *Runtime) CTInc(ct Handle, inc CTEvent) error {
	_, c, err := r.lookupCT(ct, "PtlCTInc")
	if err != nil {
		return err
	}
	if inc.Success != 0 && inc.Failure != 0 {
		return ErrArgInvalid.WithOp("PtlCTInc")
	}
	c.mutate(func(v *CTEvent) {
		v.Success += inc.Success
		v.Failure += inc.Failure
	})
	return nil
}

// CTSet overwrites the counters.
func (r *Runtime) CTSet(ct Handle, value CTEvent) error {
	_, c, err := r.lookupCT(ct, "PtlCTSet")
	if err != nil {
		return err
	}
	c.mutate(func(v *CTEvent) { *v = value })
	return nil
}

// CTWait blocks until success reaches test or any failure is recorded, and
// returns the counters observed at that point.
func (r *Runtime) CTWait(ct Handle, test uint64) (CTEvent, error) {
	return r.CTWaitContext(context.Background(), ct, test)
}

// CTWaitContext is CTWait bounded by ctx.
func (r *Runtime) CTWaitContext(ctx context.Context, ct Handle, test uint64) (CTEvent, error) {
	ev, _, err := r.ctPoll(ctx, []Handle{ct}, []uint64{test}, TimeForever, "PtlCTWait")
	return ev, err
}

// CTPoll waits on several counting events, each with its own test value, and
// returns the first that satisfies the wait policy with its index. It fails
// with ErrCTNoneReached when timeout elapses.
func (r *Runtime) CTPoll(cts []Handle, tests []uint64, timeout time.Duration) (CTEvent, int, error) {
	return r.ctPoll(context.Background(), cts, tests, timeout, "PtlCTPoll")
}

func (r *Runtime) ctPoll(ctx context.Context, cts []Handle, tests []uint64, timeout time.Duration, op string) (CTEvent, int, error) {
	if len(cts) == 0 || len(cts) != len(tests) {
		return CTEvent{}, -1, ErrArgInvalid.WithOp(op)
	}
	counters := make([]*counter, len(cts))
	sources := make([]*notifier, len(cts))
	for i, h := range cts {
		_, c, err := r.lookupCT(h, op)
		if err != nil {
			return CTEvent{}, -1, err
		}
		counters[i] = c
		sources[i] = &c.notifier
	}

	var (
		ev    CTEvent
		which = -1
	)
	err := waitFor(ctx, timeout, sources, func() (bool, error) {
		for i, c := range counters {
			v, err := c.snapshot()
			if err != nil {
				which = i
				return true, err
			}
			if reached(v, tests[i]) {
				ev, which = v, i
				return true, nil
			}
		}
		return false, nil
	}, ErrCTNoneReached)
	return ev, which, err
}

// CTCancelTriggered discards every trigger pending on ct without running it.
func (r *Runtime) CTCancelTriggered(ct Handle) error {
	n, c, err := r.lookupCT(ct, "PtlCTCancelTriggered")
	if err != nil {
		return err
	}
	cancelled := c.cancel()
	for _, t := range cancelled {
		t.done()
	}
	if len(cancelled) > 0 {
		n.logger.Debug("triggers cancelled", zap.Stringer("ct", ct), zap.Int("count", len(cancelled)))
	}
	return nil
}
