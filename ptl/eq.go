package ptl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

const maxEQCount = 1 << 24

// eventQueue is a bounded ring of events. When full, the oldest event is
// discarded and the dropped flag is latched until the next successful get.
type eventQueue struct {
	notifier

	h        Handle
	capacity int

	mu      sync.Mutex
	ring    *queue.Queue
	dropped bool
	freed   bool
}

func newEventQueue(capacity int) *eventQueue {
	return &eventQueue{capacity: capacity, ring: queue.New()}
}

func (q *eventQueue) post(ev Event) {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.freed {
		q.mu.Unlock()
		return
	}
	if q.ring.Length() >= q.capacity {
		q.ring.Remove()
		q.dropped = true
	}
	q.ring.Add(ev)
	q.mu.Unlock()
	q.broadcast()
}

func (q *eventQueue) get() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.freed {
		return Event{}, ErrInterrupted
	}
	if q.ring.Length() == 0 {
		return Event{}, ErrEQEmpty
	}
	ev := q.ring.Remove().(Event)
	if q.dropped {
		q.dropped = false
		return ev, ErrEQDropped
	}
	return ev, nil
}

func (q *eventQueue) shutdown() {
	q.mu.Lock()
	q.freed = true
	q.ring = queue.New()
	q.mu.Unlock()
	q.broadcast()
}

// EQAlloc allocates an event queue that holds up to count events.
func (r *Runtime) EQAlloc(ni Handle, count uint64) (Handle, error) {
	n, err := r.niFor(ni, "PtlEQAlloc")
	if err != nil {
		return InvalidHandle, err
	}
	if count == 0 || count > maxEQCount {
		return InvalidHandle, ErrArgInvalid.WithOp("PtlEQAlloc")
	}
	q := newEventQueue(int(count))
	ref, err := n.eqs.Insert(q)
	if err != nil {
		return InvalidHandle, ErrNoSpace.WithOp("PtlEQAlloc")
	}
	q.h = n.child(kindEQ, ref)
	n.logger.Debug("eq allocated", zap.Stringer("eq", q.h), zap.Uint64("count", count))
	return q.h, nil
}

// EQFree releases the queue, discarding pending events. Goroutines blocked on
// it return ErrInterrupted.
func (r *Runtime) EQFree(eq Handle) error {
	n, q, err := r.lookupEQ(eq, "PtlEQFree")
	if err != nil {
		return err
	}
	if _, ok := n.eqs.Remove(eq.obj); !ok {
		return ErrInvalidHandle{"event queue"}
	}
	q.shutdown()
	n.logger.Debug("eq freed", zap.Stringer("eq", eq))
	return nil
}

// EQGet returns the oldest pending event, or ErrEQEmpty. When events were
// discarded since the last successful get, the event is returned together
// with ErrEQDropped.
func (r *Runtime) EQGet(eq Handle) (Event, error) {
	_, q, err := r.lookupEQ(eq, "PtlEQGet")
	if err != nil {
		return Event{}, err
	}
	return q.get()
}

// EQWait blocks until an event is available.
func (r *Runtime) EQWait(eq Handle) (Event, error) {
	return r.EQWaitContext(context.Background(), eq)
}

// EQWaitContext blocks until an event is available or ctx ends.
func (r *Runtime) EQWaitContext(ctx context.Context, eq Handle) (Event, error) {
	ev, _, err := r.eqPoll(ctx, []Handle{eq}, TimeForever, "PtlEQWait")
	return ev, err
}

// EQPoll waits on several queues at once and returns the first available
// event with the index of its queue. It fails with ErrEQEmpty when timeout
// elapses; TimeForever disables the timeout.
func (r *Runtime) EQPoll(eqs []Handle, timeout time.Duration) (Event, int, error) {
	return r.eqPoll(context.Background(), eqs, timeout, "PtlEQPoll")
}

// EQPollContext is EQPoll bounded by ctx as well.
func (r *Runtime) EQPollContext(ctx context.Context, eqs []Handle, timeout time.Duration) (Event, int, error) {
	return r.eqPoll(ctx, eqs, timeout, "PtlEQPoll")
}

func (r *Runtime) eqPoll(ctx context.Context, eqs []Handle, timeout time.Duration, op string) (Event, int, error) {
	if len(eqs) == 0 {
		return Event{}, -1, ErrArgInvalid.WithOp(op)
	}
	queues := make([]*eventQueue, len(eqs))
	sources := make([]*notifier, len(eqs))
	for i, h := range eqs {
		_, q, err := r.lookupEQ(h, op)
		if err != nil {
			return Event{}, -1, err
		}
		queues[i] = q
		sources[i] = &q.notifier
	}

	var (
		ev    Event
		which = -1
	)
	err := waitFor(ctx, timeout, sources, func() (bool, error) {
		for i, q := range queues {
			got, err := q.get()
			if errors.Is(err, ErrEQEmpty) {
				continue
			}
			ev, which = got, i
			return true, err
		}
		return false, nil
	}, ErrEQEmpty)
	return ev, which, err
}
