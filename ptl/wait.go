package ptl

import (
	"context"
	"sync"
	"time"
)

// notifier fans a state change out to every subscribed waiter. Waiters own a
// buffered channel of capacity one, so a burst of changes collapses into a
// single wakeup.
type notifier struct {
	waitMu  sync.Mutex
	waiters map[chan struct{}]struct{}
}

func (n *notifier) subscribe(ch chan struct{}) {
	n.waitMu.Lock()
	if n.waiters == nil {
		n.waiters = make(map[chan struct{}]struct{})
	}
	n.waiters[ch] = struct{}{}
	n.waitMu.Unlock()
}

func (n *notifier) unsubscribe(ch chan struct{}) {
	n.waitMu.Lock()
	delete(n.waiters, ch)
	n.waitMu.Unlock()
}

func (n *notifier) broadcast() {
	n.waitMu.Lock()
	for ch := range n.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	n.waitMu.Unlock()
}

// waitFor blocks until check reports done or fails, the context ends, or the
// timeout elapses, in which case expired is returned. A negative timeout waits
// indefinitely; zero checks once.
func waitFor(ctx context.Context, timeout time.Duration, sources []*notifier, check func() (bool, error), expired error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	wake := make(chan struct{}, 1)
	for _, s := range sources {
		s.subscribe(wake)
	}
	defer func() {
		for _, s := range sources {
			s.unsubscribe(wake)
		}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		done, err := check()
		if done || err != nil {
			return err
		}
		if timeout == 0 {
			return expired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			if done, err := check(); done || err != nil {
				return err
			}
			return expired
		case <-wake:
		}
	}
}
