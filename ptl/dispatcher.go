package ptl

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// trigger is a deferred operation armed on a counting event.
type trigger struct {
	name      string
	threshold uint64
	fire      func() error
	mds       []*memDesc
	ni        *netIface
}

// done releases the resources the trigger held while pending.
func (t *trigger) done() {
	for _, md := range t.mds {
		md.unpin()
	}
	t.ni.triggered.Add(-1)
}

// dispatcher executes released triggers of one interface in release order on
// a single goroutine.
type dispatcher struct {
	logger   *zap.Logger
	warnAt   int
	failures atomic.Uint64
	fired    atomic.Uint64

	mu      sync.Mutex
	queue   *queue.Queue
	stopped bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newDispatcher(logger *zap.Logger, warnAt int) *dispatcher {
	d := &dispatcher{
		logger: logger,
		warnAt: warnAt,
		queue:  queue.New(),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(ts ...*trigger) {
	if len(ts) == 0 {
		return
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		for _, t := range ts {
			t.done()
		}
		return
	}
	for _, t := range ts {
		d.queue.Add(t)
	}
	backlog := d.queue.Length()
	d.mu.Unlock()
	if d.warnAt > 0 && backlog > d.warnAt {
		d.logger.Warn("trigger dispatch backlog", zap.Int("backlog", backlog))
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) next() *trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue.Length() == 0 {
		return nil
	}
	return d.queue.Remove().(*trigger)
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		t := d.next()
		if t == nil {
			select {
			case <-d.wake:
			case <-d.stop:
				return
			}
			continue
		}
		d.execute(t)
	}
}

func (d *dispatcher) execute(t *trigger) {
	d.fired.Add(1)
	err := t.fire()
	t.done()
	if err != nil {
		d.failures.Add(1)
		d.logger.Error("triggered operation failed",
			zap.String("op", t.name),
			zap.Uint64("threshold", t.threshold),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("triggered operation fired", zap.String("op", t.name), zap.Uint64("threshold", t.threshold))
}

// shutdown stops the goroutine and returns the triggers it never ran.
func (d *dispatcher) shutdown() []*trigger {
	d.once.Do(func() { close(d.stop) })
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	left := make([]*trigger, 0, d.queue.Length())
	for d.queue.Length() > 0 {
		left = append(left, d.queue.Remove().(*trigger))
	}
	return left
}
