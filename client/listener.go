package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rocketbitz/portals4-go/ptl"
)

// ListenerConfig controls Listen.
type ListenerConfig struct {
	Fabric  *ptl.Fabric
	Options []ptl.Option
	PID     uint32
	PTIndex uint32
	EQSize  uint64
	// BufferSize is the length of each receive slab and Buffers the number
	// of slabs kept linked. A slab is recycled once less than MaxMessage
	// bytes remain in it.
	BufferSize       int
	Buffers          int
	MaxMessage       int
	Backlog          int
	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// Message is a put received by a Listener.
type Message struct {
	Payload   []byte
	Initiator ptl.Process
	UID       uint32
	MatchBits uint64
	HdrData   uint64
}

// Listener serves a portal backed by a rotating pool of receive slabs and
// yields every message put into it.
type Listener struct {
	cfg      ListenerConfig
	rt       *ptl.Runtime
	ni       ptl.Handle
	eq       ptl.Handle
	pt       uint32
	self     ptl.Process
	messages chan Message
	closed   atomic.Bool
	done     chan struct{}
	stop     context.CancelFunc
	wg       sync.WaitGroup
	received atomic.Uint64
	recycled atomic.Uint64

	hooks   hooks
	tracer  Tracer
	metrics MetricHook
}

type slab struct {
	buf []byte
}

// Listen initializes a runtime on the configured fabric, allocates the
// listener portal and links the receive slabs.
func Listen(cfg ListenerConfig) (*Listener, error) {
	if cfg.EQSize == 0 {
		cfg.EQSize = 1024
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64 * 1024
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 4
	}
	if cfg.MaxMessage <= 0 {
		cfg.MaxMessage = 4096
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 128
	}
	if cfg.MaxMessage > cfg.BufferSize {
		return nil, errors.New("portals listener: max message exceeds buffer size")
	}

	opts := make([]ptl.Option, 0, len(cfg.Options)+1)
	if cfg.Fabric != nil {
		opts = append(opts, ptl.WithFabric(cfg.Fabric))
	}
	opts = append(opts, cfg.Options...)
	rt, err := ptl.Init(opts...)
	if err != nil {
		return nil, fmt.Errorf("init runtime: %w", err)
	}
	ni, _, err := rt.NIInit(ptl.IfaceDefault, ptl.NIMatching|ptl.NIPhysical, cfg.PID, nil)
	if err != nil {
		rt.Fini()
		return nil, fmt.Errorf("init interface: %w", err)
	}
	eq, err := rt.EQAlloc(ni, cfg.EQSize)
	if err != nil {
		rt.Fini()
		return nil, fmt.Errorf("alloc event queue: %w", err)
	}
	pt, err := rt.PTAlloc(ni, 0, eq, cfg.PTIndex)
	if err != nil {
		rt.Fini()
		return nil, fmt.Errorf("alloc portal %d: %w", cfg.PTIndex, err)
	}
	self, err := rt.GetPhysID(ni)
	if err != nil {
		rt.Fini()
		return nil, fmt.Errorf("query identity: %w", err)
	}

	l := &Listener{
		cfg:      cfg,
		rt:       rt,
		ni:       ni,
		eq:       eq,
		pt:       pt,
		self:     self,
		messages: make(chan Message, cfg.Backlog),
		done:     make(chan struct{}),
		hooks:    hooks{logger: cfg.Logger, structured: resolveStructured(cfg.Logger, cfg.StructuredLogger)},
		tracer:   cfg.Tracer,
		metrics:  cfg.Metrics,
	}
	for i := 0; i < cfg.Buffers; i++ {
		if err := l.link(&slab{buf: make([]byte, cfg.BufferSize)}); err != nil {
			rt.Fini()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	l.wg.Add(1)
	go l.pump(ctx)
	return l, nil
}

func (l *Listener) link(s *slab) error {
	me := &ptl.ME{
		Start:      s.buf,
		CT:         ptl.CTNone,
		UID:        ptl.UIDAny,
		Options:    ptl.MEOpPut | ptl.MEManageLocal | ptl.MENoTruncate | ptl.MEEventLinkDisable,
		MatchID:    ptl.Process{NID: ptl.NIDAny, PID: ptl.PIDAny, Rank: ptl.RankAny},
		IgnoreBits: ^uint64(0),
		MinFree:    uint64(l.cfg.MaxMessage),
	}
	if _, err := l.rt.MEAppend(l.ni, l.pt, me, ptl.PriorityList, s); err != nil {
		return fmt.Errorf("link receive buffer: %w", err)
	}
	return nil
}

// Addr returns the identity peers put to.
func (l *Listener) Addr() ptl.Process {
	if l == nil {
		return ptl.Process{}
	}
	return l.self
}

// PTIndex returns the portal the listener serves.
func (l *Listener) PTIndex() uint32 {
	if l == nil {
		return 0
	}
	return l.pt
}

// Received reports how many messages landed and how many slabs were recycled.
func (l *Listener) Received() (messages, recycled uint64) {
	if l == nil {
		return 0, 0
	}
	return l.received.Load(), l.recycled.Load()
}

// Receive waits for the next message.
func (l *Listener) Receive(ctx context.Context) (Message, error) {
	if l == nil {
		return Message{}, ErrClosed
	}
	ctx = ensureContext(ctx)
	select {
	case msg := <-l.messages:
		return msg, nil
	case <-l.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close stops the listener and releases its runtime. Undelivered messages are
// discarded.
func (l *Listener) Close() error {
	if l == nil {
		return nil
	}
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.stop()
	l.wg.Wait()
	close(l.done)
	l.rt.Fini()
	return nil
}

func (l *Listener) identity() identity {
	return identity{self: l.self, ptIndex: l.pt}
}

func (l *Listener) pump(ctx context.Context) {
	defer l.wg.Done()

	var span Span
	if l.tracer != nil {
		span = l.tracer.StartSpan(listenerSpanName, l.identity().traceAttrs("portals-listener")...)
	}
	id := l.identity()
	l.hooks.logEvent("portals listener", "start", logKV(labelNID, l.self.NID), logKV(labelPID, l.self.PID), logKV(labelPTIndex, l.pt))
	spanAddEvent(span, "start")
	if l.metrics != nil {
		l.metrics.DispatcherStarted(id.attrs())
	}

	var failure error
	defer func() {
		status := "ok"
		if failure != nil {
			status = "error"
			spanRecordError(span, failure)
		}
		l.hooks.logEvent("portals listener", "stop", logKV("status", status))
		spanAddEvent(span, "stop", logKV("status", status))
		if l.metrics != nil {
			l.metrics.DispatcherStopped(id.attrs(logKV(labelStatus, status)))
		}
		if span != nil {
			span.End(failure)
		}
	}()

	queues := []ptl.Handle{l.eq}
	for {
		ev, _, err := l.rt.EQPollContext(ctx, queues, ptl.TimeForever)
		switch {
		case err == nil:
		case errors.Is(err, ptl.ErrEQDropped):
			l.hooks.logEvent("portals listener", "eq_dropped", logKV("error", err))
			spanAddEvent(span, "eq_dropped")
			if l.metrics != nil {
				l.metrics.DispatcherEQError("eq_dropped", err, id.attrs())
			}
		case errors.Is(err, context.Canceled):
			return
		default:
			failure = fmt.Errorf("eq poll: %w", err)
			if l.metrics != nil {
				l.metrics.DispatcherEQError("eq_poll_error", failure, id.attrs())
			}
			return
		}

		switch ev.Type {
		case ptl.EventPut:
			if ev.NIFailType != ptl.NIOK {
				l.hooks.logEvent("portals listener", "put_error", logKV("fail", ev.NIFailType))
				continue
			}
			msg := Message{
				Payload:   append([]byte(nil), ev.Start[:ev.MLength]...),
				Initiator: ev.Initiator,
				UID:       ev.UID,
				MatchBits: ev.MatchBits,
				HdrData:   ev.HdrData,
			}
			l.received.Add(1)
			if l.metrics != nil {
				l.metrics.MessageReceived(id.attrs(logKV(labelOperation, OperationPut.String())))
			}
			select {
			case l.messages <- msg:
			case <-ctx.Done():
				return
			}
		case ptl.EventAutoUnlink:
			s, ok := ev.UserPtr.(*slab)
			if !ok {
				continue
			}
			l.recycled.Add(1)
			l.hooks.logEvent("portals listener", "recycle", logKV("size", len(s.buf)))
			if err := l.link(s); err != nil {
				failure = err
				return
			}
		default:
			l.hooks.logEvent("portals listener", "event", logKV("type", ev.Type), logKV("fail", ev.NIFailType))
		}
	}
}
