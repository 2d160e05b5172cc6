package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketbitz/portals4-go/ptl"
)

// ErrClosed indicates the client has already been closed.
var ErrClosed = errors.New("portals client: closed")

// Config controls Dial behaviour for the high-level Client.
type Config struct {
	// Fabric is the in-process network shared with peers. Nil gives the
	// client a private fabric, which is only useful for loopback.
	Fabric *ptl.Fabric
	// Options are passed to ptl.Init after the fabric option.
	Options []ptl.Option
	// PTIndex is the portal the client serves locally and addresses on peers.
	PTIndex          uint32
	PID              uint32
	EQSize           uint64
	Timeout          time.Duration
	MDPoolSize       int
	MDPoolCapacity   int
	Peer             *ptl.Process
	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// Client owns a Portals runtime, a matching physical interface and the
// resources needed to issue puts and gets and to serve exposed memory.
type Client struct {
	cfg    Config
	rt     *ptl.Runtime
	ni     ptl.Handle
	eq     ptl.Handle
	ct     ptl.Handle
	pt     uint32
	self   ptl.Process
	pool   *ptl.MDPool
	closed atomic.Bool

	peerMu sync.RWMutex
	peer   ptl.Process

	dispatcherErr atomic.Pointer[errorHolder]
	stop          context.CancelFunc
	wg            sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[*operation]struct{}

	handlersMu  sync.RWMutex
	putHandlers map[uint64]PutHandler
	handlerSeq  atomic.Uint64

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook
	stats            clientStats
}

// OperationKind identifies the type of Portals operation tracked by a future.
type OperationKind int

type errorHolder struct {
	err error
}

const (
	OperationPut OperationKind = iota
	OperationGet
)

func (k OperationKind) String() string {
	switch k {
	case OperationPut:
		return "put"
	case OperationGet:
		return "get"
	default:
		return "operation"
	}
}

// OperationError exposes the failure reported in a completion event.
type OperationError struct {
	Kind      OperationKind
	Fail      ptl.NIFail
	Target    ptl.Process
	MatchBits uint64
	Length    uint64
}

func (e OperationError) Error() string {
	return fmt.Sprintf("portals %s completion error: %s (target=%d/%d match=0x%x len=%d)",
		e.Kind, e.Fail, e.Target.NID, e.Target.PID, e.MatchBits, e.Length)
}

// PutMessage describes data a peer put into one of the client's exposures.
type PutMessage struct {
	Payload      []byte
	Initiator    ptl.Process
	MatchBits    uint64
	HdrData      uint64
	RemoteOffset uint64
}

// PutHandler is invoked for every put that lands in an exposure.
type PutHandler func(PutMessage)

// Logger provides structured debug logging hooks for the client.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging backends.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// TraceAttribute represents a tracing attribute attached to dispatcher spans or events.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans that wrap dispatcher activity.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records dispatcher lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// Stats contains counters for client operations. Counter mirrors the
// client's counting event, which tracks acknowledgements and replies.
type Stats struct {
	PutPosted    uint64
	PutCompleted uint64
	PutErrored   uint64
	GetPosted    uint64
	GetCompleted uint64
	GetErrored   uint64
	PutsReceived uint64
	GetsServed   uint64
	Counter      ptl.CTEvent
}

type clientStats struct {
	putPosted    atomic.Uint64
	putCompleted atomic.Uint64
	putErrored   atomic.Uint64
	getPosted    atomic.Uint64
	getCompleted atomic.Uint64
	getErrored   atomic.Uint64
	putsReceived atomic.Uint64
	getsServed   atomic.Uint64
}

// MetricHook captures dispatcher telemetry events.
type MetricHook interface {
	DispatcherStarted(attrs map[string]string)
	DispatcherStopped(attrs map[string]string)
	DispatcherEQError(kind string, err error, attrs map[string]string)
	PutCompleted(attrs map[string]string)
	PutFailed(err error, attrs map[string]string)
	GetCompleted(attrs map[string]string)
	GetFailed(err error, attrs map[string]string)
	MessageReceived(attrs map[string]string)
}

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

// identity carries what every log line, span and metric of an endpoint is
// labelled with.
type identity struct {
	self    ptl.Process
	ptIndex uint32
}

func (id identity) attrs(fields ...logField) map[string]string {
	attrs := make(map[string]string, len(fields)+3)
	attrs[labelNID] = fmt.Sprint(id.self.NID)
	attrs[labelPID] = fmt.Sprint(id.self.PID)
	attrs[labelPTIndex] = fmt.Sprint(id.ptIndex)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs[field.key] = fmt.Sprint(field.value)
	}
	return attrs
}

func (id identity) traceAttrs(component string) []TraceAttribute {
	return []TraceAttribute{
		{Key: "component", Value: component},
		{Key: labelNID, Value: id.self.NID},
		{Key: labelPID, Value: id.self.PID},
		{Key: labelPTIndex, Value: id.ptIndex},
	}
}

// hooks bundles the optional observers shared by Client and Listener.
type hooks struct {
	logger     Logger
	structured StructuredLogger
}

func resolveStructured(logger Logger, structured StructuredLogger) StructuredLogger {
	if structured != nil {
		return structured
	}
	if s, ok := logger.(StructuredLogger); ok {
		return s
	}
	return nil
}

func (h hooks) logEvent(msg, event string, fields ...logField) {
	if h.structured != nil {
		kv := make([]any, 0, len(fields)*2+2)
		kv = append(kv, "event", event)
		for _, field := range fields {
			if field.key == "" {
				continue
			}
			kv = append(kv, field.key, field.value)
		}
		h.structured.Debugw(msg, kv...)
		return
	}
	if h.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(field.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(field.value))
	}
	h.logger.Debugf("%s %s", msg, b.String())
}

func (c *Client) identity() identity {
	return identity{self: c.self, ptIndex: c.pt}
}

func (c *Client) metricAttrs(fields ...logField) map[string]string {
	return c.identity().attrs(fields...)
}

func (c *Client) logDispatcherEvent(event string, fields ...logField) {
	if c == nil {
		return
	}
	hooks{logger: c.logger, structured: c.structuredLogger}.logEvent("portals client dispatcher", event, fields...)
}

func (c *Client) metricDispatcherStarted(fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.DispatcherStarted(c.metricAttrs(fields...))
}

func (c *Client) metricDispatcherStopped(fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.DispatcherStopped(c.metricAttrs(fields...))
}

func (c *Client) metricDispatcherEQError(kind string, err error, fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.DispatcherEQError(kind, err, c.metricAttrs(fields...))
}

func (c *Client) metricPutCompleted(fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.PutCompleted(c.metricAttrs(fields...))
}

func (c *Client) metricPutFailed(err error, fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.PutFailed(err, c.metricAttrs(fields...))
}

func (c *Client) metricGetCompleted(fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.GetCompleted(c.metricAttrs(fields...))
}

func (c *Client) metricGetFailed(err error, fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.GetFailed(err, c.metricAttrs(fields...))
}

func (c *Client) metricMessageReceived(fields ...logField) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.MessageReceived(c.metricAttrs(fields...))
}

// Dial initializes a runtime on the configured fabric and prepares the
// client resources: a matching physical interface, an event queue, a
// counting event, the client's portal and a descriptor pool.
func Dial(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.EQSize == 0 {
		cfg.EQSize = 1024
	}
	if cfg.MDPoolSize <= 0 {
		cfg.MDPoolSize = 4096
	}
	if cfg.MDPoolCapacity <= 0 {
		cfg.MDPoolCapacity = 32
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
	ct, err := rt.CTAlloc(ni)
	if err != nil {
		rt.Fini()
		return nil, fmt.Errorf("alloc counter: %w", err)
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
	pool, err := rt.NewMDPool(ni, cfg.MDPoolSize, mdTemplate(eq, ct), cfg.MDPoolCapacity)
	if err != nil {
		rt.Fini()
		return nil, fmt.Errorf("create MD pool: %w", err)
	}

	client := &Client{
		cfg:              cfg,
		rt:               rt,
		ni:               ni,
		eq:               eq,
		ct:               ct,
		pt:               pt,
		self:             self,
		pool:             pool,
		pending:          make(map[*operation]struct{}),
		logger:           cfg.Logger,
		structuredLogger: resolveStructured(cfg.Logger, cfg.StructuredLogger),
		tracer:           cfg.Tracer,
		metrics:          cfg.Metrics,
	}
	client.peer = self
	if cfg.Peer != nil {
		client.peer = *cfg.Peer
	}

	ctx, cancel := context.WithCancel(context.Background())
	client.stop = cancel
	client.wg.Add(1)
	go client.dispatch(ctx)

	return client, nil
}

func mdTemplate(eq, ct ptl.Handle) ptl.MD {
	return ptl.MD{
		Options: ptl.MDEventSendDisable | ptl.MDEventCTAck | ptl.MDEventCTReply,
		EQ:      eq,
		CT:      ct,
	}
}

// Close stops the dispatcher, fails outstanding futures with ErrClosed and
// tears down the runtime.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stop()
	c.wg.Wait()

	c.handlersMu.Lock()
	c.putHandlers = nil
	c.handlersMu.Unlock()

	c.pendingMu.Lock()
	outstanding := make([]*operation, 0, len(c.pending))
	for op := range c.pending {
		outstanding = append(outstanding, op)
	}
	c.pendingMu.Unlock()
	for _, op := range outstanding {
		op.complete(operationResult{err: ErrClosed})
	}

	c.pool.Close()
	c.rt.Fini()
	return nil
}

// Put writes payload into the default peer's portal using the configured
// timeout when the supplied context lacks a deadline. It returns once the
// target acknowledged the data.
func (c *Client) Put(ctx context.Context, matchBits uint64, payload []byte) error {
	return c.PutTo(ctx, c.DefaultPeer(), matchBits, payload)
}

// PutAsync posts a put to the default peer and returns a future that
// resolves when the acknowledgement arrives.
func (c *Client) PutAsync(matchBits uint64, payload []byte) (*PutFuture, error) {
	return c.putAsync(c.DefaultPeer(), matchBits, 0, payload)
}

// PutTo writes payload into target's portal.
func (c *Client) PutTo(ctx context.Context, target ptl.Process, matchBits uint64, payload []byte) error {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	future, err := c.putAsync(target, matchBits, 0, payload)
	if err != nil {
		return err
	}
	return future.Await(ctx)
}

// PutToAsync posts a put to target carrying hdrData in the event the
// target sees.
func (c *Client) PutToAsync(target ptl.Process, matchBits, hdrData uint64, payload []byte) (*PutFuture, error) {
	return c.putAsync(target, matchBits, hdrData, payload)
}

func (c *Client) putAsync(target ptl.Process, matchBits, hdrData uint64, payload []byte) (*PutFuture, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if err := c.dispatchFailure(); err != nil {
		return nil, err
	}
	md, buf, release, err := c.prepareMD(len(payload))
	if err != nil {
		return nil, err
	}
	copy(buf, payload)

	op := newOperation(c, OperationPut, len(payload), nil)
	op.release = release
	op.target, op.matchBits = target, matchBits
	c.track(op)

	err = c.rt.Put(ptl.PutRequest{
		MD:        md,
		Length:    uint64(len(payload)),
		AckReq:    ptl.AckReq,
		Target:    target,
		PTIndex:   c.pt,
		MatchBits: matchBits,
		UserPtr:   op,
		HdrData:   hdrData,
	})
	if err != nil {
		c.untrack(op)
		release()
		return nil, fmt.Errorf("post put: %w", err)
	}
	c.stats.putPosted.Add(1)
	c.logf("client: put posted size=%d target=%d/%d", len(payload), target.NID, target.PID)
	return &PutFuture{op: op}, nil
}

// Get reads len(buf) bytes from the exposure matching matchBits on target,
// starting at remoteOffset. It returns the number of bytes delivered.
func (c *Client) Get(ctx context.Context, target ptl.Process, matchBits, remoteOffset uint64, buf []byte) (int, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	future, err := c.GetAsync(target, matchBits, remoteOffset, buf)
	if err != nil {
		return 0, err
	}
	return future.Await(ctx)
}

// GetAsync posts a get and returns a future that resolves when the reply
// has been copied into buf.
func (c *Client) GetAsync(target ptl.Process, matchBits, remoteOffset uint64, buf []byte) (*GetFuture, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("portals client: buffer must be non-empty")
	}
	if err := c.dispatchFailure(); err != nil {
		return nil, err
	}
	md, _, release, err := c.prepareMD(len(buf))
	if err != nil {
		return nil, err
	}

	meta := &getMeta{buffer: buf}
	op := newOperation(c, OperationGet, len(buf), meta)
	op.release = release
	op.target, op.matchBits = target, matchBits
	c.track(op)

	err = c.rt.Get(ptl.GetRequest{
		MD:           md,
		Length:       uint64(len(buf)),
		Target:       target,
		PTIndex:      c.pt,
		MatchBits:    matchBits,
		RemoteOffset: remoteOffset,
		UserPtr:      op,
	})
	if err != nil {
		c.untrack(op)
		release()
		return nil, fmt.Errorf("post get: %w", err)
	}
	c.stats.getPosted.Add(1)
	c.logf("client: get posted size=%d target=%d/%d", len(buf), target.NID, target.PID)
	return &GetFuture{op: op, buf: buf, meta: meta}, nil
}

// prepareMD returns a descriptor of exactly size bytes. Requests that fit
// the pool reuse a pooled descriptor; larger ones bind a dedicated one.
func (c *Client) prepareMD(size int) (ptl.Handle, []byte, func(), error) {
	if size <= c.pool.Size() {
		pooled, err := c.pool.Acquire()
		if err != nil {
			return ptl.InvalidHandle, nil, nil, err
		}
		return pooled.Handle, pooled.Buf[:size], func() { c.pool.Release(pooled) }, nil
	}
	buf := make([]byte, size)
	desc := mdTemplate(c.eq, c.ct)
	desc.Start = buf
	h, err := c.rt.MDBind(c.ni, &desc)
	if err != nil {
		return ptl.InvalidHandle, nil, nil, fmt.Errorf("bind descriptor: %w", err)
	}
	return h, buf, func() { _ = c.rt.MDRelease(h) }, nil
}

func (c *Client) track(op *operation) {
	c.pendingMu.Lock()
	c.pending[op] = struct{}{}
	c.pendingMu.Unlock()
}

func (c *Client) untrack(op *operation) {
	c.pendingMu.Lock()
	delete(c.pending, op)
	c.pendingMu.Unlock()
}

// Exposure is memory the client serves to remote puts and gets.
type Exposure struct {
	client    *Client
	handle    ptl.Handle
	buf       []byte
	matchBits uint64
	once      sync.Once
}

// Buffer returns the exposed memory.
func (e *Exposure) Buffer() []byte {
	if e == nil {
		return nil
	}
	return e.buf
}

// Close unlinks the exposure. Peers addressing it afterwards see their
// operations dropped.
func (e *Exposure) Close() error {
	if e == nil {
		return nil
	}
	var err error
	e.once.Do(func() {
		if e.client.closed.Load() {
			return
		}
		err = e.client.rt.MEUnlink(e.handle)
	})
	return err
}

// Expose appends buf to the client's portal so peers can put into and get
// from it with the given match bits. ignoreBits widens the match.
func (c *Client) Expose(buf []byte, matchBits, ignoreBits uint64) (*Exposure, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	exp := &Exposure{client: c, buf: buf, matchBits: matchBits}
	me := &ptl.ME{
		Start:      buf,
		CT:         ptl.CTNone,
		UID:        ptl.UIDAny,
		Options:    ptl.MEOpPut | ptl.MEOpGet | ptl.MEEventLinkDisable,
		MatchID:    ptl.Process{NID: ptl.NIDAny, PID: ptl.PIDAny, Rank: ptl.RankAny},
		MatchBits:  matchBits,
		IgnoreBits: ignoreBits,
	}
	h, err := c.rt.MEAppend(c.ni, c.pt, me, ptl.PriorityList, exp)
	if err != nil {
		return nil, fmt.Errorf("expose: %w", err)
	}
	exp.handle = h
	c.logf("client: exposed size=%d match=0x%x", len(buf), matchBits)
	return exp, nil
}

func (c *Client) ensureOpen() error {
	if c == nil {
		return ErrClosed
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *Client) dispatchFailure() error {
	if err := c.dispatcherError(); err != nil {
		return fmt.Errorf("portals client dispatcher failed: %w", err)
	}
	return nil
}

// Stats returns a snapshot of client counters.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	stats := Stats{
		PutPosted:    c.stats.putPosted.Load(),
		PutCompleted: c.stats.putCompleted.Load(),
		PutErrored:   c.stats.putErrored.Load(),
		GetPosted:    c.stats.getPosted.Load(),
		GetCompleted: c.stats.getCompleted.Load(),
		GetErrored:   c.stats.getErrored.Load(),
		PutsReceived: c.stats.putsReceived.Load(),
		GetsServed:   c.stats.getsServed.Load(),
	}
	if !c.closed.Load() {
		if ct, err := c.rt.CTGet(c.ct); err == nil {
			stats.Counter = ct
		}
	}
	return stats
}

// LocalID returns the physical identity peers use to address this client.
func (c *Client) LocalID() ptl.Process {
	if c == nil {
		return ptl.Process{}
	}
	return c.self
}

// PTIndex returns the portal index the client serves and addresses.
func (c *Client) PTIndex() uint32 {
	if c == nil {
		return 0
	}
	return c.pt
}

// Runtime exposes the underlying engine for callers that need operations the
// client does not wrap.
func (c *Client) Runtime() *ptl.Runtime {
	if c == nil {
		return nil
	}
	return c.rt
}

// SetDefaultPeer configures the target used by Put/PutAsync.
func (c *Client) SetDefaultPeer(peer ptl.Process) {
	if c == nil {
		return
	}
	c.peerMu.Lock()
	c.peer = peer
	c.peerMu.Unlock()
}

// DefaultPeer returns the target used by Put/PutAsync. It is the client
// itself until another peer is configured.
func (c *Client) DefaultPeer() ptl.Process {
	if c == nil {
		return ptl.Process{}
	}
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peer
}

// RegisterPutHandler installs a callback invoked for every put landing in an
// exposure. The returned function unregisters the handler when invoked.
// Passing a nil handler is a no-op.
func (c *Client) RegisterPutHandler(handler PutHandler) func() {
	if c == nil || handler == nil {
		return func() {}
	}
	id := c.handlerSeq.Add(1)
	c.handlersMu.Lock()
	if c.putHandlers == nil {
		c.putHandlers = make(map[uint64]PutHandler)
	}
	c.putHandlers[id] = handler
	c.handlersMu.Unlock()
	return func() {
		c.handlersMu.Lock()
		delete(c.putHandlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Client) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ctx, func() {}
		}
		if timeout <= 0 || remaining < timeout {
			return ctx, func() {}
		}
		timeout = remaining
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func (c *Client) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Debugf(format, args...)
}
