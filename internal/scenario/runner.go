package scenario

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rocketbitz/portals4-go/ptl"
)

// Result is the transcript of one run.
type Result struct {
	Name  string
	Lines []string
}

// Transcript joins the lines, each terminated by a newline.
func (r *Result) Transcript() string {
	if r == nil || len(r.Lines) == 0 {
		return ""
	}
	return strings.Join(r.Lines, "\n") + "\n"
}

// Sink receives transcript lines as they are produced. seq counts lines
// from 1.
type Sink func(seq int, line string) error

// RunOption adjusts Run.
type RunOption func(*runConfig)

type runConfig struct {
	logger      *zap.Logger
	sink        Sink
	waitTimeout time.Duration
}

// WithLogger passes logger to every runtime the scenario creates.
func WithLogger(logger *zap.Logger) RunOption {
	return func(cfg *runConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSink streams transcript lines to sink.
func WithSink(sink Sink) RunOption {
	return func(cfg *runConfig) {
		cfg.sink = sink
	}
}

// WithWaitTimeout bounds ct_wait and counted eq_drain steps. The default is
// two seconds.
func WithWaitTimeout(d time.Duration) RunOption {
	return func(cfg *runConfig) {
		if d > 0 {
			cfg.waitTimeout = d
		}
	}
}

// ExpectationError reports a step whose return code differed from the one
// the scenario expected.
type ExpectationError struct {
	Step int
	Op   string
	Want string
	Got  string
	Err  error
}

func (e *ExpectationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d (%s): expected %s, got %s: %v", e.Step, e.Op, e.Want, e.Got, e.Err)
	}
	return fmt.Sprintf("step %d (%s): expected %s, got %s", e.Step, e.Op, e.Want, e.Got)
}

func (e *ExpectationError) Unwrap() error { return e.Err }

type process struct {
	name    string
	rt      *ptl.Runtime
	ni      ptl.Handle
	eq      ptl.Handle
	options uint32
	phys    ptl.Process
	rank    uint32
}

func (p *process) logical() bool { return p.options&ptl.NILogical != 0 }

func (p *process) matching() bool { return p.options&ptl.NIMatching != 0 }

// addr is how peers name p.
func (p *process) addr() ptl.Process {
	if p.logical() {
		return ptl.Process{Rank: p.rank}
	}
	return p.phys
}

// object is a named result of an earlier step.
type object struct {
	owner  *process
	handle ptl.Handle
	pt     uint32
	buf    []byte
}

type runner struct {
	cfg     runConfig
	fabric  *ptl.Fabric
	procs   map[string]*process
	order   []*process
	objects map[string]*object
	result  *Result
}

// Run executes sc on a fresh fabric. The returned result holds every line
// produced so far, also when an error stops the run.
func Run(ctx context.Context, sc *Scenario, opts ...RunOption) (*Result, error) {
	if sc == nil {
		return nil, fmt.Errorf("%w: nil scenario", ErrInvalid)
	}
	cfg := runConfig{logger: zap.NewNop(), waitTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &runner{
		cfg:     cfg,
		fabric:  ptl.NewFabric(),
		procs:   make(map[string]*process, len(sc.Processes)),
		objects: make(map[string]*object),
		result:  &Result{Name: sc.Name},
	}
	defer r.close()

	if err := r.setup(sc.Processes); err != nil {
		return r.result, err
	}
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		if err := r.step(ctx, i+1, st); err != nil {
			return r.result, err
		}
	}
	return r.result, nil
}

func (r *runner) setup(procs []Process) error {
	for _, proc := range procs {
		opts := []ptl.Option{
			ptl.WithFabric(r.fabric),
			ptl.WithUID(proc.UID),
			ptl.WithLogger(r.cfg.logger.With(zap.String("process", proc.Name))),
		}
		if proc.NID != 0 {
			opts = append(opts, ptl.WithNID(proc.NID))
		}
		rt, err := ptl.Init(opts...)
		if err != nil {
			return fmt.Errorf("process %s: init: %w", proc.Name, err)
		}
		p := &process{name: proc.Name, rt: rt, options: ptl.NIMatching | ptl.NIPhysical}
		r.procs[proc.Name] = p
		r.order = append(r.order, p)
		if proc.NonMatching {
			p.options = p.options&^ptl.NIMatching | ptl.NINoMatching
		}
		if proc.Logical {
			p.options = p.options&^ptl.NIPhysical | ptl.NILogical
		}

		var desired *ptl.Limits
		if proc.Limits != nil {
			desired = &ptl.Limits{
				MaxEntries:           proc.Limits.MaxEntries,
				MaxUnexpectedHeaders: proc.Limits.MaxUnexpectedHeaders,
				MaxListSize:          proc.Limits.MaxListSize,
				MaxTriggeredOps:      proc.Limits.MaxTriggeredOps,
				MaxMsgSize:           proc.Limits.MaxMsgSize,
			}
		}
		if p.ni, _, err = rt.NIInit(ptl.IfaceDefault, p.options, proc.PID, desired); err != nil {
			return fmt.Errorf("process %s: ni init: %w", proc.Name, err)
		}
		size := proc.EQSize
		if size == 0 {
			size = 64
		}
		if p.eq, err = rt.EQAlloc(p.ni, size); err != nil {
			return fmt.Errorf("process %s: eq alloc: %w", proc.Name, err)
		}
		if p.phys, err = rt.GetPhysID(p.ni); err != nil {
			return fmt.Errorf("process %s: phys id: %w", proc.Name, err)
		}
	}

	var mapping []ptl.Process
	var logical []*process
	for _, p := range r.order {
		if p.logical() {
			p.rank = uint32(len(mapping))
			mapping = append(mapping, p.phys)
			logical = append(logical, p)
		}
	}
	for _, p := range logical {
		if err := p.rt.SetMap(p.ni, mapping); err != nil {
			return fmt.Errorf("process %s: set map: %w", p.name, err)
		}
	}
	return nil
}

func (r *runner) close() {
	for _, p := range r.order {
		p.rt.Fini()
	}
}

func (r *runner) emit(line string) error {
	r.result.Lines = append(r.result.Lines, line)
	if r.cfg.sink != nil {
		return r.cfg.sink(len(r.result.Lines), line)
	}
	return nil
}

func (r *runner) step(ctx context.Context, seq int, st Step) error {
	p := r.procs[st.Proc]
	if p == nil {
		return fmt.Errorf("%w: step %d: unknown process %q", ErrInvalid, seq, st.Proc)
	}
	detail, events, err := r.exec(ctx, p, st)
	if errors.Is(err, ErrInvalid) {
		return fmt.Errorf("step %d (%s): %w", seq, st.Op, err)
	}
	code := ptl.ToStr(ptl.ReturnCode(err), ptl.StrError)
	line := fmt.Sprintf("%03d %s %s -> %s", seq, p.name, st.Op, code)
	if err == nil && detail != "" {
		line += " " + detail
	}
	if err := r.emit(line); err != nil {
		return fmt.Errorf("record step %d: %w", seq, err)
	}
	for _, ev := range events {
		if err := r.emit(ev); err != nil {
			return fmt.Errorf("record step %d: %w", seq, err)
		}
	}

	want := st.Expect
	if want == "" {
		want = "PTL_OK"
	}
	if code != want {
		return &ExpectationError{Step: seq, Op: st.Op, Want: want, Got: code, Err: err}
	}
	return nil
}

func (r *runner) exec(ctx context.Context, p *process, st Step) (string, []string, error) {
	switch st.Op {
	case OpPTAlloc:
		return r.ptAlloc(p, st)
	case OpPTFree, OpPTEnable, OpPTDisable:
		pt, err := r.ptIndex(st)
		if err != nil {
			return "", nil, err
		}
		switch st.Op {
		case OpPTFree:
			return "", nil, p.rt.PTFree(p.ni, pt)
		case OpPTEnable:
			return "", nil, p.rt.PTEnable(p.ni, pt)
		default:
			return "", nil, p.rt.PTDisable(p.ni, pt)
		}
	case OpMEAppend:
		return "", nil, r.meAppend(p, st)
	case OpMEUnlink:
		obj, err := r.lookup(st.Name)
		if err != nil {
			return "", nil, err
		}
		if p.matching() {
			return "", nil, p.rt.MEUnlink(obj.handle)
		}
		return "", nil, p.rt.LEUnlink(obj.handle)
	case OpMESearch:
		return "", nil, r.meSearch(p, st)
	case OpMDBind:
		return "", nil, r.mdBind(p, st)
	case OpMDRelease:
		obj, err := r.lookup(st.Name)
		if err != nil {
			return "", nil, err
		}
		return "", nil, p.rt.MDRelease(obj.handle)
	case OpCTAlloc:
		ct, err := p.rt.CTAlloc(p.ni)
		if err != nil {
			return "", nil, err
		}
		r.bind(st.Name, &object{owner: p, handle: ct})
		return "", nil, nil
	case OpCTFree, OpCTInc, OpCTSet, OpCTGet, OpCTWait, OpCTCancel:
		return r.counter(ctx, p, st)
	case OpPut, OpTriggeredPut:
		return "", nil, r.put(p, st)
	case OpGet, OpTriggeredGet:
		return "", nil, r.get(p, st)
	case OpAtomic, OpTriggeredAtomic:
		return "", nil, r.atomic(p, st)
	case OpFetchAtomic, OpSwap:
		return "", nil, r.fetch(p, st)
	case OpTriggeredCTInc, OpTriggeredCTSet:
		return "", nil, r.triggeredCounter(p, st)
	case OpEQDrain:
		return r.drain(ctx, p, st)
	case OpStatus:
		return r.status(p, st)
	case OpDump:
		return r.dump(st)
	}
	return "", nil, fmt.Errorf("%w: unknown op %q", ErrInvalid, st.Op)
}

func (r *runner) bind(name string, obj *object) {
	if name != "" {
		r.objects[name] = obj
	}
}

func (r *runner) lookup(name string) (*object, error) {
	obj, ok := r.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown object %q", ErrInvalid, name)
	}
	return obj, nil
}

func (r *runner) ptIndex(st Step) (uint32, error) {
	if st.PT != "" {
		obj, err := r.lookup(st.PT)
		if err != nil {
			return 0, err
		}
		return obj.pt, nil
	}
	if st.Index != nil {
		return *st.Index, nil
	}
	return 0, fmt.Errorf("%w: %s needs pt or index", ErrInvalid, st.Op)
}

func (r *runner) eqFor(p *process, name string) (ptl.Handle, error) {
	switch name {
	case "":
		return p.eq, nil
	case "none":
		return ptl.EQNone, nil
	}
	return ptl.EQNone, fmt.Errorf("%w: unknown event queue %q", ErrInvalid, name)
}

func (r *runner) ctFor(name string) (ptl.Handle, error) {
	if name == "" {
		return ptl.CTNone, nil
	}
	obj, err := r.lookup(name)
	if err != nil {
		return ptl.CTNone, err
	}
	return obj.handle, nil
}

func (r *runner) target(p *process, st Step) ptl.Process {
	if st.Target == "" {
		return p.addr()
	}
	return r.procs[st.Target].addr()
}

// buffer builds the memory of an entry or descriptor from size, data and
// words.
func buffer(st Step) []byte {
	var init []byte
	switch {
	case st.Data != "":
		init = []byte(st.Data)
	case len(st.Words) > 0:
		init = make([]byte, 8*len(st.Words))
		for i, w := range st.Words {
			binary.LittleEndian.PutUint64(init[8*i:], w)
		}
	}
	size := st.Size
	if size < uint64(len(init)) {
		size = uint64(len(init))
	}
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	copy(buf, init)
	return buf
}

func (r *runner) ptAlloc(p *process, st Step) (string, []string, error) {
	opts, err := combine(ptOptions, st.Options, "pt")
	if err != nil {
		return "", nil, err
	}
	eq, err := r.eqFor(p, st.EQ)
	if err != nil {
		return "", nil, err
	}
	req := ptl.PTAny
	if st.Index != nil {
		req = *st.Index
	}
	pt, err := p.rt.PTAlloc(p.ni, opts, eq, req)
	if err != nil {
		return "", nil, err
	}
	r.bind(st.Name, &object{owner: p, pt: pt})
	return fmt.Sprintf("pt=%d", pt), nil, nil
}

func (r *runner) matchID(st Step) ptl.Process {
	if st.Target == "" {
		return ptl.Process{NID: ptl.NIDAny, PID: ptl.PIDAny, Rank: ptl.RankAny}
	}
	return r.procs[st.Target].addr()
}

func (r *runner) entry(st Step) (*ptl.ME, uint32, error) {
	opts, err := combine(meOptions, st.Options, "me")
	if err != nil {
		return nil, 0, err
	}
	pt, err := r.ptIndex(st)
	if err != nil {
		return nil, 0, err
	}
	ct, err := r.ctFor(st.CT)
	if err != nil {
		return nil, 0, err
	}
	uid := ptl.UIDAny
	if st.UID != nil {
		uid = *st.UID
	}
	return &ptl.ME{
		Start:      buffer(st),
		CT:         ct,
		UID:        uid,
		Options:    opts,
		MatchID:    r.matchID(st),
		MatchBits:  st.MatchBits,
		IgnoreBits: st.IgnoreBits,
		MinFree:    st.MinFree,
	}, pt, nil
}

func (r *runner) meAppend(p *process, st Step) error {
	me, pt, err := r.entry(st)
	if err != nil {
		return err
	}
	list, err := listOf(st.List)
	if err != nil {
		return err
	}
	var h ptl.Handle
	if p.matching() {
		h, err = p.rt.MEAppend(p.ni, pt, me, list, st.Name)
	} else {
		h, err = p.rt.LEAppend(p.ni, pt, &ptl.LE{Start: me.Start, CT: me.CT, UID: me.UID, Options: me.Options}, list, st.Name)
	}
	if err != nil {
		return err
	}
	r.bind(st.Name, &object{owner: p, handle: h, pt: pt, buf: me.Start})
	return nil
}

func (r *runner) meSearch(p *process, st Step) error {
	me, pt, err := r.entry(st)
	if err != nil {
		return err
	}
	var op uint32
	switch st.Search {
	case "", "only":
		op = ptl.SearchOnly
	case "delete":
		op = ptl.SearchDelete
	default:
		return fmt.Errorf("%w: unknown search %q", ErrInvalid, st.Search)
	}
	if p.matching() {
		return p.rt.MESearch(p.ni, pt, me, op, st.Name)
	}
	return p.rt.LESearch(p.ni, pt, &ptl.LE{Start: me.Start, CT: me.CT, UID: me.UID, Options: me.Options}, op, st.Name)
}

func (r *runner) mdBind(p *process, st Step) error {
	opts, err := combine(mdOptions, st.Options, "md")
	if err != nil {
		return err
	}
	eq, err := r.eqFor(p, st.EQ)
	if err != nil {
		return err
	}
	ct, err := r.ctFor(st.CT)
	if err != nil {
		return err
	}
	buf := buffer(st)
	h, err := p.rt.MDBind(p.ni, &ptl.MD{Start: buf, Options: opts, EQ: eq, CT: ct})
	if err != nil {
		return err
	}
	r.bind(st.Name, &object{owner: p, handle: h, buf: buf})
	return nil
}

// transfer resolves the descriptor and length shared by every data movement
// step. A zero length moves the rest of the descriptor from the local offset.
func (r *runner) transfer(name string, offset, length uint64) (*object, uint64, error) {
	md, err := r.lookup(name)
	if err != nil {
		return nil, 0, err
	}
	if length == 0 && offset < uint64(len(md.buf)) {
		length = uint64(len(md.buf)) - offset
	}
	return md, length, nil
}

func (r *runner) trigger(st Step) (ptl.Handle, error) {
	if st.Trigger == "" {
		return ptl.CTNone, fmt.Errorf("%w: %s needs a trigger counter", ErrInvalid, st.Op)
	}
	return r.ctFor(st.Trigger)
}

func (r *runner) put(p *process, st Step) error {
	md, length, err := r.transfer(st.MD, st.LocalOffset, st.Length)
	if err != nil {
		return err
	}
	pt, err := r.ptIndex(st)
	if err != nil {
		return err
	}
	ack, ok := ackKinds[st.Ack]
	if !ok {
		return fmt.Errorf("%w: unknown ack %q", ErrInvalid, st.Ack)
	}
	req := ptl.PutRequest{
		MD:           md.handle,
		LocalOffset:  st.LocalOffset,
		Length:       length,
		AckReq:       ack,
		Target:       r.target(p, st),
		PTIndex:      pt,
		MatchBits:    st.MatchBits,
		RemoteOffset: st.RemoteOffset,
		UserPtr:      st.Name,
		HdrData:      st.HdrData,
	}
	if st.Op == OpTriggeredPut {
		trig, err := r.trigger(st)
		if err != nil {
			return err
		}
		return p.rt.TriggeredPut(req, trig, st.Threshold)
	}
	return p.rt.Put(req)
}

func (r *runner) get(p *process, st Step) error {
	md, length, err := r.transfer(st.MD, st.LocalOffset, st.Length)
	if err != nil {
		return err
	}
	pt, err := r.ptIndex(st)
	if err != nil {
		return err
	}
	req := ptl.GetRequest{
		MD:           md.handle,
		LocalOffset:  st.LocalOffset,
		Length:       length,
		Target:       r.target(p, st),
		PTIndex:      pt,
		MatchBits:    st.MatchBits,
		RemoteOffset: st.RemoteOffset,
		UserPtr:      st.Name,
	}
	if st.Op == OpTriggeredGet {
		trig, err := r.trigger(st)
		if err != nil {
			return err
		}
		return p.rt.TriggeredGet(req, trig, st.Threshold)
	}
	return p.rt.Get(req)
}

func atomicArgs(st Step) (ptl.Op, ptl.Datatype, error) {
	op, ok := ptl.ParseOp(st.AtomicOp)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown atomic op %q", ErrInvalid, st.AtomicOp)
	}
	name := st.Datatype
	if name == "" {
		name = "PTL_UINT64_T"
	}
	dt, ok := ptl.ParseDatatype(name)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown datatype %q", ErrInvalid, st.Datatype)
	}
	return op, dt, nil
}

func (r *runner) atomic(p *process, st Step) error {
	md, length, err := r.transfer(st.MD, st.LocalOffset, st.Length)
	if err != nil {
		return err
	}
	pt, err := r.ptIndex(st)
	if err != nil {
		return err
	}
	op, dt, err := atomicArgs(st)
	if err != nil {
		return err
	}
	ack, ok := ackKinds[st.Ack]
	if !ok {
		return fmt.Errorf("%w: unknown ack %q", ErrInvalid, st.Ack)
	}
	req := ptl.AtomicRequest{
		MD:           md.handle,
		LocalOffset:  st.LocalOffset,
		Length:       length,
		AckReq:       ack,
		Target:       r.target(p, st),
		PTIndex:      pt,
		MatchBits:    st.MatchBits,
		RemoteOffset: st.RemoteOffset,
		UserPtr:      st.Name,
		HdrData:      st.HdrData,
		Op:           op,
		Datatype:     dt,
	}
	if st.Op == OpTriggeredAtomic {
		trig, err := r.trigger(st)
		if err != nil {
			return err
		}
		return p.rt.TriggeredAtomic(req, trig, st.Threshold)
	}
	return p.rt.Atomic(req)
}

func (r *runner) fetch(p *process, st Step) error {
	put, length, err := r.transfer(st.PutMD, st.LocalOffset, st.Length)
	if err != nil {
		return err
	}
	get, err := r.lookup(st.GetMD)
	if err != nil {
		return err
	}
	pt, err := r.ptIndex(st)
	if err != nil {
		return err
	}
	op, dt, err := atomicArgs(st)
	if err != nil {
		return err
	}
	if st.Op == OpFetchAtomic {
		return p.rt.FetchAtomic(ptl.FetchAtomicRequest{
			GetMD:          get.handle,
			LocalGetOffset: st.LocalGetOffset,
			PutMD:          put.handle,
			LocalPutOffset: st.LocalOffset,
			Length:         length,
			Target:         r.target(p, st),
			PTIndex:        pt,
			MatchBits:      st.MatchBits,
			RemoteOffset:   st.RemoteOffset,
			UserPtr:        st.Name,
			HdrData:        st.HdrData,
			Op:             op,
			Datatype:       dt,
		})
	}
	var operand []byte
	if st.Operand != nil {
		operand = make([]byte, 8)
		binary.LittleEndian.PutUint64(operand, *st.Operand)
		if size := dt.Size(); size > 0 && size < len(operand) {
			operand = operand[:size]
		}
	}
	return p.rt.Swap(ptl.SwapRequest{
		GetMD:          get.handle,
		LocalGetOffset: st.LocalGetOffset,
		PutMD:          put.handle,
		LocalPutOffset: st.LocalOffset,
		Length:         length,
		Target:         r.target(p, st),
		PTIndex:        pt,
		MatchBits:      st.MatchBits,
		RemoteOffset:   st.RemoteOffset,
		UserPtr:        st.Name,
		HdrData:        st.HdrData,
		Operand:        operand,
		Op:             op,
		Datatype:       dt,
	})
}

func (r *runner) counter(ctx context.Context, p *process, st Step) (string, []string, error) {
	ct, err := r.ctFor(st.Name)
	if err != nil {
		return "", nil, err
	}
	value := ptl.CTEvent{Success: st.Success, Failure: st.Failure}
	switch st.Op {
	case OpCTFree:
		return "", nil, p.rt.CTFree(ct)
	case OpCTInc:
		return "", nil, p.rt.CTInc(ct, value)
	case OpCTSet:
		return "", nil, p.rt.CTSet(ct, value)
	case OpCTCancel:
		return "", nil, p.rt.CTCancelTriggered(ct)
	case OpCTGet:
		v, err := p.rt.CTGet(ct)
		return counterDetail(v), nil, err
	}
	wctx, cancel := context.WithTimeout(ctx, r.cfg.waitTimeout)
	defer cancel()
	v, err := p.rt.CTWaitContext(wctx, ct, st.Test)
	return counterDetail(v), nil, err
}

func counterDetail(v ptl.CTEvent) string {
	return fmt.Sprintf("success=%d failure=%d", v.Success, v.Failure)
}

func (r *runner) triggeredCounter(p *process, st Step) error {
	ct, err := r.ctFor(st.Name)
	if err != nil {
		return err
	}
	trig, err := r.trigger(st)
	if err != nil {
		return err
	}
	value := ptl.CTEvent{Success: st.Success, Failure: st.Failure}
	if st.Op == OpTriggeredCTSet {
		return p.rt.TriggeredCTSet(ct, value, trig, st.Threshold)
	}
	return p.rt.TriggeredCTInc(ct, value, trig, st.Threshold)
}

// drain empties the process event queue. With a count it instead waits for
// exactly that many events.
func (r *runner) drain(ctx context.Context, p *process, st Step) (string, []string, error) {
	var lines []string
	record := func(ev ptl.Event, dropped bool) {
		line := fmt.Sprintf("    %s %s", p.name, ptl.EvToStr(p.options, &ev))
		if dropped {
			line += " (dropped)"
		}
		lines = append(lines, line)
	}
	queues := []ptl.Handle{p.eq}
	for st.Count <= 0 || len(lines) < st.Count {
		var (
			ev  ptl.Event
			err error
		)
		if st.Count > 0 {
			ev, _, err = p.rt.EQPollContext(ctx, queues, r.cfg.waitTimeout)
		} else {
			ev, err = p.rt.EQGet(p.eq)
		}
		switch {
		case err == nil:
			record(ev, false)
		case errors.Is(err, ptl.ErrEQDropped):
			record(ev, true)
		case errors.Is(err, ptl.ErrEQEmpty) && st.Count <= 0:
			return fmt.Sprintf("events=%d", len(lines)), lines, nil
		default:
			return "", lines, err
		}
	}
	return fmt.Sprintf("events=%d", len(lines)), lines, nil
}

func (r *runner) status(p *process, st Step) (string, []string, error) {
	var (
		v   uint64
		err error
	)
	switch st.Register {
	case "triggered_failures":
		v, err = p.rt.TriggeredFailures(p.ni)
	case "triggered_fired":
		v, err = p.rt.TriggeredFired(p.ni)
	default:
		reg, ok := registers[st.Register]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown status register %q", ErrInvalid, st.Register)
		}
		v, err = p.rt.NIStatus(p.ni, reg)
	}
	return fmt.Sprintf("%s=%d", st.Register, v), nil, err
}

func (r *runner) dump(st Step) (string, []string, error) {
	obj, err := r.lookup(st.Name)
	if err != nil {
		return "", nil, err
	}
	buf := obj.buf
	if st.LocalOffset > uint64(len(buf)) {
		return "", nil, fmt.Errorf("%w: dump offset %d beyond %q", ErrInvalid, st.LocalOffset, st.Name)
	}
	buf = buf[st.LocalOffset:]
	if st.Length > 0 && st.Length < uint64(len(buf)) {
		buf = buf[:st.Length]
	}
	switch st.Format {
	case "", "text":
		return fmt.Sprintf("text=%q", string(buf)), nil, nil
	case "words":
		words := make([]uint64, len(buf)/8)
		for i := range words {
			words[i] = binary.LittleEndian.Uint64(buf[8*i:])
		}
		return fmt.Sprintf("words=%v", words), nil, nil
	}
	return "", nil, fmt.Errorf("%w: unknown dump format %q", ErrInvalid, st.Format)
}
