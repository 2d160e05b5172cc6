package ptl

// PutRequest carries the arguments of PtlPut.
type PutRequest struct {
	MD           Handle
	LocalOffset  uint64
	Length       uint64
	AckReq       int32
	Target       Process
	PTIndex      uint32
	MatchBits    uint64
	RemoteOffset uint64
	UserPtr      any
	HdrData      uint64
}

// GetRequest carries the arguments of PtlGet.
type GetRequest struct {
	MD           Handle
	LocalOffset  uint64
	Length       uint64
	Target       Process
	PTIndex      uint32
	MatchBits    uint64
	RemoteOffset uint64
	UserPtr      any
}

// AtomicRequest carries the arguments of PtlAtomic.
type AtomicRequest struct {
	MD           Handle
	LocalOffset  uint64
	Length       uint64
	AckReq       int32
	Target       Process
	PTIndex      uint32
	MatchBits    uint64
	RemoteOffset uint64
	UserPtr      any
	HdrData      uint64
	Op           Op
	Datatype     Datatype
}

// FetchAtomicRequest carries the arguments of PtlFetchAtomic. The original
// target contents land in GetMD; the operand comes from PutMD.
type FetchAtomicRequest struct {
	GetMD          Handle
	LocalGetOffset uint64
	PutMD          Handle
	LocalPutOffset uint64
	Length         uint64
	Target         Process
	PTIndex        uint32
	MatchBits      uint64
	RemoteOffset   uint64
	UserPtr        any
	HdrData        uint64
	Op             Op
	Datatype       Datatype
}

// SwapRequest carries the arguments of PtlSwap. Operand is the comparison
// value or mask for the conditional and masked swaps.
type SwapRequest struct {
	GetMD          Handle
	LocalGetOffset uint64
	PutMD          Handle
	LocalPutOffset uint64
	Length         uint64
	Target         Process
	PTIndex        uint32
	MatchBits      uint64
	RemoteOffset   uint64
	UserPtr        any
	HdrData        uint64
	Operand        []byte
	Op             Op
	Datatype       Datatype
}

// operation is a validated request ready to run now or when a trigger fires.
type operation struct {
	name         string
	class        opClass
	ni           *netIface
	putMD        *memDesc
	putOff       uint64
	getMD        *memDesc
	getOff       uint64
	length       uint64
	ackReq       int32
	target       Process
	ptIndex      uint32
	matchBits    uint64
	remoteOffset uint64
	hdrData      uint64
	userPtr      any
	op           Op
	dt           Datatype
	operand      []byte
}

func (o *operation) mds() []*memDesc {
	var out []*memDesc
	if o.putMD != nil {
		out = append(out, o.putMD)
	}
	if o.getMD != nil && o.getMD != o.putMD {
		out = append(out, o.getMD)
	}
	return out
}

// Put writes Length bytes of the MD, starting at LocalOffset, into the
// target's memory.
func (r *Runtime) Put(req PutRequest) error {
	o, err := r.preparePut(req, "PtlPut")
	if err != nil {
		return err
	}
	return r.execute(o)
}

// Get reads Length bytes of target memory into the MD at LocalOffset.
func (r *Runtime) Get(req GetRequest) error {
	o, err := r.prepareGet(req, "PtlGet")
	if err != nil {
		return err
	}
	return r.execute(o)
}

// Atomic combines the MD's elements into target memory with req.Op.
func (r *Runtime) Atomic(req AtomicRequest) error {
	o, err := r.prepareAtomic(req, "PtlAtomic")
	if err != nil {
		return err
	}
	return r.execute(o)
}

// FetchAtomic is Atomic that also returns the prior target contents.
func (r *Runtime) FetchAtomic(req FetchAtomicRequest) error {
	o, err := r.prepareFetch(req, "PtlFetchAtomic")
	if err != nil {
		return err
	}
	return r.execute(o)
}

// Swap performs one of the swap operations and returns the prior target
// contents.
func (r *Runtime) Swap(req SwapRequest) error {
	o, err := r.prepareSwap(req, "PtlSwap")
	if err != nil {
		return err
	}
	return r.execute(o)
}

func (r *Runtime) preparePut(req PutRequest, name string) (*operation, error) {
	n, md, err := r.lookupMD(req.MD, name)
	if err != nil {
		return nil, err
	}
	o := &operation{
		name:         name,
		class:        classPut,
		ni:           n,
		putMD:        md,
		putOff:       req.LocalOffset,
		length:       req.Length,
		ackReq:       req.AckReq,
		ptIndex:      req.PTIndex,
		matchBits:    req.MatchBits,
		remoteOffset: req.RemoteOffset,
		hdrData:      req.HdrData,
		userPtr:      req.UserPtr,
	}
	return o, o.validate(req.Target)
}

func (r *Runtime) prepareGet(req GetRequest, name string) (*operation, error) {
	n, md, err := r.lookupMD(req.MD, name)
	if err != nil {
		return nil, err
	}
	o := &operation{
		name:         name,
		class:        classGet,
		ni:           n,
		getMD:        md,
		getOff:       req.LocalOffset,
		length:       req.Length,
		ptIndex:      req.PTIndex,
		matchBits:    req.MatchBits,
		remoteOffset: req.RemoteOffset,
		userPtr:      req.UserPtr,
	}
	return o, o.validate(req.Target)
}

func (r *Runtime) prepareAtomic(req AtomicRequest, name string) (*operation, error) {
	n, md, err := r.lookupMD(req.MD, name)
	if err != nil {
		return nil, err
	}
	o := &operation{
		name:         name,
		class:        classAtomic,
		ni:           n,
		putMD:        md,
		putOff:       req.LocalOffset,
		length:       req.Length,
		ackReq:       req.AckReq,
		ptIndex:      req.PTIndex,
		matchBits:    req.MatchBits,
		remoteOffset: req.RemoteOffset,
		hdrData:      req.HdrData,
		userPtr:      req.UserPtr,
		op:           req.Op,
		dt:           req.Datatype,
	}
	return o, o.validate(req.Target)
}

func (r *Runtime) prepareFetch(req FetchAtomicRequest, name string) (*operation, error) {
	o, err := r.prepareFetchLike(req.GetMD, req.PutMD, name)
	if err != nil {
		return nil, err
	}
	o.class = classFetch
	o.getOff, o.putOff = req.LocalGetOffset, req.LocalPutOffset
	o.length = req.Length
	o.ptIndex, o.matchBits, o.remoteOffset = req.PTIndex, req.MatchBits, req.RemoteOffset
	o.userPtr, o.hdrData = req.UserPtr, req.HdrData
	o.op, o.dt = req.Op, req.Datatype
	return o, o.validate(req.Target)
}

func (r *Runtime) prepareSwap(req SwapRequest, name string) (*operation, error) {
	o, err := r.prepareFetchLike(req.GetMD, req.PutMD, name)
	if err != nil {
		return nil, err
	}
	o.class = classSwap
	o.getOff, o.putOff = req.LocalGetOffset, req.LocalPutOffset
	o.length = req.Length
	o.ptIndex, o.matchBits, o.remoteOffset = req.PTIndex, req.MatchBits, req.RemoteOffset
	o.userPtr, o.hdrData = req.UserPtr, req.HdrData
	o.op, o.dt = req.Op, req.Datatype
	o.operand = append([]byte(nil), req.Operand...)
	return o, o.validate(req.Target)
}

func (r *Runtime) prepareFetchLike(getH, putH Handle, name string) (*operation, error) {
	gn, getMD, err := r.lookupMD(getH, name)
	if err != nil {
		return nil, err
	}
	pn, putMD, err := r.lookupMD(putH, name)
	if err != nil {
		return nil, err
	}
	if gn != pn {
		return nil, ErrArgInvalid.WithOp(name)
	}
	return &operation{name: name, ni: gn, getMD: getMD, putMD: putMD, ackReq: NoAckReq}, nil
}

// validate enforces the negotiated limits and argument rules so that a
// rejected request never changes any state.
func (o *operation) validate(target Process) error {
	lim := o.ni.limits
	if o.length > lim.MaxMsgSize || o.ackReq < NoAckReq || o.ackReq > AckReq {
		return ErrArgInvalid.WithOp(o.name)
	}
	if o.putMD != nil && !o.putMD.region.within(o.putOff, o.length) {
		return ErrArgInvalid.WithOp(o.name)
	}
	if o.getMD != nil && !o.getMD.region.within(o.getOff, o.length) {
		return ErrArgInvalid.WithOp(o.name)
	}
	if o.class.atomic() {
		if err := o.validateAtomic(lim); err != nil {
			return err
		}
	}
	phys, err := o.ni.resolveTarget(target)
	if err != nil {
		return ErrArgInvalid.WithOp(o.name)
	}
	o.target = phys
	return nil
}

func (o *operation) validateAtomic(lim Limits) error {
	size := uint64(o.dt.Size())
	max := lim.MaxFetchAtomicSize
	if o.class == classAtomic {
		max = lim.MaxAtomicSize
	}
	switch {
	case !o.op.Supports(o.dt), size == 0:
		return ErrArgInvalid.WithOp(o.name)
	case o.length > max, o.length%size != 0:
		return ErrArgInvalid.WithOp(o.name)
	case o.class == classSwap && !o.op.IsSwap():
		return ErrArgInvalid.WithOp(o.name)
	case o.class != classSwap && o.op.IsSwap():
		return ErrArgInvalid.WithOp(o.name)
	case o.op.SingleElement() && (o.length != size || uint64(len(o.operand)) < size):
		return ErrArgInvalid.WithOp(o.name)
	}
	return nil
}

// execute runs a validated operation to completion: the message is delivered
// to the target under its lock, then the initiator's events are produced.
func (r *Runtime) execute(o *operation) error {
	n := o.ni
	m := &message{
		class:        o.class,
		initiator:    n.self(),
		uid:          r.uid,
		ptIndex:      o.ptIndex,
		matchBits:    o.matchBits,
		remoteOffset: o.remoteOffset,
		hdrData:      o.hdrData,
		length:       o.length,
		op:           o.op,
		dt:           o.dt,
		operand:      o.operand,
	}
	if o.putMD != nil {
		payload, err := r.scratch(o.length)
		if err != nil {
			return ErrNoSpace.WithOp(o.name)
		}
		defer r.release(payload)
		o.putMD.region.read(o.putOff, payload)
		m.payload = payload
	}

	target := r.fabric.lookup(o.target.NID, o.target.PID, n.options)
	if o.class != classGet {
		fail := NIOK
		if target == nil {
			fail = NIUndeliverable
		}
		o.putMD.completion(o.event(EventSend, fail, o.length, o.remoteOffset, o.putMD, o.putOff),
			!o.putMD.has(MDEventSendDisable), o.putMD.has(MDEventCTSend), o.length)
	}

	res := delivery{fail: NIUndeliverable}
	if target != nil {
		res = target.deliver(m)
		if res.reply != nil {
			defer target.rt.release(res.reply)
		}
	}

	switch o.class {
	case classPut, classAtomic:
		o.acknowledge(res)
	default:
		if res.fail == NIOK {
			o.getMD.region.write(o.getOff, res.reply[:res.mlength])
		}
		o.getMD.completion(o.event(EventReply, res.fail, res.mlength, res.offset, o.getMD, o.getOff),
			true, o.getMD.has(MDEventCTReply), res.mlength)
	}
	return nil
}

// acknowledge produces the ACK event and counter update the request asked
// for. Entries with MEAckDisable suppress successful acknowledgements.
func (o *operation) acknowledge(res delivery) {
	if o.ackReq == NoAckReq || (res.ackDisabled && res.fail == NIOK) {
		return
	}
	post := o.ackReq == AckReq || o.ackReq == OCAckReq
	count := (o.ackReq == AckReq || o.ackReq == CTAckReq) && o.putMD.has(MDEventCTAck)
	o.putMD.completion(o.event(EventAck, res.fail, res.mlength, res.offset, o.putMD, o.putOff), post, count, res.mlength)
}

func (o *operation) event(kind EventKind, fail NIFail, mlength, remoteOffset uint64, md *memDesc, localOff uint64) Event {
	ev := Event{
		Start:        md.region.slice(localOff, mlength),
		UserPtr:      o.userPtr,
		HdrData:      o.hdrData,
		MatchBits:    o.matchBits,
		RLength:      o.length,
		MLength:      mlength,
		RemoteOffset: remoteOffset,
		Initiator:    o.target,
		Type:         kind,
		PTIndex:      o.ptIndex,
		NIFailType:   fail,
	}
	if o.class.atomic() {
		ev.AtomicOperation = o.op
		ev.AtomicType = o.dt
	}
	return ev
}
