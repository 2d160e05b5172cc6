package ptl

// opClass is the kind of a one-sided operation as seen by the target.
type opClass int

const (
	classPut opClass = iota
	classGet
	classAtomic
	classFetch
	classSwap
)

var classNames = [...]string{
	classPut:    "put",
	classGet:    "get",
	classAtomic: "atomic",
	classFetch:  "fetch_atomic",
	classSwap:   "swap",
}

func (c opClass) String() string {
	return classNames[c]
}

// targetEvent is the communication event an operation raises at the target.
func (c opClass) targetEvent() EventKind {
	switch c {
	case classGet:
		return EventGet
	case classAtomic:
		return EventAtomic
	case classFetch, classSwap:
		return EventFetchAtomic
	default:
		return EventPut
	}
}

// required is the set of ME permissions the operation needs.
func (c opClass) required() uint32 {
	switch c {
	case classGet:
		return MEOpGet
	case classFetch, classSwap:
		return MEOpPut | MEOpGet
	default:
		return MEOpPut
	}
}

func (c opClass) atomic() bool {
	return c == classAtomic || c == classFetch || c == classSwap
}

// header records a message that landed on the overflow list, so a later
// priority append or search can claim it.
type header struct {
	class     opClass
	entry     *entry
	initiator Process
	uid       uint32
	matchBits uint64
	hdrData   uint64
	rlength   uint64
	mlength   uint64
	offset    uint64
	start     []byte
	op        Op
	dt        Datatype
}

func (h *header) event(kind EventKind, userPtr any, ptIndex uint32, list int32) Event {
	return Event{
		Start:           h.start,
		UserPtr:         userPtr,
		HdrData:         h.hdrData,
		MatchBits:       h.matchBits,
		RLength:         h.rlength,
		MLength:         h.mlength,
		RemoteOffset:    h.offset,
		UID:             h.uid,
		Initiator:       h.initiator,
		Type:            kind,
		PtlList:         list,
		PTIndex:         ptIndex,
		NIFailType:      NIOK,
		AtomicOperation: h.op,
		AtomicType:      h.dt,
	}
}

// matchesBits applies the match/ignore predicate.
func (e *entry) matchesBits(bits uint64) bool {
	return (bits^e.me.MatchBits)&^e.me.IgnoreBits == 0
}

// matchesID filters on the initiator, honoring wildcards.
func (e *entry) matchesID(init Process, logical bool) bool {
	id := e.me.MatchID
	if logical {
		return id.Rank == RankAny || id.Rank == init.Rank
	}
	return (id.NID == NIDAny || id.NID == init.NID) && (id.PID == PIDAny || id.PID == init.PID)
}

// matches reports whether a message with bits from init selects e. Entries on
// non-matching interfaces accept every message.
func (n *netIface) matches(e *entry, bits uint64, init Process) bool {
	if !n.matching() {
		return true
	}
	return e.matchesBits(bits) && e.matchesID(init, n.logical())
}

// permits checks operation and uid permissions after a match.
func (e *entry) permits(c opClass, uid uint32) NIFail {
	need := c.required()
	if e.me.Options&need != need {
		return NIOpViolation
	}
	if e.me.UID != UIDAny && uint32(e.me.UID) != uid {
		return NIPermViolation
	}
	return NIOK
}

// targetOffset is where a message lands in e: the managed local offset, or
// the offset the initiator asked for.
func (e *entry) targetOffset(remote uint64) uint64 {
	if e.me.Options&MEManageLocal != 0 {
		return e.offset
	}
	return remote
}

// fit returns how many of length bytes land in e starting at off.
func (e *entry) fit(off, length uint64) uint64 {
	if off >= e.region.length {
		return 0
	}
	if room := e.region.length - off; length > room {
		return room
	}
	return length
}

// admits applies the truncation policy.
func (e *entry) admits(remote, length uint64) bool {
	if e.me.Options&MENoTruncate == 0 {
		return true
	}
	return e.fit(e.targetOffset(remote), length) == length
}
