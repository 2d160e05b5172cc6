package ptl

import (
	"fmt"

	"github.com/rocketbitz/portals4-go/internal/handle"
)

type handleKind uint8

const (
	kindNone handleKind = iota
	kindNI
	kindEQ
	kindCT
	kindMD
	kindME
	kindLE
)

var kindNames = [...]string{
	kindNone: "none",
	kindNI:   "ni",
	kindEQ:   "eq",
	kindCT:   "ct",
	kindMD:   "md",
	kindME:   "me",
	kindLE:   "le",
}

// Handle is an opaque reference to an NI, EQ, CT, MD, ME or LE. Handles are
// small values: comparing two handles with == (or HandleIsEqual) compares the
// objects they name, and a handle to a released object never resolves again.
type Handle struct {
	runtime uint32
	kind    handleKind
	ni      handle.Ref
	obj     handle.Ref
}

// InvalidHandle never names an object. EQNone and CTNone are the same value
// and mean "no event queue" and "no counting event" where one is optional.
var (
	InvalidHandle = Handle{}
	EQNone        = Handle{}
	CTNone        = Handle{}
)

// HandleIsEqual reports whether a and b name the same object.
func HandleIsEqual(a, b Handle) bool {
	return a == b
}

// IsNone reports whether h is InvalidHandle.
func (h Handle) IsNone() bool {
	return h.kind == kindNone
}

func (h Handle) String() string {
	if h.IsNone() {
		return "handle(none)"
	}
	return fmt.Sprintf("%s(%d:%d@%d:%d)", kindNames[h.kind], h.obj.Slot, h.obj.Gen, h.ni.Slot, h.ni.Gen)
}
