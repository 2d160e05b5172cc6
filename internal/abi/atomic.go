package abi

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Op enumerates ptl_op_t.
type Op int32

const (
	OpMin     Op = 0x0
	OpMax     Op = 0x1
	OpSum     Op = 0x2
	OpProd    Op = 0x3
	OpLOr     Op = 0x4
	OpLAnd    Op = 0x5
	OpLXor    Op = 0x6
	OpBOr     Op = 0x8
	OpBAnd    Op = 0x9
	OpBXor    Op = 0xa
	OpSwap    Op = 0xc
	OpCSwapGT Op = 0x10
	OpCSwapLT Op = 0x11
	OpCSwapGE Op = 0x12
	OpCSwapLE Op = 0x13
	OpCSwap   Op = 0x14
	OpCSwapNE Op = 0x15
	OpMSwap   Op = 0x18
)

var opNames = map[Op]string{
	OpMin:     "PTL_MIN",
	OpMax:     "PTL_MAX",
	OpSum:     "PTL_SUM",
	OpProd:    "PTL_PROD",
	OpLOr:     "PTL_LOR",
	OpLAnd:    "PTL_LAND",
	OpLXor:    "PTL_LXOR",
	OpBOr:     "PTL_BOR",
	OpBAnd:    "PTL_BAND",
	OpBXor:    "PTL_BXOR",
	OpSwap:    "PTL_SWAP",
	OpCSwapGT: "PTL_CSWAP_GT",
	OpCSwapLT: "PTL_CSWAP_LT",
	OpCSwapGE: "PTL_CSWAP_GE",
	OpCSwapLE: "PTL_CSWAP_LE",
	OpCSwap:   "PTL_CSWAP",
	OpCSwapNE: "PTL_CSWAP_NE",
	OpMSwap:   "PTL_MSWAP",
}

// ParseOp resolves a PTL_* operation name.
func ParseOp(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// Valid reports whether o is a defined operation.
func (o Op) Valid() bool {
	_, ok := opNames[o]
	return ok
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("PTL_OP_UNKNOWN(%d)", int32(o))
}

// IsSwap reports whether the operation is only valid through PtlSwap.
func (o Op) IsSwap() bool {
	switch o {
	case OpSwap, OpCSwapGT, OpCSwapLT, OpCSwapGE, OpCSwapLE, OpCSwap, OpCSwapNE, OpMSwap:
		return true
	default:
		return false
	}
}

// SingleElement reports whether the operation takes exactly one element and
// consults the operand argument.
func (o Op) SingleElement() bool {
	return o.IsSwap() && o != OpSwap
}

// Datatype enumerates ptl_datatype_t.
type Datatype int32

const (
	Int8              Datatype = 0x0
	Uint8             Datatype = 0x1
	Int16             Datatype = 0x2
	Uint16            Datatype = 0x3
	Int32             Datatype = 0x4
	Uint32            Datatype = 0x5
	Int64             Datatype = 0x6
	Uint64            Datatype = 0x7
	Float             Datatype = 0xa
	FloatComplex      Datatype = 0xb
	Double            Datatype = 0xc
	DoubleComplex     Datatype = 0xd
	LongDouble        Datatype = 0x14
	LongDoubleComplex Datatype = 0x15
)

type dtClass int

const (
	classSigned dtClass = iota
	classUnsigned
	classFloat
	classComplex
	classExtended
)

type dtInfo struct {
	name  string
	size  int
	class dtClass
}

var datatypes = map[Datatype]dtInfo{
	Int8:              {"PTL_INT8_T", 1, classSigned},
	Uint8:             {"PTL_UINT8_T", 1, classUnsigned},
	Int16:             {"PTL_INT16_T", 2, classSigned},
	Uint16:            {"PTL_UINT16_T", 2, classUnsigned},
	Int32:             {"PTL_INT32_T", 4, classSigned},
	Uint32:            {"PTL_UINT32_T", 4, classUnsigned},
	Int64:             {"PTL_INT64_T", 8, classSigned},
	Uint64:            {"PTL_UINT64_T", 8, classUnsigned},
	Float:             {"PTL_FLOAT", 4, classFloat},
	FloatComplex:      {"PTL_FLOAT_COMPLEX", 8, classComplex},
	Double:            {"PTL_DOUBLE", 8, classFloat},
	DoubleComplex:     {"PTL_DOUBLE_COMPLEX", 16, classComplex},
	LongDouble:        {"PTL_LONG_DOUBLE", 16, classExtended},
	LongDoubleComplex: {"PTL_LONG_DOUBLE_COMPLEX", 32, classExtended},
}

// ParseDatatype resolves a PTL_* datatype name.
func ParseDatatype(name string) (Datatype, bool) {
	for dt, info := range datatypes {
		if info.name == name {
			return dt, true
		}
	}
	return 0, false
}

// Valid reports whether d is a defined datatype.
func (d Datatype) Valid() bool {
	_, ok := datatypes[d]
	return ok
}

func (d Datatype) String() string {
	if info, ok := datatypes[d]; ok {
		return info.name
	}
	return fmt.Sprintf("PTL_DATATYPE_UNKNOWN(%d)", int32(d))
}

// Size returns the element width in bytes, or zero for undefined datatypes.
func (d Datatype) Size() int {
	return datatypes[d].size
}

// Supports reports whether the engine can apply op to elements of type d.
// Extended-precision types are sized but never arithmetically supported.
func (o Op) Supports(d Datatype) bool {
	info, ok := datatypes[d]
	if !ok || !o.Valid() {
		return false
	}
	switch info.class {
	case classSigned, classUnsigned:
		return true
	case classFloat:
		switch o {
		case OpLOr, OpLAnd, OpLXor, OpBOr, OpBAnd, OpBXor, OpMSwap:
			return false
		}
		return true
	case classComplex:
		switch o {
		case OpSum, OpProd, OpSwap, OpCSwap, OpCSwapNE:
			return true
		}
		return false
	default:
		return false
	}
}

// ApplyAtomic combines src into dst element by element. operand supplies the
// comparison value or mask for single-element swaps and is ignored otherwise.
// Callers validate lengths and op/datatype compatibility first.
func ApplyAtomic(op Op, d Datatype, dst, src, operand []byte) {
	info := datatypes[d]
	size := info.size
	if size == 0 {
		return
	}
	for off := 0; off+size <= len(dst) && off+size <= len(src); off += size {
		var opnd []byte
		if len(operand) >= size {
			opnd = operand[:size]
		}
		t, s := dst[off:off+size], src[off:off+size]
		switch info.class {
		case classSigned, classUnsigned:
			applyInt(op, info, t, s, opnd)
		case classFloat:
			applyFloat(op, t, s, opnd)
		case classComplex:
			applyComplex(op, t, s, opnd)
		}
	}
}

func loadUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func storeUint(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func signExtend(v uint64, size int) int64 {
	shift := uint(64 - 8*size)
	return int64(v<<shift) >> shift
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// cmpInt returns -1, 0 or 1 comparing a with b under the element's signedness.
func cmpInt(a, b uint64, info dtInfo) int {
	if info.class == classSigned {
		sa, sb := signExtend(a, info.size), signExtend(b, info.size)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// swapWanted evaluates the conditional-swap predicate "operand <op> target".
func swapWanted(op Op, cmp int) bool {
	switch op {
	case OpCSwap:
		return cmp == 0
	case OpCSwapNE:
		return cmp != 0
	case OpCSwapGT:
		return cmp > 0
	case OpCSwapLT:
		return cmp < 0
	case OpCSwapGE:
		return cmp >= 0
	case OpCSwapLE:
		return cmp <= 0
	}
	return false
}

func applyInt(op Op, info dtInfo, t, s, opnd []byte) {
	a, b := loadUint(t), loadUint(s)
	var r uint64
	switch op {
	case OpMin:
		r = a
		if cmpInt(b, a, info) < 0 {
			r = b
		}
	case OpMax:
		r = a
		if cmpInt(b, a, info) > 0 {
			r = b
		}
	case OpSum:
		r = a + b
	case OpProd:
		r = a * b
	case OpLOr:
		r = boolBit(a != 0 || b != 0)
	case OpLAnd:
		r = boolBit(a != 0 && b != 0)
	case OpLXor:
		r = boolBit((a != 0) != (b != 0))
	case OpBOr:
		r = a | b
	case OpBAnd:
		r = a & b
	case OpBXor:
		r = a ^ b
	case OpSwap:
		r = b
	case OpMSwap:
		if opnd == nil {
			return
		}
		mask := loadUint(opnd)
		r = (b & mask) | (a &^ mask)
	default:
		if opnd == nil {
			return
		}
		r = a
		if swapWanted(op, cmpInt(loadUint(opnd), a, info)) {
			r = b
		}
	}
	storeUint(t, r)
}

func loadFloat(b []byte) float64 {
	if len(b) == 4 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func storeFloat(b []byte, v float64) {
	if len(b) == 4 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaN compares unequal to everything.
	return 2
}

func applyFloat(op Op, t, s, opnd []byte) {
	a, b := loadFloat(t), loadFloat(s)
	r := a
	switch op {
	case OpMin:
		r = math.Min(a, b)
	case OpMax:
		r = math.Max(a, b)
	case OpSum:
		r = a + b
	case OpProd:
		r = a * b
	case OpSwap:
		r = b
	default:
		if opnd == nil {
			return
		}
		c := cmpFloat(loadFloat(opnd), a)
		if c == 2 {
			if op == OpCSwapNE {
				r = b
			}
		} else if swapWanted(op, c) {
			r = b
		}
	}
	storeFloat(t, r)
}

func loadComplex(b []byte) complex128 {
	half := len(b) / 2
	return complex(loadFloat(b[:half]), loadFloat(b[half:]))
}

func storeComplex(b []byte, v complex128) {
	half := len(b) / 2
	storeFloat(b[:half], real(v))
	storeFloat(b[half:], imag(v))
}

func applyComplex(op Op, t, s, opnd []byte) {
	a, b := loadComplex(t), loadComplex(s)
	r := a
	switch op {
	case OpSum:
		r = a + b
	case OpProd:
		r = a * b
	case OpSwap:
		r = b
	case OpCSwap, OpCSwapNE:
		if opnd == nil {
			return
		}
		equal := loadComplex(opnd) == a
		if equal == (op == OpCSwap) {
			r = b
		}
	default:
		return
	}
	storeComplex(t, r)
}
