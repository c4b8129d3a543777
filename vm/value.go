package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Ref: generation-checked heap handle
// ---------------------------------------------------------------------------

// Ref is a handle to a heap object or array.
//
// The low 32 bits hold the arena index plus one, the high 32 bits hold the
// generation of the arena slot at allocation time. The zero Ref is null. A
// Ref whose generation no longer matches its slot is dangling and is rejected
// by every heap accessor.
type Ref uint64

// Null is the null reference.
const Null Ref = 0

func makeRef(index int, generation uint32) Ref {
	return Ref(uint64(generation)<<32 | uint64(uint32(index+1)))
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == Null
}

func (r Ref) index() int {
	return int(uint32(r)) - 1
}

func (r Ref) generation() uint32 {
	return uint32(r >> 32)
}

// String implements the Stringer interface.
func (r Ref) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprintf("@%d.%d", r.index(), r.generation())
}

// ---------------------------------------------------------------------------
// Value: tagged stack/field slot
// ---------------------------------------------------------------------------

// Value is a single slot of the operand stack, a local variable, an object
// field or an array element.
//
// Numeric values store their bit pattern in Bits; references store a Ref.
// The Kind tag lets the collector find references precisely without stack
// maps. Instructions do not consult the tag for their semantics: an iadd reads
// two int payloads whatever the tags say, matching the untyped-by-convention
// stack of the class file model.
type Value struct {
	Kind Kind
	Bits uint64
}

// Int returns an int value.
func Int(v int32) Value {
	return Value{Kind: KindInt, Bits: uint64(uint32(v))}
}

// Long returns a long value.
func Long(v int64) Value {
	return Value{Kind: KindLong, Bits: uint64(v)}
}

// Float returns a float value.
func Float(v float32) Value {
	return Value{Kind: KindFloat, Bits: uint64(math.Float32bits(v))}
}

// Double returns a double value.
func Double(v float64) Value {
	return Value{Kind: KindDouble, Bits: math.Float64bits(v)}
}

// Bool returns a boolean as an int value (1 or 0).
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// Reference returns a reference value.
func Reference(r Ref) Value {
	return Value{Kind: KindRef, Bits: uint64(r)}
}

// NullValue returns the null reference value.
func NullValue() Value {
	return Value{Kind: KindRef}
}

// AsInt returns the int payload.
func (v Value) AsInt() int32 {
	return int32(uint32(v.Bits))
}

// AsLong returns the long payload.
func (v Value) AsLong() int64 {
	return int64(v.Bits)
}

// AsFloat returns the float payload.
func (v Value) AsFloat() float32 {
	return math.Float32frombits(uint32(v.Bits))
}

// AsDouble returns the double payload.
func (v Value) AsDouble() float64 {
	return math.Float64frombits(v.Bits)
}

// AsBool returns true for a non-zero int payload.
func (v Value) AsBool() bool {
	return v.AsInt() != 0
}

// AsRef returns the reference payload.
func (v Value) AsRef() Ref {
	return Ref(v.Bits)
}

// IsRef reports whether the slot holds a reference (possibly null).
func (v Value) IsRef() bool {
	return v.Kind == KindRef
}

// IsWide reports whether the value is a category-2 value.
func (v Value) IsWide() bool {
	return v.Kind.IsWide()
}

// String implements the Stringer interface.
func (v Value) String() string {
	switch v.Kind {
	case KindVoid:
		return "void"
	case KindBoolean, KindByte, KindChar, KindShort, KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KindLong:
		return fmt.Sprintf("%dL", v.AsLong())
	case KindFloat:
		return fmt.Sprintf("%gf", v.AsFloat())
	case KindDouble:
		return fmt.Sprintf("%g", v.AsDouble())
	case KindRef:
		return v.AsRef().String()
	}
	return fmt.Sprintf("?%x", v.Bits)
}

// zeroValue returns the default value of a field or element of kind k.
func zeroValue(k Kind) Value {
	return Value{Kind: k.StackKind()}
}

// narrow converts a stack value into the representation stored in a slot of
// kind k, truncating ints for the narrow kinds.
func narrow(k Kind, v Value) Value {
	switch k {
	case KindBoolean:
		return Int(v.AsInt() & 1)
	case KindByte:
		return Int(int32(int8(v.AsInt())))
	case KindChar:
		return Int(int32(uint16(v.AsInt())))
	case KindShort:
		return Int(int32(int16(v.AsInt())))
	}
	v.Kind = k.StackKind()
	return v
}
