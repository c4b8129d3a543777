package vm

import "fmt"

// ---------------------------------------------------------------------------
// Kind: value categories known to the VM
// ---------------------------------------------------------------------------

// Kind identifies the type of a field, array element, parameter, or stack slot.
//
// Only Int, Long, Float, Double and Ref appear on the operand stack; the
// narrow kinds (Boolean, Byte, Char, Short) are widened to Int when loaded and
// narrowed again when stored into a field or array.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindBoolean: "boolean",
	KindByte:    "byte",
	KindChar:    "char",
	KindShort:   "short",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
	KindRef:     "reference",
}

// String implements the Stringer interface.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// StackKind returns the computational kind used on the operand stack.
func (k Kind) StackKind() Kind {
	switch k {
	case KindBoolean, KindByte, KindChar, KindShort:
		return KindInt
	}
	return k
}

// IsWide reports whether values of this kind are category-2 values
// (long and double), which matters for pop2 and the dup2 family.
func (k Kind) IsWide() bool {
	return k == KindLong || k == KindDouble
}

// IsPrimitive reports whether k is a numeric or boolean kind.
func (k Kind) IsPrimitive() bool {
	return k >= KindBoolean && k <= KindDouble
}

// Size returns the number of heap bytes one element of this kind occupies.
// References are accounted as 8 bytes (a handle).
func (k Kind) Size() int64 {
	switch k {
	case KindBoolean, KindByte:
		return 1
	case KindChar, KindShort:
		return 2
	case KindInt, KindFloat:
		return 4
	case KindLong, KindDouble, KindRef:
		return 8
	}
	return 0
}

// Descriptor returns the single-character descriptor for a primitive kind.
func (k Kind) Descriptor() byte {
	switch k {
	case KindVoid:
		return 'V'
	case KindBoolean:
		return 'Z'
	case KindByte:
		return 'B'
	case KindChar:
		return 'C'
	case KindShort:
		return 'S'
	case KindInt:
		return 'I'
	case KindLong:
		return 'J'
	case KindFloat:
		return 'F'
	case KindDouble:
		return 'D'
	}
	return 'L'
}

// kindFromDescriptor maps a primitive descriptor character to its kind.
func kindFromDescriptor(c byte) (Kind, bool) {
	switch c {
	case 'V':
		return KindVoid, true
	case 'Z':
		return KindBoolean, true
	case 'B':
		return KindByte, true
	case 'C':
		return KindChar, true
	case 'S':
		return KindShort, true
	case 'I':
		return KindInt, true
	case 'J':
		return KindLong, true
	case 'F':
		return KindFloat, true
	case 'D':
		return KindDouble, true
	case 'L', '[':
		return KindRef, true
	}
	return KindVoid, false
}

// ---------------------------------------------------------------------------
// newarray type codes
// ---------------------------------------------------------------------------

// Array type operand values of the newarray instruction.
const (
	ArrayTypeBoolean byte = 4
	ArrayTypeChar    byte = 5
	ArrayTypeFloat   byte = 6
	ArrayTypeDouble  byte = 7
	ArrayTypeByte    byte = 8
	ArrayTypeShort   byte = 9
	ArrayTypeInt     byte = 10
	ArrayTypeLong    byte = 11
)

// KindFromArrayType decodes a newarray operand.
func KindFromArrayType(atype byte) (Kind, bool) {
	switch atype {
	case ArrayTypeBoolean:
		return KindBoolean, true
	case ArrayTypeChar:
		return KindChar, true
	case ArrayTypeFloat:
		return KindFloat, true
	case ArrayTypeDouble:
		return KindDouble, true
	case ArrayTypeByte:
		return KindByte, true
	case ArrayTypeShort:
		return KindShort, true
	case ArrayTypeInt:
		return KindInt, true
	case ArrayTypeLong:
		return KindLong, true
	}
	return KindVoid, false
}

// ArrayType returns the newarray operand for a primitive kind, or 0.
func (k Kind) ArrayType() byte {
	switch k {
	case KindBoolean:
		return ArrayTypeBoolean
	case KindChar:
		return ArrayTypeChar
	case KindFloat:
		return ArrayTypeFloat
	case KindDouble:
		return ArrayTypeDouble
	case KindByte:
		return ArrayTypeByte
	case KindShort:
		return ArrayTypeShort
	case KindInt:
		return ArrayTypeInt
	case KindLong:
		return ArrayTypeLong
	}
	return 0
}
