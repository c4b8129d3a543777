package vm

import (
	"fmt"
	"strings"
)

// MethodType is a parsed method descriptor such as "(IJ[Lpkg/A;)V".
//
// Every parameter occupies exactly one local slot, longs and doubles included.
type MethodType struct {
	Params     []Kind
	ParamTypes []string // type names for reference params, "" otherwise
	Return     Kind
	ReturnType string
	descriptor string
}

// String returns the original descriptor.
func (t *MethodType) String() string {
	return t.descriptor
}

// ArgCount returns the number of declared parameters.
func (t *MethodType) ArgCount() int {
	return len(t.Params)
}

// ParseFieldDescriptor parses a field descriptor, returning its kind and, for
// references, the type name: an internal class name ("pkg/A") or an array
// descriptor ("[I").
func ParseFieldDescriptor(desc string) (Kind, string, error) {
	k, name, n, err := parseType(desc, 0)
	if err != nil {
		return 0, "", err
	}
	if n != len(desc) {
		return 0, "", fmt.Errorf("trailing characters in field descriptor %q", desc)
	}
	if k == KindVoid {
		return 0, "", fmt.Errorf("void field descriptor %q", desc)
	}
	return k, name, nil
}

// ParseMethodDescriptor parses a method descriptor.
func ParseMethodDescriptor(desc string) (*MethodType, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, fmt.Errorf("bad method descriptor %q", desc)
	}
	t := &MethodType{descriptor: desc}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		k, name, next, err := parseType(desc, pos)
		if err != nil {
			return nil, err
		}
		if k == KindVoid {
			return nil, fmt.Errorf("void parameter in %q", desc)
		}
		t.Params = append(t.Params, k)
		t.ParamTypes = append(t.ParamTypes, name)
		pos = next
	}
	if pos >= len(desc) {
		return nil, fmt.Errorf("unterminated parameter list in %q", desc)
	}
	k, name, next, err := parseType(desc, pos+1)
	if err != nil {
		return nil, err
	}
	if next != len(desc) {
		return nil, fmt.Errorf("trailing characters in method descriptor %q", desc)
	}
	t.Return = k
	t.ReturnType = name
	return t, nil
}

// parseType parses one type at pos and returns the position after it.
func parseType(desc string, pos int) (Kind, string, int, error) {
	if pos >= len(desc) {
		return 0, "", pos, fmt.Errorf("truncated descriptor %q", desc)
	}
	switch c := desc[pos]; c {
	case 'L':
		end := strings.IndexByte(desc[pos:], ';')
		if end <= 1 {
			return 0, "", pos, fmt.Errorf("bad class type in %q", desc)
		}
		return KindRef, desc[pos+1 : pos+end], pos + end + 1, nil
	case '[':
		start := pos
		for pos < len(desc) && desc[pos] == '[' {
			pos++
		}
		if pos-start > 255 {
			return 0, "", pos, fmt.Errorf("too many array dimensions in %q", desc)
		}
		k, _, next, err := parseType(desc, pos)
		if err != nil {
			return 0, "", pos, err
		}
		if k == KindVoid {
			return 0, "", pos, fmt.Errorf("void array element in %q", desc)
		}
		return KindRef, desc[start:next], next, nil
	default:
		k, ok := kindFromDescriptor(c)
		if !ok || k == KindRef {
			return 0, "", pos, fmt.Errorf("bad type character %q in %q", c, desc)
		}
		return k, "", pos + 1, nil
	}
}

// ---------------------------------------------------------------------------
// Type names
// ---------------------------------------------------------------------------

// isArrayType reports whether a type name denotes an array ("[...").
func isArrayType(name string) bool {
	return len(name) > 0 && name[0] == '['
}

// arrayElementType returns the element type name of an array type and its
// element kind: "[I" -> ("", KindInt), "[Lpkg/A;" -> ("pkg/A", KindRef),
// "[[I" -> ("[I", KindRef).
func arrayElementType(name string) (string, Kind) {
	elem := name[1:]
	switch elem[0] {
	case 'L':
		return elem[1 : len(elem)-1], KindRef
	case '[':
		return elem, KindRef
	}
	k, _ := kindFromDescriptor(elem[0])
	return "", k
}

// arrayTypeOf returns the array type whose elements are of the given type.
// elemType is a class name, an array descriptor, or "" with a primitive kind.
func arrayTypeOf(elemType string, elemKind Kind) string {
	switch {
	case elemKind != KindRef:
		return "[" + string(elemKind.Descriptor())
	case isArrayType(elemType):
		return "[" + elemType
	}
	return "[L" + elemType + ";"
}
