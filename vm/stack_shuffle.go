package vm

import "fmt"

// shuffle applies pop, pop2, swap or one of the dup instructions to the top
// of s and returns the new stack. wide reports whether an element is a
// category-2 value; the instruction form is chosen from the categories on
// the stack exactly as the class file instruction set defines it.
//
// The verifier runs it over category markers and the interpreter over real
// values, so both agree on every form.
func shuffle[T any](s []T, op Opcode, wide func(T) bool) ([]T, error) {
	n := len(s)
	// c reports whether the i-th element from the top (1-based) exists and
	// has the requested category.
	c := func(i int, cat2 bool) bool {
		return n-i >= 0 && wide(s[n-i]) == cat2
	}
	v := func(i int) T { return s[n-i] }
	replace := func(k int, vals ...T) []T {
		return append(s[:n-k], vals...)
	}

	switch op {
	case OpPop:
		if c(1, false) {
			return s[:n-1], nil
		}
	case OpPop2:
		if c(1, true) {
			return s[:n-1], nil
		}
		if c(1, false) && c(2, false) {
			return s[:n-2], nil
		}
	case OpDup:
		if c(1, false) {
			return append(s, v(1)), nil
		}
	case OpDupX1:
		if c(1, false) && c(2, false) {
			v1, v2 := v(1), v(2)
			return replace(2, v1, v2, v1), nil
		}
	case OpDupX2:
		if c(1, false) && c(2, false) && c(3, false) {
			v1, v2, v3 := v(1), v(2), v(3)
			return replace(3, v1, v3, v2, v1), nil
		}
		if c(1, false) && c(2, true) {
			v1, v2 := v(1), v(2)
			return replace(2, v1, v2, v1), nil
		}
	case OpDup2:
		if c(1, true) {
			return append(s, v(1)), nil
		}
		if c(1, false) && c(2, false) {
			v1, v2 := v(1), v(2)
			return append(s, v2, v1), nil
		}
	case OpDup2X1:
		if c(1, true) && c(2, false) {
			v1, v2 := v(1), v(2)
			return replace(2, v1, v2, v1), nil
		}
		if c(1, false) && c(2, false) && c(3, false) {
			v1, v2, v3 := v(1), v(2), v(3)
			return replace(3, v2, v1, v3, v2, v1), nil
		}
	case OpDup2X2:
		switch {
		case c(1, true) && c(2, true):
			v1, v2 := v(1), v(2)
			return replace(2, v1, v2, v1), nil
		case c(1, true) && c(2, false) && c(3, false):
			v1, v2, v3 := v(1), v(2), v(3)
			return replace(3, v1, v3, v2, v1), nil
		case c(1, false) && c(2, false) && c(3, true):
			v1, v2, v3 := v(1), v(2), v(3)
			return replace(3, v2, v1, v3, v2, v1), nil
		case c(1, false) && c(2, false) && c(3, false) && c(4, false):
			v1, v2, v3, v4 := v(1), v(2), v(3), v(4)
			return replace(4, v2, v1, v4, v3, v2, v1), nil
		}
	case OpSwap:
		if c(1, false) && c(2, false) {
			v1, v2 := v(1), v(2)
			return replace(2, v1, v2), nil
		}
	default:
		return s, fmt.Errorf("%s is not a stack manipulation instruction", op)
	}
	return s, fmt.Errorf("%s: operand stack shape does not match any form", op)
}
