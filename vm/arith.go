package vm

import "math"

// ---------------------------------------------------------------------------
// Integer arithmetic
// ---------------------------------------------------------------------------

// Integer division wraps MinInt / -1 to MinInt and yields 0 for MinInt % -1,
// so neither path reaches the Go runtime's overflow trap.

func idiv(a, b int32) (int32, error) {
	if b == 0 {
		return 0, newFault(FaultDivideByZero, "int division by zero")
	}
	if b == -1 {
		return -a, nil
	}
	return a / b, nil
}

func irem(a, b int32) (int32, error) {
	if b == 0 {
		return 0, newFault(FaultDivideByZero, "int remainder by zero")
	}
	if b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func ldiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, newFault(FaultDivideByZero, "long division by zero")
	}
	if b == -1 {
		return -a, nil
	}
	return a / b, nil
}

func lrem(a, b int64) (int64, error) {
	if b == 0 {
		return 0, newFault(FaultDivideByZero, "long remainder by zero")
	}
	if b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func ishl(a, n int32) int32  { return a << (uint32(n) & 0x1f) }
func ishr(a, n int32) int32  { return a >> (uint32(n) & 0x1f) }
func iushr(a, n int32) int32 { return int32(uint32(a) >> (uint32(n) & 0x1f)) }
func lshl(a int64, n int32) int64  { return a << (uint32(n) & 0x3f) }
func lshr(a int64, n int32) int64  { return a >> (uint32(n) & 0x3f) }
func lushr(a int64, n int32) int64 { return int64(uint64(a) >> (uint32(n) & 0x3f)) }

// ---------------------------------------------------------------------------
// Floating point
// ---------------------------------------------------------------------------

// frem is the truncating remainder with the sign of the dividend.
func frem(a, b float32) float32 {
	return float32(math.Mod(float64(a), float64(b)))
}

func drem(a, b float64) float64 {
	return math.Mod(a, b)
}

// fcmp compares two floating point values, returning nanResult when either
// is NaN (-1 for the *cmpl forms, 1 for *cmpg).
func fcmp(a, b float64, nanResult int32) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return nanResult
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func lcmp(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// Float to integer conversions map NaN to 0 and saturate at the bounds of the
// target type. Go leaves out-of-range conversions implementation defined.

func d2i(d float64) int32 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt32:
		return math.MaxInt32
	case d <= math.MinInt32:
		return math.MinInt32
	}
	return int32(d)
}

func d2l(d float64) int64 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt64:
		return math.MaxInt64
	case d <= math.MinInt64:
		return math.MinInt64
	}
	return int64(d)
}

func f2i(f float32) int32 { return d2i(float64(f)) }
func f2l(f float32) int64 { return d2l(float64(f)) }
