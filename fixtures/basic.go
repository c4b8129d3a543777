package fixtures

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/classvm/vm"
)

const assertClass = "tests/Assert"

// ---------------------------------------------------------------------------
// Assert
// ---------------------------------------------------------------------------

func assertBuilder(name string) func() *vm.ClassBuilder {
	return func() *vm.ClassBuilder {
		b := vm.NewClassBuilder(name, "")
		b.NativeMethod("yes", "(Z)V", vm.AccPublic|vm.AccStatic)
		for _, k := range numeric {
			b.NativeMethod("eq", "("+sig(k)+sig(k)+")V", vm.AccPublic|vm.AccStatic)
		}
		return b
	}
}

func assertFixture() Fixture {
	return Fixture{
		Name:    "assert",
		Classes: []func() *vm.ClassBuilder{assertBuilder("core/Assert"), assertBuilder(assertClass)},
	}
}

// assertEq emits a call to tests/Assert.eq for two values of kind k already
// on the stack.
func assertEq(m *vm.MethodBuilder, k vm.Kind) {
	m.Invokestatic(assertClass, "eq", "("+sig(k)+sig(k)+")V")
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const constantsClass = "tests/constants/ConstantTests"

var constants = []struct {
	name string
	v    vm.Value
}{
	{"iconst_m1", vm.Int(-1)},
	{"iconst_0", vm.Int(0)},
	{"iconst_1", vm.Int(1)},
	{"iconst_2", vm.Int(2)},
	{"iconst_3", vm.Int(3)},
	{"iconst_4", vm.Int(4)},
	{"iconst_5", vm.Int(5)},
	{"lconst_0", vm.Long(0)},
	{"lconst_1", vm.Long(1)},
	{"fconst_0", vm.Float(0)},
	{"fconst_1", vm.Float(1)},
	{"fconst_2", vm.Float(2)},
	{"dconst_0", vm.Double(0)},
	{"dconst_1", vm.Double(1)},
	{"bipush", vm.Int(12)},
	{"sipush", vm.Int(244)},
	{"ldc", vm.Int(696969)},
	{"ldc_float", vm.Float(3.5)},
	{"ldc_2", vm.Long(6969695232535242342)},
	{"ldc_2_double", vm.Double(2.718281828459045)},
}

func constantsFixture() Fixture {
	build := func() *vm.ClassBuilder {
		b := vm.NewClassBuilder(constantsClass, "")
		for _, c := range constants {
			m := b.Method(c.name, "()"+sig(c.v.Kind), vm.AccPublic|vm.AccStatic)
			push(m, c.v)
			m.Return(c.v.Kind)
		}

		test := b.Method("test", "()V", vm.AccPublic|vm.AccStatic)
		for _, c := range constants {
			push(test, c.v)
			test.Invokestatic(constantsClass, c.name, "()"+sig(c.v.Kind))
			assertEq(test, c.v.Kind)
		}
		test.Return(vm.KindVoid)
		return b
	}

	f := Fixture{Name: "constants", Classes: []func() *vm.ClassBuilder{build}}
	for _, c := range constants {
		f.Checks = append(f.Checks, Check{
			Name: c.name,
			Run:  expect(constantsClass, c.name, "()"+sig(c.v.Kind), c.v),
		})
	}
	f.Checks = append(f.Checks, Check{Name: "test", Run: run(constantsClass, "test")})
	return f
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

const mathClass = "tests/math/MathTests"

var binaryOps = []struct {
	name string
	op   vm.Opcode
}{
	{"add", vm.OpIadd},
	{"sub", vm.OpIsub},
	{"mul", vm.OpImul},
	{"div", vm.OpIdiv},
	{"rem", vm.OpIrem},
}

// bitOps exist for int and long; the long shifts take an int count.
var bitOps = []struct {
	name  string
	op    vm.Opcode
	shift bool
}{
	{"shl", vm.OpIshl, true},
	{"shr", vm.OpIshr, true},
	{"ushr", vm.OpIushr, true},
	{"and", vm.OpIand, false},
	{"or", vm.OpIor, false},
	{"xor", vm.OpIxor, false},
}

var conversions = []struct {
	name     string
	from, to vm.Kind
	op       vm.Opcode
}{
	{"i2l", vm.KindInt, vm.KindLong, vm.OpI2l},
	{"i2f", vm.KindInt, vm.KindFloat, vm.OpI2f},
	{"i2d", vm.KindInt, vm.KindDouble, vm.OpI2d},
	{"l2i", vm.KindLong, vm.KindInt, vm.OpL2i},
	{"l2d", vm.KindLong, vm.KindDouble, vm.OpL2d},
	{"f2i", vm.KindFloat, vm.KindInt, vm.OpF2i},
	{"d2i", vm.KindDouble, vm.KindInt, vm.OpD2i},
	{"d2l", vm.KindDouble, vm.KindLong, vm.OpD2l},
	{"d2f", vm.KindDouble, vm.KindFloat, vm.OpD2f},
	{"i2b", vm.KindInt, vm.KindInt, vm.OpI2b},
	{"i2c", vm.KindInt, vm.KindInt, vm.OpI2c},
	{"i2s", vm.KindInt, vm.KindInt, vm.OpI2s},
}

var comparisons = []struct {
	name string
	kind vm.Kind
	op   vm.Opcode
}{
	{"lcmp", vm.KindLong, vm.OpLcmp},
	{"fcmpl", vm.KindFloat, vm.OpFcmpl},
	{"fcmpg", vm.KindFloat, vm.OpFcmpg},
	{"dcmpl", vm.KindDouble, vm.OpDcmpl},
	{"dcmpg", vm.KindDouble, vm.OpDcmpg},
}

// MathMethod returns the name and descriptor of the binary arithmetic
// method for op ("add", "sub", "addneg", ...) on kind k.
func MathMethod(op string, k vm.Kind) (name, desc string) {
	s := sig(k)
	return op + "_" + s, "(" + s + s + ")" + s
}

func mathFixture() Fixture {
	build := func() *vm.ClassBuilder {
		b := vm.NewClassBuilder(mathClass, "")
		for _, k := range numeric {
			for _, op := range binaryOps {
				name, desc := MathMethod(op.name, k)
				m := b.Method(name, desc, vm.AccPublic|vm.AccStatic)
				m.Load(k, 0)
				m.Load(k, 1)
				m.Emit(typed(op.op, k))
				m.Return(k)
			}

			// a + (-b), compared against sub
			name, desc := MathMethod("addneg", k)
			m := b.Method(name, desc, vm.AccPublic|vm.AccStatic)
			m.Load(k, 0)
			m.Load(k, 1)
			m.Emit(typed(vm.OpIneg, k))
			m.Emit(typed(vm.OpIadd, k))
			m.Return(k)

			neg := b.Method("neg_"+sig(k), "("+sig(k)+")"+sig(k), vm.AccPublic|vm.AccStatic)
			neg.Load(k, 0)
			neg.Emit(typed(vm.OpIneg, k))
			neg.Return(k)
		}

		for _, k := range []vm.Kind{vm.KindInt, vm.KindLong} {
			for _, op := range bitOps {
				second := k
				if op.shift {
					second = vm.KindInt
				}
				m := b.Method(op.name+"_"+sig(k), "("+sig(k)+sig(second)+")"+sig(k), vm.AccPublic|vm.AccStatic)
				m.Load(k, 0)
				m.Load(second, 1)
				m.Emit(op.op + vm.Opcode(kindIndex(k)))
				m.Return(k)
			}
		}

		for _, c := range conversions {
			m := b.Method(c.name, "("+sig(c.from)+")"+sig(c.to), vm.AccPublic|vm.AccStatic)
			m.Load(c.from, 0)
			m.Emit(c.op)
			m.Return(c.to)
		}

		for _, c := range comparisons {
			m := b.Method(c.name, "("+sig(c.kind)+sig(c.kind)+")I", vm.AccPublic|vm.AccStatic)
			m.Load(c.kind, 0)
			m.Load(c.kind, 1)
			m.Emit(c.op)
			m.Return(vm.KindInt)
		}

		// test asserts a handful of identities from bytecode.
		test := b.Method("test", "()V", vm.AccPublic|vm.AccStatic)
		for _, c := range []struct {
			op      string
			a, b, r vm.Value
		}{
			{"add", vm.Int(40), vm.Int(2), vm.Int(42)},
			{"sub", vm.Long(1 << 40), vm.Long(1), vm.Long(1<<40 - 1)},
			{"mul", vm.Float(1.5), vm.Float(4), vm.Float(6)},
			{"div", vm.Double(1), vm.Double(4), vm.Double(0.25)},
			{"rem", vm.Int(-7), vm.Int(3), vm.Int(-1)},
		} {
			name, desc := MathMethod(c.op, c.a.Kind)
			push(test, c.r)
			push(test, c.a)
			push(test, c.b)
			test.Invokestatic(mathClass, name, desc)
			assertEq(test, c.a.Kind)
		}
		test.Return(vm.KindVoid)
		return b
	}

	f := Fixture{Name: "math", Classes: []func() *vm.ClassBuilder{build}}
	add := func(name, method, desc string, want vm.Value, args ...vm.Value) {
		f.Checks = append(f.Checks, Check{Name: name, Run: expect(mathClass, method, desc, want, args...)})
	}

	// add(a, -b) == sub(a, b) for every kind
	pairs := [][2]int64{{7, 3}, {-5, 9}, {0, 0}, {math.MaxInt32, -1}, {1 << 20, 1 << 21}}
	for _, k := range numeric {
		for _, p := range pairs {
			a, b := valueOf(k, p[0]), valueOf(k, p[1])
			f.Checks = append(f.Checks, Check{
				Name: fmt.Sprintf("addneg_%s(%d,%d)", sig(k), p[0], p[1]),
				Run:  addNegMatchesSub(k, a, b),
			})
		}
	}

	divByZero := func(check, op string, k vm.Kind, one, zero vm.Value) {
		name, desc := MathMethod(op, k)
		f.Checks = append(f.Checks, Check{Name: check, Run: expectFault(mathClass, name, desc, vm.FaultDivideByZero, one, zero)})
	}
	divByZero("div_I_zero", "div", vm.KindInt, vm.Int(1), vm.Int(0))
	divByZero("rem_I_zero", "rem", vm.KindInt, vm.Int(1), vm.Int(0))
	divByZero("div_J_zero", "div", vm.KindLong, vm.Long(1), vm.Long(0))
	divByZero("rem_J_zero", "rem", vm.KindLong, vm.Long(1), vm.Long(0))

	name, desc := MathMethod("div", vm.KindInt)
	add("div_I", name, desc, vm.Int(-3), vm.Int(-7), vm.Int(2))
	add("div_I_overflow", name, desc, vm.Int(math.MinInt32), vm.Int(math.MinInt32), vm.Int(-1))
	name, desc = MathMethod("rem", vm.KindLong)
	add("rem_J", name, desc, vm.Long(-1), vm.Long(-7), vm.Long(3))
	name, desc = MathMethod("div", vm.KindDouble)
	add("div_D_zero", name, desc, vm.Double(math.Inf(1)), vm.Double(1), vm.Double(0))
	name, desc = MathMethod("div", vm.KindFloat)
	add("div_F_zero", name, desc, vm.Float(float32(math.Inf(-1))), vm.Float(-1), vm.Float(0))

	add("shl_I", "shl_I", "(II)I", vm.Int(1<<4), vm.Int(1), vm.Int(36))
	add("shr_I", "shr_I", "(II)I", vm.Int(-4), vm.Int(-16), vm.Int(2))
	add("ushr_I", "ushr_I", "(II)I", vm.Int(0x3ffffffc), vm.Int(-16), vm.Int(2))
	add("shl_J", "shl_J", "(JI)J", vm.Long(1<<40), vm.Long(1), vm.Int(40))
	add("xor_J", "xor_J", "(JJ)J", vm.Long(0b0110), vm.Long(0b1010), vm.Long(0b1100))

	add("i2b", "i2b", "(I)I", vm.Int(-56), vm.Int(200))
	add("i2c", "i2c", "(I)I", vm.Int(0xffff), vm.Int(-1))
	add("i2s", "i2s", "(I)I", vm.Int(-32768), vm.Int(32768))
	add("l2i", "l2i", "(J)I", vm.Int(1), vm.Long(1<<32+1))
	add("d2i_nan", "d2i", "(D)I", vm.Int(0), vm.Double(math.NaN()))
	add("d2i_large", "d2i", "(D)I", vm.Int(math.MaxInt32), vm.Double(1e20))
	add("d2l", "d2l", "(D)J", vm.Long(-3), vm.Double(-3.9))
	add("f2i", "f2i", "(F)I", vm.Int(math.MinInt32), vm.Float(float32(math.Inf(-1))))

	add("lcmp", "lcmp", "(JJ)I", vm.Int(-1), vm.Long(1), vm.Long(2))
	add("fcmpl_nan", "fcmpl", "(FF)I", vm.Int(-1), vm.Float(float32(math.NaN())), vm.Float(0))
	add("fcmpg_nan", "fcmpg", "(FF)I", vm.Int(1), vm.Float(float32(math.NaN())), vm.Float(0))
	add("dcmpg", "dcmpg", "(DD)I", vm.Int(0), vm.Double(2), vm.Double(2))

	f.Checks = append(f.Checks, Check{Name: "test", Run: run(mathClass, "test")})
	return f
}

func kindIndex(k vm.Kind) int {
	for i, n := range numeric {
		if n == k {
			return i
		}
	}
	return 0
}

func valueOf(k vm.Kind, v int64) vm.Value {
	switch k {
	case vm.KindLong:
		return vm.Long(v)
	case vm.KindFloat:
		return vm.Float(float32(v))
	case vm.KindDouble:
		return vm.Double(float64(v))
	}
	return vm.Int(int32(v))
}

func addNegMatchesSub(k vm.Kind, a, b vm.Value) func(context.Context, *vm.VM) error {
	return func(ctx context.Context, m *vm.VM) error {
		subName, desc := MathMethod("sub", k)
		addName, _ := MathMethod("addneg", k)
		sub, err := m.Invoke(ctx, mathClass, subName, desc, a, b)
		if err != nil {
			return err
		}
		sum, err := m.Invoke(ctx, mathClass, addName, desc, a, b)
		if err != nil {
			return err
		}
		if sub != sum {
			return fmt.Errorf("%s(%s, %s) = %s, %s = %s", subName, a, b, sub, addName, sum)
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

const controlFlowClass = "tests/control_flow/Java"

func controlFlowFixture() Fixture {
	build := func() *vm.ClassBuilder {
		b := vm.NewClassBuilder(controlFlowClass, "")

		// pow(base, power): square-and-multiply
		m := b.Method("pow", "(II)I", vm.AccPublic|vm.AccStatic)
		top, skip, end := m.NewLabel(), m.NewLabel(), m.NewLabel()
		m.Iconst(1)
		m.Store(vm.KindInt, 2)
		m.Mark(top)
		m.Load(vm.KindInt, 1)
		m.EmitJump(vm.OpIfle, end)
		m.Load(vm.KindInt, 1)
		m.Iconst(2)
		m.Emit(vm.OpIrem)
		m.Iconst(1)
		m.EmitJump(vm.OpIfIcmpne, skip)
		m.Load(vm.KindInt, 2)
		m.Load(vm.KindInt, 0)
		m.Emit(vm.OpImul)
		m.Store(vm.KindInt, 2)
		m.Mark(skip)
		m.Load(vm.KindInt, 0)
		m.Load(vm.KindInt, 0)
		m.Emit(vm.OpImul)
		m.Store(vm.KindInt, 0)
		m.Load(vm.KindInt, 1)
		m.Iconst(1)
		m.Emit(vm.OpIshr)
		m.Store(vm.KindInt, 1)
		m.EmitJump(vm.OpGoto, top)
		m.Mark(end)
		m.Load(vm.KindInt, 2)
		m.Return(vm.KindInt)

		// sum(n) = 0 + 1 + ... + n-1, counted with iinc
		s := b.Method("sum", "(I)I", vm.AccPublic|vm.AccStatic)
		loop, done := s.NewLabel(), s.NewLabel()
		s.Iconst(0)
		s.Store(vm.KindInt, 1)
		s.Iconst(0)
		s.Store(vm.KindInt, 2)
		s.Mark(loop)
		s.Load(vm.KindInt, 2)
		s.Load(vm.KindInt, 0)
		s.EmitJump(vm.OpIfIcmpge, done)
		s.Load(vm.KindInt, 1)
		s.Load(vm.KindInt, 2)
		s.Emit(vm.OpIadd)
		s.Store(vm.KindInt, 1)
		s.EmitIinc(2, 1)
		s.EmitJump(vm.OpGoto, loop)
		s.Mark(done)
		s.Load(vm.KindInt, 1)
		s.Return(vm.KindInt)

		// spin never returns; used to exercise cancellation
		spin := b.Method("spin", "()V", vm.AccPublic|vm.AccStatic)
		forever := spin.NewLabel()
		spin.Mark(forever)
		spin.EmitJump(vm.OpGoto, forever)

		test := b.Method("test", "()V", vm.AccPublic|vm.AccStatic)
		test.Iconst(1024)
		test.Iconst(2)
		test.Iconst(10)
		test.Invokestatic(controlFlowClass, "pow", "(II)I")
		assertEq(test, vm.KindInt)
		test.Return(vm.KindVoid)
		return b
	}

	return Fixture{
		Name:    "control_flow",
		Classes: []func() *vm.ClassBuilder{build},
		Checks: []Check{
			{Name: "pow(2,10)", Run: expect(controlFlowClass, "pow", "(II)I", vm.Int(1024), vm.Int(2), vm.Int(10))},
			{Name: "pow(3,5)", Run: expect(controlFlowClass, "pow", "(II)I", vm.Int(243), vm.Int(3), vm.Int(5))},
			{Name: "pow(7,0)", Run: expect(controlFlowClass, "pow", "(II)I", vm.Int(1), vm.Int(7), vm.Int(0))},
			{Name: "sum(100)", Run: expect(controlFlowClass, "sum", "(I)I", vm.Int(4950), vm.Int(100))},
			{Name: "spin", Run: spinUntilCancelled},
			{Name: "test", Run: run(controlFlowClass, "test")},
		},
	}
}

func spinUntilCancelled(ctx context.Context, m *vm.VM) error {
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := m.Invoke(ctx, controlFlowClass, "spin", "()V")
	if !errors.Is(err, vm.ErrInterrupted) {
		return fmt.Errorf("spin: got %v, want interrupted", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Switch
// ---------------------------------------------------------------------------

const switchClass = "tests/switch_statement/SwitchTest"

// SwitchExpected maps inputs of testSwitch to their results. Case 1 falls
// through into case 2.
var SwitchExpected = map[int32]int32{0: 420, 1: 3, 2: 2, 3: 420, 4: 4, 5: 420, 9: 420, 10: 10, 11: 420, -1: 420}

// emitSwitchBody emits the shared case bodies after the switch instruction.
// Local 0 is the selector, local 1 the accumulator.
func emitSwitchBody(m *vm.MethodBuilder, c1, c2, c4, c10, dflt *vm.Label) {
	done := m.NewLabel()
	m.Mark(c1)
	m.EmitIinc(1, 1)
	m.Mark(c2)
	m.EmitIinc(1, 2)
	m.EmitJump(vm.OpGoto, done)
	m.Mark(c4)
	m.Iconst(4)
	m.Store(vm.KindInt, 1)
	m.EmitJump(vm.OpGoto, done)
	m.Mark(c10)
	m.Iconst(10)
	m.Return(vm.KindInt)
	m.Mark(dflt)
	m.Iconst(420)
	m.Return(vm.KindInt)
	m.Mark(done)
	m.Load(vm.KindInt, 1)
	m.Return(vm.KindInt)
}

func switchFixture() Fixture {
	build := func() *vm.ClassBuilder {
		b := vm.NewClassBuilder(switchClass, "")

		lookup := b.Method("testSwitch", "(I)I", vm.AccPublic|vm.AccStatic)
		c1, c2, c4, c10, dflt := lookup.NewLabel(), lookup.NewLabel(), lookup.NewLabel(), lookup.NewLabel(), lookup.NewLabel()
		lookup.Iconst(0)
		lookup.Store(vm.KindInt, 1)
		lookup.Load(vm.KindInt, 0)
		lookup.EmitLookupSwitch(dflt, map[int32]*vm.Label{1: c1, 2: c2, 4: c4, 10: c10})
		emitSwitchBody(lookup, c1, c2, c4, c10, dflt)

		table := b.Method("testTableSwitch", "(I)I", vm.AccPublic|vm.AccStatic)
		c1, c2, c4, c10, dflt = table.NewLabel(), table.NewLabel(), table.NewLabel(), table.NewLabel(), table.NewLabel()
		table.Iconst(0)
		table.Store(vm.KindInt, 1)
		table.Load(vm.KindInt, 0)
		table.EmitTableSwitch(1, dflt, c1, c2, dflt, c4, dflt, dflt, dflt, dflt, dflt, c10)
		emitSwitchBody(table, c1, c2, c4, c10, dflt)

		// negative low bound
		neg := b.Method("testNegative", "(I)I", vm.AccPublic|vm.AccStatic)
		a, bb, c, d := neg.NewLabel(), neg.NewLabel(), neg.NewLabel(), neg.NewLabel()
		neg.Load(vm.KindInt, 0)
		neg.EmitTableSwitch(-2, d, a, bb, c)
		for i, l := range []*vm.Label{a, bb, c, d} {
			neg.Mark(l)
			neg.Iconst(int32(i+1) % 4)
			neg.Return(vm.KindInt)
		}

		test := b.Method("test", "()V", vm.AccPublic|vm.AccStatic)
		for _, in := range []int32{1, 2, 4, 10, 9} {
			test.Iconst(SwitchExpected[in])
			test.Iconst(in)
			test.Invokestatic(switchClass, "testSwitch", "(I)I")
			assertEq(test, vm.KindInt)
		}
		test.Return(vm.KindVoid)
		return b
	}

	f := Fixture{Name: "switch", Classes: []func() *vm.ClassBuilder{build}}
	for in, want := range SwitchExpected {
		for _, method := range []string{"testSwitch", "testTableSwitch"} {
			f.Checks = append(f.Checks, Check{
				Name: fmt.Sprintf("%s(%d)", method, in),
				Run:  expect(switchClass, method, "(I)I", vm.Int(want), vm.Int(in)),
			})
		}
	}
	for in, want := range map[int32]int32{-3: 0, -2: 1, -1: 2, 0: 3, 1: 0} {
		f.Checks = append(f.Checks, Check{
			Name: fmt.Sprintf("testNegative(%d)", in),
			Run:  expect(switchClass, "testNegative", "(I)I", vm.Int(want), vm.Int(in)),
		})
	}
	f.Checks = append(f.Checks, Check{Name: "test", Run: run(switchClass, "test")})
	return f
}

// ---------------------------------------------------------------------------
// Ackermann
// ---------------------------------------------------------------------------

const ackermannClass = "tests/ackermann/Ackermann"

func ackermannFixture() Fixture {
	build := func() *vm.ClassBuilder {
		b := vm.NewClassBuilder(ackermannClass, "")
		m := b.Method("ack", "(II)I", vm.AccPublic|vm.AccStatic)
		mNonZero, nNonZero := m.NewLabel(), m.NewLabel()
		m.Load(vm.KindInt, 0)
		m.EmitJump(vm.OpIfne, mNonZero)
		m.Load(vm.KindInt, 1)
		m.Iconst(1)
		m.Emit(vm.OpIadd)
		m.Return(vm.KindInt)

		m.Mark(mNonZero)
		m.Load(vm.KindInt, 1)
		m.EmitJump(vm.OpIfne, nNonZero)
		m.Load(vm.KindInt, 0)
		m.Iconst(1)
		m.Emit(vm.OpIsub)
		m.Iconst(1)
		m.Invokestatic(ackermannClass, "ack", "(II)I")
		m.Return(vm.KindInt)

		m.Mark(nNonZero)
		m.Load(vm.KindInt, 0)
		m.Iconst(1)
		m.Emit(vm.OpIsub)
		m.Load(vm.KindInt, 0)
		m.Load(vm.KindInt, 1)
		m.Iconst(1)
		m.Emit(vm.OpIsub)
		m.Invokestatic(ackermannClass, "ack", "(II)I")
		m.Invokestatic(ackermannClass, "ack", "(II)I")
		m.Return(vm.KindInt)
		return b
	}

	f := Fixture{Name: "ackermann", Classes: []func() *vm.ClassBuilder{build}}
	for _, n := range []int32{0, 1, 2, 3, 4, 5, 10} {
		f.Checks = append(f.Checks, Check{
			Name: fmt.Sprintf("ack(3,%d)", n),
			Run:  expect(ackermannClass, "ack", "(II)I", vm.Int(AckermannThree(n)), vm.Int(3), vm.Int(n)),
		})
	}
	return f
}

// AckermannThree is the closed form of ack(3, n).
func AckermannThree(n int32) int32 {
	return 1<<(n+3) - 3
}
