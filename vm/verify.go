package vm

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ---------------------------------------------------------------------------
// Code analysis
// ---------------------------------------------------------------------------

// codeShape is what analysis learns about a method body.
type codeShape struct {
	insns    []Instruction
	maxStack int // deepest operand stack reached, in values
	maxLocal int // highest local index touched plus one
}

// category markers for the operand stack analysis
const (
	cat1 uint8 = 1
	cat2 uint8 = 2
)

func catOf(k Kind) uint8 {
	if k.IsWide() {
		return cat2
	}
	return cat1
}

func isCat2(c uint8) bool { return c == cat2 }

// analyzer tracks operand stack categories through a method body.
type analyzer struct {
	code    []byte
	pool    *ConstantPool
	typ     *MethodType
	static  bool
	locals  int // declared MaxLocals, or -1 when it is being computed
	errs    *multierror.Error
	shape   *codeShape
	states  map[int][]uint8
	byPC    map[int]int
	pending []int
}

// analyzeCode checks a method body in isolation: instruction boundaries,
// branch targets, constant pool entry types, local variable indices, operand
// stack consistency at merge points and return instructions. It reports every
// problem it finds.
//
// locals is the declared MaxLocals; pass -1 to skip local bounds checks (the
// builder uses the result to size the frame).
func analyzeCode(code []byte, pool *ConstantPool, typ *MethodType, static bool, locals int) (*codeShape, error) {
	a := &analyzer{
		code:   code,
		pool:   pool,
		typ:    typ,
		static: static,
		locals: locals,
		shape:  &codeShape{},
		states: make(map[int][]uint8),
		byPC:   make(map[int]int),
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("empty code")
	}
	insns, err := DecodeAll(code)
	if err != nil {
		return nil, err
	}
	a.shape.insns = insns
	for i, ins := range insns {
		a.byPC[ins.PC] = i
	}
	a.shape.maxLocal = len(typ.Params)
	if !static {
		a.shape.maxLocal++
	}

	a.merge(-1, 0, nil)
	for len(a.pending) > 0 {
		pc := a.pending[len(a.pending)-1]
		a.pending = a.pending[:len(a.pending)-1]
		a.step(insns[a.byPC[pc]], a.states[pc])
	}
	// Unreachable instructions never run, but they still may only name
	// existing constants and locals.
	for _, ins := range insns {
		if _, reached := a.states[ins.PC]; !reached {
			a.checkUnreachable(ins)
		}
	}
	return a.shape, a.errs.ErrorOrNil()
}

func (a *analyzer) fail(pc int, format string, args ...any) {
	a.errs = multierror.Append(a.errs, fmt.Errorf("pc %d: %s", pc, fmt.Sprintf(format, args...)))
}

// merge records the stack state flowing from pc `from` into `to`.
func (a *analyzer) merge(from, to int, stack []uint8) {
	if _, ok := a.byPC[to]; !ok {
		if to == len(a.code) {
			a.fail(from, "execution falls off the end of the code")
		} else {
			a.fail(from, "branch target %d is not an instruction boundary", to)
		}
		return
	}
	if len(stack) > a.shape.maxStack {
		a.shape.maxStack = len(stack)
	}
	if old, ok := a.states[to]; ok {
		if !sameStack(old, stack) {
			a.fail(from, "operand stack at %d has inconsistent shape", to)
		}
		return
	}
	a.states[to] = append([]uint8(nil), stack...)
	a.pending = append(a.pending, to)
}

func sameStack(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pops checks and removes the categories in want (last element on top).
func (a *analyzer) pops(pc int, stack []uint8, want ...uint8) ([]uint8, bool) {
	if len(stack) < len(want) {
		a.fail(pc, "operand stack underflow")
		return stack, false
	}
	base := len(stack) - len(want)
	for i, c := range want {
		if stack[base+i] != c {
			a.fail(pc, "operand of category %d where category %d expected", stack[base+i], c)
			return stack, false
		}
	}
	return stack[:base], true
}

func (a *analyzer) local(pc, index int) {
	if a.locals >= 0 && index >= a.locals {
		a.fail(pc, "local %d outside max_locals %d", index, a.locals)
	}
	if index+1 > a.shape.maxLocal {
		a.shape.maxLocal = index + 1
	}
}

func (a *analyzer) returnKind(pc int, k Kind) {
	want := a.typ.Return.StackKind()
	if k != want {
		a.fail(pc, "%s return in method returning %s", k, a.typ.Return)
	}
}

// simple returns the fixed stack effect of an instruction, if it has one.
func simple(op Opcode) (pop, push []uint8, ok bool) {
	o, t := []uint8{cat1}, []uint8{cat2}
	oo, tt := []uint8{cat1, cat1}, []uint8{cat2, cat2}
	switch op {
	case OpNop, OpGoto, OpGotoW, OpIinc:
		return nil, nil, true
	case OpAconstNull, OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3,
		OpIconst4, OpIconst5, OpFconst0, OpFconst1, OpFconst2, OpBipush, OpSipush,
		OpIload, OpFload, OpAload, OpNew:
		return nil, o, true
	case OpLconst0, OpLconst1, OpDconst0, OpDconst1, OpLload, OpDload:
		return nil, t, true
	case OpIaload, OpFaload, OpAaload, OpBaload, OpCaload, OpSaload:
		return oo, o, true
	case OpLaload, OpDaload:
		return oo, t, true
	case OpIstore, OpFstore, OpAstore, OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt,
		OpIfle, OpIfnull, OpIfnonnull, OpTableswitch, OpLookupswitch, OpAthrow:
		return o, nil, true
	case OpLstore, OpDstore:
		return t, nil, true
	case OpIastore, OpFastore, OpAastore, OpBastore, OpCastore, OpSastore:
		return []uint8{cat1, cat1, cat1}, nil, true
	case OpLastore, OpDastore:
		return []uint8{cat1, cat1, cat2}, nil, true
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIand, OpIor, OpIxor,
		OpIshl, OpIshr, OpIushr, OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem,
		OpFcmpl, OpFcmpg:
		return oo, o, true
	case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLand, OpLor, OpLxor,
		OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem:
		return tt, t, true
	case OpLshl, OpLshr, OpLushr:
		return []uint8{cat2, cat1}, t, true
	case OpIneg, OpFneg, OpI2f, OpF2i, OpI2b, OpI2c, OpI2s, OpNewarray,
		OpAnewarray, OpArraylength, OpCheckcast, OpInstanceof:
		return o, o, true
	case OpLneg, OpDneg, OpL2d, OpD2l:
		return t, t, true
	case OpI2l, OpI2d, OpF2l, OpF2d:
		return o, t, true
	case OpL2i, OpL2f, OpD2i, OpD2f:
		return t, o, true
	case OpLcmp, OpDcmpl, OpDcmpg:
		return tt, o, true
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne:
		return oo, nil, true
	}
	if op >= OpIload0 && op <= OpAload3 {
		if op >= OpLload0 && op <= OpDload3 {
			return nil, t, true
		}
		return nil, o, true
	}
	if op >= OpIstore0 && op <= OpAstore3 {
		if op >= OpLstore0 && op <= OpDstore3 {
			return t, nil, true
		}
		return o, nil, true
	}
	return nil, nil, false
}

func isLocalOp(op Opcode) bool {
	return (op >= OpIload && op <= OpAload) || (op >= OpIload0 && op <= OpAload3) ||
		(op >= OpIstore && op <= OpAstore) || (op >= OpIstore0 && op <= OpAstore3) ||
		op == OpIinc
}

func terminal(op Opcode) bool {
	switch op {
	case OpGoto, OpGotoW, OpTableswitch, OpLookupswitch, OpAthrow,
		OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}

// step applies one instruction to the incoming stack state and propagates
// the result to its successors.
func (a *analyzer) step(ins Instruction, in []uint8) {
	pc := ins.PC
	stack := append([]uint8(nil), in...)
	ok := true

	if isLocalOp(ins.Op) {
		a.local(pc, ins.Index)
	}

	if pop, push, isSimple := simple(ins.Op); isSimple {
		if stack, ok = a.pops(pc, stack, pop...); !ok {
			return
		}
		stack = append(stack, push...)
		if !a.checkOperands(ins) {
			return
		}
	} else {
		switch ins.Op {
		case OpPop, OpPop2, OpDup, OpDupX1, OpDupX2, OpDup2, OpDup2X1, OpDup2X2, OpSwap:
			var err error
			if stack, err = shuffle(stack, ins.Op, isCat2); err != nil {
				a.fail(pc, "%v", err)
				return
			}

		case OpLdc, OpLdcW:
			if _, err := a.pool.Expect(ins.Index, TagInteger, TagFloat, TagString); err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			stack = append(stack, cat1)
		case OpLdc2W:
			if _, err := a.pool.Expect(ins.Index, TagLong, TagDouble); err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			stack = append(stack, cat2)

		case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
			ref, err := a.pool.MemberRef(ins.Index, TagFieldRef)
			if err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			k, _, err := ParseFieldDescriptor(ref.Descriptor)
			if err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			c := catOf(k)
			switch ins.Op {
			case OpGetstatic:
				stack = append(stack, c)
			case OpPutstatic:
				stack, ok = a.pops(pc, stack, c)
			case OpGetfield:
				if stack, ok = a.pops(pc, stack, cat1); ok {
					stack = append(stack, c)
				}
			case OpPutfield:
				stack, ok = a.pops(pc, stack, cat1, c)
			}
			if !ok {
				return
			}

		case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
			tags := []ConstantTag{TagMethodRef, TagInterfaceMethodRef}
			switch ins.Op {
			case OpInvokevirtual:
				tags = tags[:1]
			case OpInvokeinterface:
				tags = tags[1:]
			}
			ref, err := a.pool.MemberRef(ins.Index, tags...)
			if err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			mt, err := ParseMethodDescriptor(ref.Descriptor)
			if err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			if ref.Name == InitializerName || (ref.Name == ConstructorName && ins.Op != OpInvokespecial) {
				a.fail(pc, "%s cannot call %s", ins.Op, ref.Name)
				return
			}
			want := make([]uint8, 0, len(mt.Params)+1)
			if ins.Op != OpInvokestatic {
				want = append(want, cat1)
			}
			for _, p := range mt.Params {
				want = append(want, catOf(p))
			}
			if ins.Op == OpInvokeinterface && int(ins.Const) != len(want) {
				a.fail(pc, "invokeinterface count %d, descriptor needs %d", ins.Const, len(want))
				return
			}
			if stack, ok = a.pops(pc, stack, want...); !ok {
				return
			}
			if mt.Return != KindVoid {
				stack = append(stack, catOf(mt.Return))
			}

		case OpMultianewarray:
			name, err := a.pool.ClassName(ins.Index)
			if err != nil {
				a.fail(pc, "%s: %v", ins.Op, err)
				return
			}
			dims := int(ins.Const)
			depth := 0
			for depth < len(name) && name[depth] == '[' {
				depth++
			}
			if dims < 1 || dims > depth {
				a.fail(pc, "multianewarray of %d dimensions on %s", dims, name)
				return
			}
			want := make([]uint8, dims)
			for i := range want {
				want[i] = cat1
			}
			if stack, ok = a.pops(pc, stack, want...); !ok {
				return
			}
			stack = append(stack, cat1)

		case OpIreturn, OpFreturn, OpAreturn:
			if stack, ok = a.pops(pc, stack, cat1); !ok {
				return
			}
			a.returnKind(pc, map[Opcode]Kind{OpIreturn: KindInt, OpFreturn: KindFloat, OpAreturn: KindRef}[ins.Op])
		case OpLreturn, OpDreturn:
			if stack, ok = a.pops(pc, stack, cat2); !ok {
				return
			}
			a.returnKind(pc, map[Opcode]Kind{OpLreturn: KindLong, OpDreturn: KindDouble}[ins.Op])
		case OpReturn:
			a.returnKind(pc, KindVoid)

		default:
			a.fail(pc, "unsupported instruction %s", ins.Op)
			return
		}
	}

	if len(stack) > a.shape.maxStack {
		a.shape.maxStack = len(stack)
	}
	for _, t := range ins.Targets {
		a.merge(pc, t, stack)
	}
	if ins.Op == OpLookupswitch {
		for i := 1; i < len(ins.Keys); i++ {
			if ins.Keys[i] <= ins.Keys[i-1] {
				a.fail(pc, "lookupswitch keys not strictly ascending")
				break
			}
		}
	}
	if !terminal(ins.Op) {
		a.merge(pc, pc+ins.Len, stack)
	}
}

// checkUnreachable applies the operand checks step makes to an instruction
// no execution path reaches.
func (a *analyzer) checkUnreachable(ins Instruction) {
	if isLocalOp(ins.Op) {
		a.local(ins.PC, ins.Index)
	}
	var err error
	switch ins.Op {
	case OpLdc, OpLdcW:
		_, err = a.pool.Expect(ins.Index, TagInteger, TagFloat, TagString)
	case OpLdc2W:
		_, err = a.pool.Expect(ins.Index, TagLong, TagDouble)
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		_, err = a.pool.MemberRef(ins.Index, TagFieldRef)
	case OpInvokevirtual:
		_, err = a.pool.MemberRef(ins.Index, TagMethodRef)
	case OpInvokeinterface:
		_, err = a.pool.MemberRef(ins.Index, TagInterfaceMethodRef)
	case OpInvokespecial, OpInvokestatic:
		_, err = a.pool.MemberRef(ins.Index, TagMethodRef, TagInterfaceMethodRef)
	case OpMultianewarray:
		_, err = a.pool.ClassName(ins.Index)
	default:
		a.checkOperands(ins)
		return
	}
	if err != nil {
		a.fail(ins.PC, "%s: %v", ins.Op, err)
	}
}

// checkOperands validates the constant pool operands of simple instructions.
func (a *analyzer) checkOperands(ins Instruction) bool {
	switch ins.Op {
	case OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		name, err := a.pool.ClassName(ins.Index)
		if err != nil {
			a.fail(ins.PC, "%s: %v", ins.Op, err)
			return false
		}
		if ins.Op == OpNew && isArrayType(name) {
			a.fail(ins.PC, "new of array type %s", name)
			return false
		}
	case OpNewarray:
		if _, ok := KindFromArrayType(byte(ins.Index)); !ok {
			a.fail(ins.PC, "newarray type code %d", ins.Index)
			return false
		}
	}
	return true
}
