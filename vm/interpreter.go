package vm

import (
	"context"
	"errors"
	"slices"
)

// ---------------------------------------------------------------------------
// Interpreter: bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes verified bytecode for one VM. It is not safe for
// concurrent use; natives may re-enter it through VM.Invoke.
type Interpreter struct {
	vm *VM

	stack  []Value     // locals and operand stacks of every frame
	sp     int         // next free slot
	frames []CallFrame // frame stack
	fp     int         // index of the current frame

	maxFrames int
	ctx       context.Context
}

func newInterpreter(vm *VM, maxFrames int) *Interpreter {
	return &Interpreter{
		vm:        vm,
		stack:     make([]Value, 1024),
		frames:    make([]CallFrame, 0, 64),
		fp:        -1,
		maxFrames: maxFrames,
		ctx:       context.Background(),
	}
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

// enter pushes a frame for a bytecode method whose arguments are already on
// top of the value slab.
func (i *Interpreter) enter(m *Method) error {
	if m.Body() != BodyBytecode || m.code == nil {
		return newFault(FaultInternal, "cannot execute %s method %s", m.Body(), m)
	}
	if i.fp+1 >= i.maxFrames {
		return newFault(FaultStackOverflow, "more than %d frames calling %s", i.maxFrames, m)
	}
	if err := i.ctx.Err(); err != nil {
		return &Fault{Kind: FaultInterrupted, Message: "invocation cancelled", Err: err}
	}
	bp := i.sp - m.ArgSlots()
	sb := bp + m.MaxLocals
	i.grow(sb + m.MaxStack)
	clear(i.stack[i.sp:sb])
	frame := CallFrame{Method: m, BP: bp, SB: sb}
	i.fp++
	if i.fp == len(i.frames) {
		i.frames = append(i.frames, frame)
	} else {
		i.frames[i.fp] = frame
	}
	i.sp = sb
	return nil
}

// leave pops the current frame and its slots.
func (i *Interpreter) leave() {
	i.sp = i.frames[i.fp].BP
	i.frames[i.fp] = CallFrame{}
	i.fp--
}

// call transfers control to m, whose arguments are on the caller's operand
// stack. The caller resumes at instruction resume once m returns; a native
// method completes immediately.
func (i *Interpreter) call(m *Method, resume int) error {
	caller := i.fp
	switch m.Body() {
	case BodyNative:
		if err := i.callNative(m); err != nil {
			return err
		}
	case BodyAbstract:
		return newFault(FaultInternal, "abstract method %s called", m)
	default:
		if err := i.enter(m); err != nil {
			return err
		}
	}
	i.frames[caller].pc = resume
	return nil
}

// callNative runs a native with its arguments still on the stack, so they
// stay rooted while the native allocates.
func (i *Interpreter) callNative(m *Method) error {
	fn, err := i.vm.linker.Link(m)
	if err != nil {
		return err
	}
	n := m.ArgSlots()
	args := slices.Clone(i.stack[i.sp-n : i.sp])
	res, err := fn(&NativeEnv{vm: i.vm, ctx: i.ctx, method: m}, args)
	if err != nil {
		var f *Fault
		if errors.As(err, &f) && !f.located {
			return f
		}
		return &Fault{Kind: FaultNativeError, Message: KeyOf(m).String(), Err: err}
	}
	i.sp -= n
	if ret := m.Type.Return; ret != KindVoid {
		if ret == KindRef && res.Kind != KindRef && res.Bits != 0 {
			return newFault(FaultNativeError, "%s returned non-reference %s", KeyOf(m), res)
		}
		i.push(narrow(ret, res))
	}
	return nil
}

// initialize runs static initialisation of c and its uninitialised
// superclasses on first active use. It pushes the <clinit> frames, outermost
// superclass on top, and reports whether any were pushed: the caller then
// re-executes the triggering instruction after they return.
func (i *Interpreter) initialize(c *Class) (bool, error) {
	statics := i.vm.statics
	var chain []*Class
	for k := c; k != nil && !statics.initialized(k); k = k.Superclass {
		chain = append(chain, k)
		if k.IsInterface() {
			break
		}
	}
	if len(chain) == 0 {
		return false, nil
	}
	pushed := false
	for _, k := range chain {
		statics.markInitialized(k)
		if m := k.StaticInitializer(); m != nil {
			interpLog.Debugf("%sinitializing %s", i.vm.tag, k.Name)
			if err := i.enter(m); err != nil {
				return false, err
			}
			pushed = true
		}
	}
	return pushed, nil
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// Invoke runs m with args (receiver first for instance methods) and returns
// its result, or a *Fault. Static methods and constructors initialise their
// class first.
func (i *Interpreter) Invoke(ctx context.Context, m *Method, args []Value) (Value, error) {
	if len(args) != m.ArgSlots() {
		return Value{}, newFault(FaultInternal, "%s takes %d argument slots, got %d", m, m.ArgSlots(), len(args))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	entryFP, entrySP := i.fp, i.sp
	prev := i.ctx
	i.ctx = ctx
	defer func() { i.ctx = prev }()

	for _, a := range args {
		i.push(a)
	}

	if m.IsNative() {
		var err error
		if _, err = i.initialize(m.Owner); err == nil && i.fp > entryFP {
			_, err = i.run(entryFP)
			if err != nil {
				return Value{}, i.fail(err, entryFP, entrySP)
			}
		}
		if err == nil {
			err = i.callNative(m)
		}
		if err != nil {
			f := i.fail(err, entryFP, entrySP)
			if !f.located {
				f.Class, f.Method, f.Descriptor, f.PC = m.Owner.Name, m.Name, m.Descriptor, -1
				f.located = true
			}
			return Value{}, f
		}
		var result Value
		if m.Type.Return != KindVoid {
			result = i.pop()
		}
		i.sp = entrySP
		return result, nil
	}

	if err := i.enter(m); err != nil {
		i.sp = entrySP
		return Value{}, err
	}
	if m.IsStatic() || m.IsConstructor() {
		if _, err := i.initialize(m.Owner); err != nil {
			return Value{}, i.fail(err, entryFP, entrySP)
		}
	}
	result, err := i.run(entryFP)
	if err != nil {
		return Value{}, i.fail(err, entryFP, entrySP)
	}
	return result, nil
}

// fail locates a fault at the current instruction, records the stack trace
// and unwinds every frame of the invocation.
func (i *Interpreter) fail(err error, entryFP, entrySP int) *Fault {
	f := asFault(err)
	if !f.located && i.fp > entryFP {
		frame := &i.frames[i.fp]
		ins := frame.Instruction()
		f.Class = frame.Method.Owner.Name
		f.Method = frame.Method.Name
		f.Descriptor = frame.Method.Descriptor
		f.PC = ins.PC
		f.Opcode = ins.Op.String()
		for j := i.fp; j > entryFP; j-- {
			f.Trace = append(f.Trace, i.frames[j].trace())
		}
		f.located = true
	}
	interpLog.Debugf("%sfault: %v", i.vm.tag, f)
	for i.fp > entryFP {
		i.frames[i.fp] = CallFrame{}
		i.fp--
	}
	i.sp = entrySP
	return f
}

// withOperands attaches the values an instruction was working on to a fault.
func withOperands(err error, vals ...Value) error {
	var f *Fault
	if errors.As(err, &f) && f.Operands == nil {
		f.Operands = vals
	}
	return err
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// run executes until the frame at entryFP+1 returns and yields its result.
func (i *Interpreter) run(entryFP int) (Value, error) {
	heap := i.vm.heap
	loader := i.vm.loader

	for {
		if i.fp <= entryFP {
			return Value{}, nil
		}
		f := &i.frames[i.fp]
		m := f.Method
		code := m.code
		ins := &code.insns[f.pc]
		next := f.pc + 1
		pool := m.Owner.Pool

		switch op := ins.Op; op {

		// --- constants -----------------------------------------------------
		case OpNop:
		case OpAconstNull:
			i.push(NullValue())
		case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
			i.push(Int(int32(op) - int32(OpIconst0)))
		case OpLconst0, OpLconst1:
			i.push(Long(int64(op - OpLconst0)))
		case OpFconst0, OpFconst1, OpFconst2:
			i.push(Float(float32(op - OpFconst0)))
		case OpDconst0, OpDconst1:
			i.push(Double(float64(op - OpDconst0)))
		case OpBipush, OpSipush:
			i.push(Int(ins.Const))
		case OpLdc, OpLdcW, OpLdc2W:
			c, err := pool.Get(ins.Index)
			if err != nil {
				return Value{}, newFault(FaultInternal, "%v", err)
			}
			if c.Tag == TagString {
				return Value{}, newFault(FaultUnsupported, "string constants are not supported")
			}
			i.push(c.Value())

		// --- locals ------------------------------------------------------------
		case OpIload, OpLload, OpFload, OpDload, OpAload,
			OpIload0, OpIload1, OpIload2, OpIload3,
			OpLload0, OpLload1, OpLload2, OpLload3,
			OpFload0, OpFload1, OpFload2, OpFload3,
			OpDload0, OpDload1, OpDload2, OpDload3,
			OpAload0, OpAload1, OpAload2, OpAload3:
			i.push(i.stack[f.BP+ins.Index])
		case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore,
			OpIstore0, OpIstore1, OpIstore2, OpIstore3,
			OpLstore0, OpLstore1, OpLstore2, OpLstore3,
			OpFstore0, OpFstore1, OpFstore2, OpFstore3,
			OpDstore0, OpDstore1, OpDstore2, OpDstore3,
			OpAstore0, OpAstore1, OpAstore2, OpAstore3:
			i.stack[f.BP+ins.Index] = i.pop()
		case OpIinc:
			slot := &i.stack[f.BP+ins.Index]
			*slot = Int(slot.AsInt() + ins.Const)

		// --- arrays ------------------------------------------------------------
		case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
			index := i.popInt()
			ref, err := i.popRef()
			if err != nil {
				return Value{}, err
			}
			arr, err := i.arrayFor(ref, op)
			if err != nil {
				return Value{}, err
			}
			v, err := arr.Load(index)
			if err != nil {
				return Value{}, withOperands(err, Reference(ref), Int(index))
			}
			i.push(v)
		case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
			v := i.pop()
			index := i.popInt()
			ref, err := i.popRef()
			if err != nil {
				return Value{}, err
			}
			arr, err := i.arrayFor(ref, op)
			if err != nil {
				return Value{}, err
			}
			if op == OpAastore {
				if v.Kind != KindRef {
					return Value{}, newFault(FaultClassCast, "%s stored into %s", v, arr.Type)
				}
				ok, err := loader.storeCompatible(heap, arr.ElemType, v)
				if err != nil {
					return Value{}, err
				}
				if !ok {
					item, _ := heap.Get(v.AsRef())
					return Value{}, newFault(FaultClassCast, "%s stored into %s", item.TypeName(), arr.Type)
				}
			}
			if err := arr.Store(index, v); err != nil {
				return Value{}, withOperands(err, Reference(ref), Int(index), v)
			}
		case OpArraylength:
			ref, err := i.popRef()
			if err != nil {
				return Value{}, err
			}
			arr, err := heap.Array(ref)
			if err != nil {
				return Value{}, err
			}
			i.push(Int(int32(arr.Len())))
		case OpNewarray:
			n := i.popInt()
			kind, _ := KindFromArrayType(byte(ins.Index))
			ref, err := heap.AllocArray(arrayTypeOf("", kind), n)
			if err != nil {
				return Value{}, withOperands(err, Int(n))
			}
			i.push(Reference(ref))
		case OpAnewarray:
			_, name, err := loader.classRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			n := i.popInt()
			ref, err := heap.AllocArray(arrayTypeOf(name, KindRef), n)
			if err != nil {
				return Value{}, withOperands(err, Int(n))
			}
			i.push(Reference(ref))
		case OpMultianewarray:
			_, name, err := loader.classRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			counts := make([]int32, ins.Const)
			for d := len(counts) - 1; d >= 0; d-- {
				counts[d] = i.popInt()
			}
			for _, n := range counts {
				if n < 0 {
					return Value{}, newFault(FaultNegativeLength, "array length %d", n)
				}
			}
			ref, err := i.allocMulti(name, counts)
			if err != nil {
				return Value{}, err
			}
			i.push(Reference(ref))

		// --- operand stack -----------------------------------------------------
		case OpPop, OpPop2, OpDup, OpDupX1, OpDupX2, OpDup2, OpDup2X1, OpDup2X2, OpSwap:
			s, err := shuffle(i.stack[f.SB:i.sp], op, Value.IsWide)
			if err != nil {
				return Value{}, newFault(FaultInternal, "%v", err)
			}
			i.grow(f.SB + len(s))
			copy(i.stack[f.SB:], s)
			i.sp = f.SB + len(s)

		// --- arithmetic --------------------------------------------------------
		case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIand, OpIor, OpIxor, OpIshl, OpIshr, OpIushr:
			b, a := i.popInt(), i.popInt()
			r, err := intOp(op, a, b)
			if err != nil {
				return Value{}, withOperands(err, Int(a), Int(b))
			}
			i.push(Int(r))
		case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLand, OpLor, OpLxor:
			b, a := i.popLong(), i.popLong()
			r, err := longOp(op, a, b)
			if err != nil {
				return Value{}, withOperands(err, Long(a), Long(b))
			}
			i.push(Long(r))
		case OpLshl, OpLshr, OpLushr:
			n, a := i.popInt(), i.popLong()
			switch op {
			case OpLshl:
				i.push(Long(lshl(a, n)))
			case OpLshr:
				i.push(Long(lshr(a, n)))
			default:
				i.push(Long(lushr(a, n)))
			}
		case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem:
			b, a := i.popFloat(), i.popFloat()
			i.push(Float(floatOp(op, a, b)))
		case OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem:
			b, a := i.popDouble(), i.popDouble()
			i.push(Double(doubleOp(op, a, b)))
		case OpIneg:
			i.push(Int(-i.popInt()))
		case OpLneg:
			i.push(Long(-i.popLong()))
		case OpFneg:
			i.push(Float(-i.popFloat()))
		case OpDneg:
			i.push(Double(-i.popDouble()))

		// --- conversions -------------------------------------------------------
		case OpI2l:
			i.push(Long(int64(i.popInt())))
		case OpI2f:
			i.push(Float(float32(i.popInt())))
		case OpI2d:
			i.push(Double(float64(i.popInt())))
		case OpL2i:
			i.push(Int(int32(i.popLong())))
		case OpL2f:
			i.push(Float(float32(i.popLong())))
		case OpL2d:
			i.push(Double(float64(i.popLong())))
		case OpF2i:
			i.push(Int(f2i(i.popFloat())))
		case OpF2l:
			i.push(Long(f2l(i.popFloat())))
		case OpF2d:
			i.push(Double(float64(i.popFloat())))
		case OpD2i:
			i.push(Int(d2i(i.popDouble())))
		case OpD2l:
			i.push(Long(d2l(i.popDouble())))
		case OpD2f:
			i.push(Float(float32(i.popDouble())))
		case OpI2b:
			i.push(Int(int32(int8(i.popInt()))))
		case OpI2c:
			i.push(Int(int32(uint16(i.popInt()))))
		case OpI2s:
			i.push(Int(int32(int16(i.popInt()))))

		// --- comparisons -------------------------------------------------------
		case OpLcmp:
			b, a := i.popLong(), i.popLong()
			i.push(Int(lcmp(a, b)))
		case OpFcmpl, OpFcmpg:
			b, a := i.popFloat(), i.popFloat()
			nan := int32(1)
			if op == OpFcmpl {
				nan = -1
			}
			i.push(Int(fcmp(float64(a), float64(b), nan)))
		case OpDcmpl, OpDcmpg:
			b, a := i.popDouble(), i.popDouble()
			nan := int32(1)
			if op == OpDcmpl {
				nan = -1
			}
			i.push(Int(fcmp(a, b, nan)))

		// --- control flow ------------------------------------------------------
		case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
			if compare(op-OpIfeq, i.popInt(), 0) {
				next = code.target(ins.Targets[0])
			}
		case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
			b, a := i.popInt(), i.popInt()
			if compare(op-OpIfIcmpeq, a, b) {
				next = code.target(ins.Targets[0])
			}
		case OpIfAcmpeq, OpIfAcmpne:
			b, a := i.pop(), i.pop()
			if (a.Bits == b.Bits) == (op == OpIfAcmpeq) {
				next = code.target(ins.Targets[0])
			}
		case OpIfnull, OpIfnonnull:
			v := i.pop()
			if (v.Bits == 0) == (op == OpIfnull) {
				next = code.target(ins.Targets[0])
			}
		case OpGoto, OpGotoW:
			next = code.target(ins.Targets[0])
		case OpTableswitch:
			key := i.popInt()
			target := ins.Targets[0]
			if low, high := ins.Keys[0], ins.Keys[len(ins.Keys)-1]; key >= low && key <= high {
				target = ins.Targets[1+int(key-low)]
			}
			next = code.target(target)
		case OpLookupswitch:
			key := i.popInt()
			target := ins.Targets[0]
			if k, found := slices.BinarySearch(ins.Keys, key); found {
				target = ins.Targets[1+k]
			}
			next = code.target(target)

		// --- returns -----------------------------------------------------------
		case OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
			var result Value
			if op != OpReturn {
				v := i.pop()
				if m.Type.Return == KindRef && v.Kind != KindRef {
					return Value{}, newFault(FaultClassCast, "%s returned from %s", v, m)
				}
				result = narrow(m.Type.Return, v)
			}
			i.leave()
			if i.fp == entryFP {
				return result, nil
			}
			if op != OpReturn {
				i.push(result)
			}
			continue

		// --- fields ------------------------------------------------------------
		case OpGetstatic, OpPutstatic:
			fld, err := loader.fieldRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			if pushed, err := i.initialize(fld.Owner); err != nil {
				return Value{}, err
			} else if pushed {
				continue
			}
			values := i.vm.statics.values(fld.Owner)
			if op == OpGetstatic {
				i.push(values[fld.Offset])
				break
			}
			v := i.pop()
			if fld.Kind == KindRef && v.Kind != KindRef {
				return Value{}, newFault(FaultClassCast, "%s stored into %s", v, fld)
			}
			values[fld.Offset] = narrow(fld.Kind, v)
		case OpGetfield, OpPutfield:
			fld, err := loader.fieldRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			var v Value
			if op == OpPutfield {
				v = i.pop()
			}
			ref, err := i.popRef()
			if err != nil {
				return Value{}, err
			}
			obj, err := heap.Object(ref)
			if err != nil {
				return Value{}, withOperands(err, Reference(ref))
			}
			if !obj.Class.IsSubclassOf(fld.Owner) {
				return Value{}, newFault(FaultClassCast, "%s has no field %s", obj.Class.Name, fld)
			}
			if op == OpGetfield {
				i.push(obj.Fields[fld.Offset])
				break
			}
			if fld.Kind == KindRef && v.Kind != KindRef {
				return Value{}, newFault(FaultClassCast, "%s stored into %s", v, fld)
			}
			obj.Fields[fld.Offset] = narrow(fld.Kind, v)

		// --- invocation --------------------------------------------------------
		case OpInvokestatic:
			target, err := loader.methodRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			if pushed, err := i.initialize(target.Owner); err != nil {
				return Value{}, err
			} else if pushed {
				continue
			}
			if err := i.call(target, next); err != nil {
				return Value{}, err
			}
			continue
		case OpInvokespecial, OpInvokevirtual, OpInvokeinterface:
			resolved, err := loader.methodRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			recv := i.peek(resolved.ArgSlots() - 1)
			if recv.Kind != KindRef {
				return Value{}, newFault(FaultClassCast, "receiver %s is not a reference", recv)
			}
			item, err := heap.Get(recv.AsRef())
			if err != nil {
				return Value{}, withOperands(err, recv)
			}
			target := resolved
			if op != OpInvokespecial {
				class := i.vm.objectClass
				if obj, ok := item.(*Object); ok {
					class = obj.Class
				}
				if target, err = selectVirtual(class, resolved); err != nil {
					return Value{}, err
				}
			}
			if err := i.call(target, next); err != nil {
				return Value{}, err
			}
			continue

		// --- objects -----------------------------------------------------------
		case OpNew:
			class, _, err := loader.classRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			if pushed, err := i.initialize(class); err != nil {
				return Value{}, err
			} else if pushed {
				continue
			}
			ref, err := heap.AllocObject(class)
			if err != nil {
				return Value{}, err
			}
			i.push(Reference(ref))
		case OpCheckcast, OpInstanceof:
			v := i.peek(0)
			if v.Kind != KindRef {
				return Value{}, newFault(FaultClassCast, "%s is not a reference", v)
			}
			class, name, err := loader.classRef(pool, ins.Index)
			if err != nil {
				return Value{}, err
			}
			ok := false
			if !v.AsRef().IsNull() {
				item, err := heap.Get(v.AsRef())
				if err != nil {
					return Value{}, err
				}
				ok = loader.isInstance(item, class, name)
				if !ok && op == OpCheckcast {
					return Value{}, newFault(FaultClassCast, "%s cannot be cast to %s", item.TypeName(), name)
				}
			}
			if op == OpInstanceof {
				i.pop()
				i.push(Bool(ok))
			}

		default:
			return Value{}, newFault(FaultUnsupported, "instruction %s", op)
		}

		if next <= f.pc {
			if err := i.ctx.Err(); err != nil {
				return Value{}, &Fault{Kind: FaultInterrupted, Message: "invocation cancelled", Err: err}
			}
		}
		f.pc = next
	}
}

// arrayFor fetches the array operand of an array load or store and checks
// its element kind against the instruction.
func (i *Interpreter) arrayFor(ref Ref, op Opcode) (*Array, error) {
	arr, err := i.vm.heap.Array(ref)
	if err != nil {
		return nil, withOperands(err, Reference(ref))
	}
	var ok bool
	switch op {
	case OpIaload, OpIastore:
		ok = arr.ElemKind == KindInt
	case OpLaload, OpLastore:
		ok = arr.ElemKind == KindLong
	case OpFaload, OpFastore:
		ok = arr.ElemKind == KindFloat
	case OpDaload, OpDastore:
		ok = arr.ElemKind == KindDouble
	case OpAaload, OpAastore:
		ok = arr.ElemKind == KindRef
	case OpBaload, OpBastore:
		ok = arr.ElemKind == KindByte || arr.ElemKind == KindBoolean
	case OpCaload, OpCastore:
		ok = arr.ElemKind == KindChar
	case OpSaload, OpSastore:
		ok = arr.ElemKind == KindShort
	}
	if !ok {
		return nil, newFault(FaultClassCast, "%s on %s", op, arr.Type)
	}
	return arr, nil
}

// allocMulti allocates a nested array. Outer arrays are protected while
// their sub-arrays are allocated.
func (i *Interpreter) allocMulti(arrayType string, counts []int32) (Ref, error) {
	heap := i.vm.heap
	ref, err := heap.AllocArray(arrayType, counts[0])
	if err != nil || len(counts) == 1 {
		return ref, err
	}
	release := heap.Protect(ref)
	defer release()
	arr, err := heap.Array(ref)
	if err != nil {
		return Null, err
	}
	elem, _ := arrayElementType(arrayType)
	for j := range arr.Elems {
		sub, err := i.allocMulti(elem, counts[1:])
		if err != nil {
			return Null, err
		}
		arr.Elems[j] = Reference(sub)
	}
	return ref, nil
}

// ---------------------------------------------------------------------------
// Arithmetic helpers
// ---------------------------------------------------------------------------

func intOp(op Opcode, a, b int32) (int32, error) {
	switch op {
	case OpIadd:
		return a + b, nil
	case OpIsub:
		return a - b, nil
	case OpImul:
		return a * b, nil
	case OpIdiv:
		return idiv(a, b)
	case OpIrem:
		return irem(a, b)
	case OpIand:
		return a & b, nil
	case OpIor:
		return a | b, nil
	case OpIxor:
		return a ^ b, nil
	case OpIshl:
		return ishl(a, b), nil
	case OpIshr:
		return ishr(a, b), nil
	case OpIushr:
		return iushr(a, b), nil
	}
	return 0, newFault(FaultInternal, "not an int operation: %s", op)
}

func longOp(op Opcode, a, b int64) (int64, error) {
	switch op {
	case OpLadd:
		return a + b, nil
	case OpLsub:
		return a - b, nil
	case OpLmul:
		return a * b, nil
	case OpLdiv:
		return ldiv(a, b)
	case OpLrem:
		return lrem(a, b)
	case OpLand:
		return a & b, nil
	case OpLor:
		return a | b, nil
	case OpLxor:
		return a ^ b, nil
	}
	return 0, newFault(FaultInternal, "not a long operation: %s", op)
}

func floatOp(op Opcode, a, b float32) float32 {
	switch op {
	case OpFadd:
		return a + b
	case OpFsub:
		return a - b
	case OpFmul:
		return a * b
	case OpFdiv:
		return a / b
	}
	return frem(a, b)
}

func doubleOp(op Opcode, a, b float64) float64 {
	switch op {
	case OpDadd:
		return a + b
	case OpDsub:
		return a - b
	case OpDmul:
		return a * b
	case OpDdiv:
		return a / b
	}
	return drem(a, b)
}

// compare evaluates the condition of an if instruction; cond is the offset
// of the opcode within its eq, ne, lt, ge, gt, le group.
func compare(cond Opcode, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}
