package vm

// ---------------------------------------------------------------------------
// Decoded method bodies
// ---------------------------------------------------------------------------

// decodedCode is a verified method body decoded once, with branch targets
// translated from byte offsets to instruction indices.
type decodedCode struct {
	insns []Instruction
	byPC  []int32 // byte offset to instruction index, -1 inside an instruction
}

func newDecodedCode(code []byte, insns []Instruction) *decodedCode {
	d := &decodedCode{insns: insns, byPC: make([]int32, len(code))}
	for i := range d.byPC {
		d.byPC[i] = -1
	}
	for i, ins := range insns {
		d.byPC[ins.PC] = int32(i)
	}
	return d
}

// target returns the instruction index of a verified branch target.
func (d *decodedCode) target(pc int) int {
	return int(d.byPC[pc])
}

// ---------------------------------------------------------------------------
// CallFrame: execution state of one bytecode method
// ---------------------------------------------------------------------------

// CallFrame is one activation on the interpreter's frame stack.
//
// Locals and the operand stack share the interpreter's value slab: locals
// occupy [BP, SB) and the operand stack grows from SB. Arguments pushed by
// the caller become the callee's first locals in place.
type CallFrame struct {
	Method *Method
	pc     int // index into Method.code.insns
	BP     int // first local
	SB     int // operand stack base
}

// PC returns the byte offset of the current instruction.
func (f *CallFrame) PC() int {
	return f.Method.code.insns[f.pc].PC
}

// Instruction returns the current instruction.
func (f *CallFrame) Instruction() *Instruction {
	return &f.Method.code.insns[f.pc]
}

// trace returns the frame as a stack trace entry.
func (f *CallFrame) trace() TraceEntry {
	return TraceEntry{Class: f.Method.Owner.Name, Method: f.Method.Name, PC: f.PC()}
}

// ---------------------------------------------------------------------------
// Value slab operations
// ---------------------------------------------------------------------------

func (i *Interpreter) grow(n int) {
	if n <= len(i.stack) {
		return
	}
	size := 2 * len(i.stack)
	for size < n {
		size *= 2
	}
	stack := make([]Value, size)
	copy(stack, i.stack[:i.sp])
	i.stack = stack
}

func (i *Interpreter) push(v Value) {
	if i.sp == len(i.stack) {
		i.grow(i.sp + 1)
	}
	i.stack[i.sp] = v
	i.sp++
}

func (i *Interpreter) pop() Value {
	i.sp--
	return i.stack[i.sp]
}

func (i *Interpreter) peek(depth int) Value {
	return i.stack[i.sp-1-depth]
}

func (i *Interpreter) popInt() int32     { return i.pop().AsInt() }
func (i *Interpreter) popLong() int64    { return i.pop().AsLong() }
func (i *Interpreter) popFloat() float32 { return i.pop().AsFloat() }
func (i *Interpreter) popDouble() float64 {
	return i.pop().AsDouble()
}

// popRef pops a value that must be a reference. The verifier tracks only
// value categories, so an int reaching a reference use is caught here.
func (i *Interpreter) popRef() (Ref, error) {
	v := i.pop()
	if v.Kind != KindRef {
		return Null, newFault(FaultClassCast, "%s is not a reference", v)
	}
	return v.AsRef(), nil
}

// VisitRoots implements RootProvider: every live slot of every frame.
func (i *Interpreter) VisitRoots(visit func(Ref)) {
	for _, v := range i.stack[:i.sp] {
		if v.Kind == KindRef && v.Bits != 0 {
			visit(v.AsRef())
		}
	}
}
