package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Operand access
// ---------------------------------------------------------------------------

func readU16(code []byte, p int) int {
	return int(binary.BigEndian.Uint16(code[p:]))
}

func readS16(code []byte, p int) int {
	return int(int16(binary.BigEndian.Uint16(code[p:])))
}

func readS32(code []byte, p int) int32 {
	return int32(binary.BigEndian.Uint32(code[p:]))
}

// switchPadding returns the number of pad bytes after a switch opcode at pc,
// aligning the operands to a multiple of four from the start of the code.
func switchPadding(pc int) int {
	return (4 - (pc+1)%4) % 4
}

// ---------------------------------------------------------------------------
// Instruction decoding
// ---------------------------------------------------------------------------

// ErrTruncated is returned when an instruction runs past the end of the code.
var ErrTruncated = errors.New("truncated instruction")

// Instruction is one decoded instruction.
type Instruction struct {
	PC   int
	Op   Opcode
	Len  int
	Wide bool

	// Index is a local variable index, a constant pool index, or the
	// newarray type code.
	Index int
	// Const is the bipush/sipush value, the iinc delta, the
	// invokeinterface count, or the multianewarray dimension count.
	Const int32
	// Targets are absolute branch targets. For switches the default target
	// comes first and Targets[i+1] belongs to Keys[i].
	Targets []int
	Keys    []int32
}

// DecodeInstruction decodes the instruction at pc.
func DecodeInstruction(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("pc %d outside code of length %d", pc, len(code))
	}
	op := Opcode(code[pc])
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("unknown opcode 0x%02x at pc %d", byte(op), pc)
	}
	ins := Instruction{PC: pc, Op: op}
	need := func(n int) error {
		if pc+n > len(code) {
			return fmt.Errorf("%s at pc %d: %w", op, pc, ErrTruncated)
		}
		return nil
	}

	switch op {
	case OpTableswitch, OpLookupswitch:
		p := pc + 1 + switchPadding(pc)
		if err := need(p - pc + 8); err != nil {
			return ins, err
		}
		dflt := pc + int(readS32(code, p))
		ins.Targets = append(ins.Targets, dflt)
		if op == OpTableswitch {
			if err := need(p - pc + 12); err != nil {
				return ins, err
			}
			low, high := readS32(code, p+4), readS32(code, p+8)
			if low > high {
				return ins, fmt.Errorf("tableswitch at pc %d: low %d > high %d", pc, low, high)
			}
			n := int(int64(high) - int64(low) + 1)
			if err := need(p - pc + 12 + 4*n); err != nil {
				return ins, err
			}
			for i := 0; i < n; i++ {
				ins.Keys = append(ins.Keys, low+int32(i))
				ins.Targets = append(ins.Targets, pc+int(readS32(code, p+12+4*i)))
			}
			ins.Len = p - pc + 12 + 4*n
		} else {
			n := int(readS32(code, p+4))
			if n < 0 {
				return ins, fmt.Errorf("lookupswitch at pc %d: negative pair count", pc)
			}
			if err := need(p - pc + 8 + 8*n); err != nil {
				return ins, err
			}
			for i := 0; i < n; i++ {
				ins.Keys = append(ins.Keys, readS32(code, p+8+8*i))
				ins.Targets = append(ins.Targets, pc+int(readS32(code, p+12+8*i)))
			}
			ins.Len = p - pc + 8 + 8*n
		}
		return ins, nil

	case OpWide:
		if err := need(2); err != nil {
			return ins, err
		}
		mod := Opcode(code[pc+1])
		ins.Op = mod
		ins.Wide = true
		switch mod {
		case OpIinc:
			if err := need(6); err != nil {
				return ins, err
			}
			ins.Index = readU16(code, pc+2)
			ins.Const = int32(readS16(code, pc+4))
			ins.Len = 6
		case OpIload, OpLload, OpFload, OpDload, OpAload,
			OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
			if err := need(4); err != nil {
				return ins, err
			}
			ins.Index = readU16(code, pc+2)
			ins.Len = 4
		default:
			return ins, fmt.Errorf("wide at pc %d modifies %s", pc, mod)
		}
		return ins, nil
	}

	n := op.Info().OperandBytes
	if err := need(1 + n); err != nil {
		return ins, err
	}
	ins.Len = 1 + n

	switch op {
	case OpBipush:
		ins.Const = int32(int8(code[pc+1]))
	case OpSipush:
		ins.Const = int32(readS16(code, pc+1))
	case OpLdc, OpNewarray,
		OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
		ins.Index = int(code[pc+1])
	case OpIinc:
		ins.Index = int(code[pc+1])
		ins.Const = int32(int8(code[pc+2]))
	case OpLdcW, OpLdc2W, OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokedynamic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		ins.Index = readU16(code, pc+1)
	case OpInvokeinterface:
		ins.Index = readU16(code, pc+1)
		ins.Const = int32(code[pc+3])
	case OpMultianewarray:
		ins.Index = readU16(code, pc+1)
		ins.Const = int32(code[pc+3])
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne, OpIfnull, OpIfnonnull, OpGoto, OpJsr:
		ins.Targets = []int{pc + readS16(code, pc+1)}
	case OpGotoW, OpJsrW:
		ins.Targets = []int{pc + int(readS32(code, pc+1))}
	default:
		switch {
		case op >= OpIload0 && op <= OpAload3:
			ins.Index = int(op-OpIload0) % 4
		case op >= OpIstore0 && op <= OpAstore3:
			ins.Index = int(op-OpIstore0) % 4
		}
	}
	return ins, nil
}

// DecodeAll decodes every instruction of a method body in order.
func DecodeAll(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		ins, err := DecodeInstruction(code, pc)
		if err != nil {
			return out, err
		}
		out = append(out, ins)
		pc += ins.Len
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// CodeBuilder: bytecode assembly with labels
// ---------------------------------------------------------------------------

// CodeBuilder assembles a method body.
type CodeBuilder struct {
	code   []byte
	labels []*Label
	err    error
}

// NewCodeBuilder creates an empty code builder.
func NewCodeBuilder() *CodeBuilder {
	return &CodeBuilder{code: make([]byte, 0, 64)}
}

// Bytes returns the code assembled so far.
func (b *CodeBuilder) Bytes() []byte {
	return b.code
}

// Len returns the current length, which is also the pc of the next
// instruction.
func (b *CodeBuilder) Len() int {
	return len(b.code)
}

func (b *CodeBuilder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

func (b *CodeBuilder) u16(v int) {
	b.code = binary.BigEndian.AppendUint16(b.code, uint16(v))
}

func (b *CodeBuilder) s32(v int32) {
	b.code = binary.BigEndian.AppendUint32(b.code, uint32(v))
}

// Emit appends an opcode with no operands.
func (b *CodeBuilder) Emit(op Opcode) {
	b.code = append(b.code, byte(op))
}

// EmitU8 appends an opcode with a one-byte operand.
func (b *CodeBuilder) EmitU8(op Opcode, v byte) {
	b.code = append(b.code, byte(op), v)
}

// EmitU16 appends an opcode with a two-byte operand.
func (b *CodeBuilder) EmitU16(op Opcode, v uint16) {
	b.code = append(b.code, byte(op))
	b.u16(int(v))
}

// EmitLocal appends a load or store of local index, using the short forms
// for indices 0-3 and a wide prefix above 255.
func (b *CodeBuilder) EmitLocal(op Opcode, index int) {
	var short Opcode
	switch op {
	case OpIload, OpLload, OpFload, OpDload, OpAload:
		short = OpIload0 + Opcode(op-OpIload)*4
	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		short = OpIstore0 + Opcode(op-OpIstore)*4
	default:
		b.fail("%s is not a local variable instruction", op)
		return
	}
	switch {
	case index < 0 || index > math.MaxUint16:
		b.fail("local index %d out of range", index)
	case index <= 3:
		b.Emit(short + Opcode(index))
	case index <= math.MaxUint8:
		b.EmitU8(op, byte(index))
	default:
		b.Emit(OpWide)
		b.EmitU16(op, uint16(index))
	}
}

// EmitIinc appends an iinc, widening when needed.
func (b *CodeBuilder) EmitIinc(index int, delta int32) {
	if index <= math.MaxUint8 && delta >= math.MinInt8 && delta <= math.MaxInt8 {
		b.code = append(b.code, byte(OpIinc), byte(index), byte(int8(delta)))
		return
	}
	if index > math.MaxUint16 || delta < math.MinInt16 || delta > math.MaxInt16 {
		b.fail("iinc %d %d out of range", index, delta)
		return
	}
	b.Emit(OpWide)
	b.EmitU16(OpIinc, uint16(index))
	b.u16(int(int16(delta)))
}

// EmitInvokeInterface appends an invokeinterface with its argument count.
func (b *CodeBuilder) EmitInvokeInterface(index uint16, count int) {
	b.EmitU16(OpInvokeinterface, index)
	b.code = append(b.code, byte(count), 0)
}

// EmitMultiANewArray appends a multianewarray.
func (b *CodeBuilder) EmitMultiANewArray(index uint16, dims int) {
	b.EmitU16(OpMultianewarray, index)
	b.code = append(b.code, byte(dims))
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a jump target that may be referenced before it is marked.
type Label struct {
	resolved bool
	position int
	refs     []labelRef
}

// labelRef is one use of a label: the instruction it belongs to and the
// operand to patch.
type labelRef struct {
	insn  int
	at    int
	width int
}

// NewLabel creates an unresolved label.
func (b *CodeBuilder) NewLabel() *Label {
	l := &Label{}
	b.labels = append(b.labels, l)
	return l
}

// Mark resolves a label to the current position and patches earlier uses.
func (b *CodeBuilder) Mark(label *Label) {
	if label.resolved {
		b.fail("label marked twice")
		return
	}
	label.resolved = true
	label.position = len(b.code)
	for _, ref := range label.refs {
		b.patch(ref, label.position)
	}
	label.refs = nil
}

func (b *CodeBuilder) patch(ref labelRef, target int) {
	offset := target - ref.insn
	if ref.width == 2 {
		if offset < math.MinInt16 || offset > math.MaxInt16 {
			b.fail("branch at pc %d out of 16-bit range", ref.insn)
			return
		}
		binary.BigEndian.PutUint16(b.code[ref.at:], uint16(int16(offset)))
		return
	}
	binary.BigEndian.PutUint32(b.code[ref.at:], uint32(int32(offset)))
}

// reference emits a placeholder operand for label and records or patches it.
func (b *CodeBuilder) reference(label *Label, insn, width int) {
	ref := labelRef{insn: insn, at: len(b.code), width: width}
	b.code = append(b.code, make([]byte, width)...)
	if label.resolved {
		b.patch(ref, label.position)
	} else {
		label.refs = append(label.refs, ref)
	}
}

// EmitJump appends a branch instruction to label. goto_w takes a four-byte
// offset, every other branch two bytes.
func (b *CodeBuilder) EmitJump(op Opcode, label *Label) {
	insn := len(b.code)
	b.Emit(op)
	width := 2
	if op == OpGotoW {
		width = 4
	}
	b.reference(label, insn, width)
}

func (b *CodeBuilder) pad(insn int) {
	for i := 0; i < switchPadding(insn); i++ {
		b.code = append(b.code, 0)
	}
}

// EmitTableSwitch appends a tableswitch covering low..low+len(cases)-1.
func (b *CodeBuilder) EmitTableSwitch(low int32, dflt *Label, cases ...*Label) {
	if len(cases) == 0 {
		b.fail("tableswitch needs at least one case")
		return
	}
	insn := len(b.code)
	b.Emit(OpTableswitch)
	b.pad(insn)
	b.reference(dflt, insn, 4)
	b.s32(low)
	b.s32(low + int32(len(cases)) - 1)
	for _, l := range cases {
		b.reference(l, insn, 4)
	}
}

// EmitLookupSwitch appends a lookupswitch. Pairs are sorted by key; duplicate
// keys are an error.
func (b *CodeBuilder) EmitLookupSwitch(dflt *Label, cases map[int32]*Label) {
	keys := make([]int32, 0, len(cases))
	for k := range cases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	insn := len(b.code)
	b.Emit(OpLookupswitch)
	b.pad(insn)
	b.reference(dflt, insn, 4)
	b.s32(int32(len(keys)))
	for _, k := range keys {
		b.s32(k)
		b.reference(cases[k], insn, 4)
	}
}

// Finish returns the assembled code, or the first error encountered
// (including labels that were used but never marked).
func (b *CodeBuilder) Finish() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, fmt.Errorf("label referenced at pc %d never marked", l.refs[0].insn)
		}
	}
	return b.code, nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction formats one decoded instruction. pool may be nil.
func DisassembleInstruction(ins Instruction, pool *ConstantPool) string {
	name := ins.Op.Name()
	if ins.Wide {
		name = "wide " + name
	}
	switch ins.Op {
	case OpTableswitch, OpLookupswitch:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%04d  %s {", ins.PC, name)
		for i, k := range ins.Keys {
			fmt.Fprintf(&sb, " %d: %d;", k, ins.Targets[i+1])
		}
		fmt.Fprintf(&sb, " default: %d }", ins.Targets[0])
		return sb.String()
	case OpBipush, OpSipush:
		return fmt.Sprintf("%04d  %s %d", ins.PC, name, ins.Const)
	case OpIinc:
		return fmt.Sprintf("%04d  %s %d %d", ins.PC, name, ins.Index, ins.Const)
	case OpNewarray:
		k, _ := KindFromArrayType(byte(ins.Index))
		return fmt.Sprintf("%04d  %s %s", ins.PC, name, k)
	case OpLdc, OpLdcW, OpLdc2W, OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpMultianewarray:
		s := fmt.Sprintf("%04d  %s #%d", ins.PC, name, ins.Index)
		if ins.Op == OpMultianewarray {
			s += fmt.Sprintf(" %d", ins.Const)
		}
		if pool != nil {
			s += "  // " + describeConstant(pool, ins.Index)
		}
		return s
	}
	if len(ins.Targets) == 1 {
		return fmt.Sprintf("%04d  %s %d", ins.PC, name, ins.Targets[0])
	}
	info := ins.Op.Info()
	if info.OperandBytes > 0 || ins.Wide {
		return fmt.Sprintf("%04d  %s %d", ins.PC, name, ins.Index)
	}
	return fmt.Sprintf("%04d  %s", ins.PC, name)
}

func describeConstant(pool *ConstantPool, i int) string {
	c, err := pool.Get(i)
	if err != nil {
		return "<invalid>"
	}
	switch c.Tag {
	case TagInteger, TagLong, TagFloat, TagDouble:
		return c.Value().String()
	case TagString:
		s, _ := pool.Utf8(int(c.A))
		return fmt.Sprintf("%q", s)
	case TagClass:
		name, _ := pool.ClassName(i)
		return name
	case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
		ref, err := pool.MemberRef(i)
		if err != nil {
			return "<invalid>"
		}
		return ref.String()
	}
	return c.Tag.String()
}

// Disassemble formats a whole method body. Decoding stops at the first
// malformed instruction, which is reported on the last line.
func Disassemble(code []byte, pool *ConstantPool) string {
	var lines []string
	for pc := 0; pc < len(code); {
		ins, err := DecodeInstruction(code, pc)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%04d  <%v>", pc, err))
			break
		}
		lines = append(lines, DisassembleInstruction(ins, pool))
		pc += ins.Len
	}
	return strings.Join(lines, "\n")
}

// DisassembleMethod formats a method header and its code.
func DisassembleMethod(m *Method) string {
	header := fmt.Sprintf("%s %s%s", m.Flags, m.Name, m.Descriptor)
	if m.Body() != BodyBytecode {
		return strings.TrimSpace(header) + ";"
	}
	var pool *ConstantPool
	if m.Owner != nil {
		pool = m.Owner.Pool
	}
	return fmt.Sprintf("%s  [stack=%d locals=%d]\n%s",
		strings.TrimSpace(header), m.MaxStack, m.MaxLocals, Disassemble(m.Code, pool))
}
