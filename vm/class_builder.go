package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// ClassBuilder: programmatic class construction
// ---------------------------------------------------------------------------

// ClassBuilder assembles a ClassFile. Constant pool entries are interned, so
// equal constants share one index.
type ClassBuilder struct {
	pool     *ConstantPool
	interned map[constKey]uint16

	name       string
	super      string
	flags      AccessFlags
	interfaces []string
	fields     []MemberInfo
	methods    []*MethodBuilder
	err        error
}

type constKey struct {
	tag  ConstantTag
	text string
	bits uint64
	a, b uint16
}

// NewClassBuilder starts a public class. An empty super means
// java/lang/Object.
func NewClassBuilder(name, super string) *ClassBuilder {
	if super == "" && name != ObjectClassName {
		super = ObjectClassName
	}
	return &ClassBuilder{
		pool:     NewConstantPool(),
		interned: make(map[constKey]uint16),
		name:     name,
		super:    super,
		flags:    AccPublic | AccSuper,
	}
}

// NewInterfaceBuilder starts a public interface extending supers.
func NewInterfaceBuilder(name string, supers ...string) *ClassBuilder {
	b := NewClassBuilder(name, ObjectClassName)
	b.flags = AccPublic | AccInterface | AccAbstract
	b.interfaces = supers
	return b
}

// Name returns the name of the class being built.
func (b *ClassBuilder) Name() string {
	return b.name
}

// Flags replaces the class access flags.
func (b *ClassBuilder) Flags(f AccessFlags) *ClassBuilder {
	b.flags = f
	return b
}

// Implements adds interfaces.
func (b *ClassBuilder) Implements(names ...string) *ClassBuilder {
	b.interfaces = append(b.interfaces, names...)
	return b
}

// Field declares a field.
func (b *ClassBuilder) Field(name, desc string, flags AccessFlags) *ClassBuilder {
	b.fields = append(b.fields, MemberInfo{
		Flags:           flags,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(desc),
	})
	return b
}

// Method declares a method with a bytecode body and returns its builder.
func (b *ClassBuilder) Method(name, desc string, flags AccessFlags) *MethodBuilder {
	m := &MethodBuilder{CodeBuilder: NewCodeBuilder(), class: b, name: name, desc: desc, flags: flags}
	b.methods = append(b.methods, m)
	return m
}

// NativeMethod declares a method implemented by the host.
func (b *ClassBuilder) NativeMethod(name, desc string, flags AccessFlags) *ClassBuilder {
	b.methods = append(b.methods, &MethodBuilder{class: b, name: name, desc: desc, flags: flags | AccNative})
	return b
}

// AbstractMethod declares a method without a body.
func (b *ClassBuilder) AbstractMethod(name, desc string, flags AccessFlags) *ClassBuilder {
	b.methods = append(b.methods, &MethodBuilder{class: b, name: name, desc: desc, flags: flags | AccAbstract})
	return b
}

// DefaultConstructor adds <init>()V calling the superclass constructor.
func (b *ClassBuilder) DefaultConstructor() *ClassBuilder {
	m := b.Method(ConstructorName, "()V", AccPublic)
	m.Load(KindRef, 0)
	m.Invokespecial(b.super, ConstructorName, "()V")
	m.Return(KindVoid)
	return b
}

// Build assembles the class file, computing max_stack and max_locals of
// every method from its code.
func (b *ClassBuilder) Build() (*ClassFile, error) {
	if b.err != nil {
		return nil, b.err
	}
	cf := &ClassFile{
		Pool:      b.pool,
		Flags:     b.flags,
		ThisClass: b.Class(b.name),
		Fields:    b.fields,
	}
	if b.super != "" {
		cf.SuperClass = b.Class(b.super)
	}
	for _, iface := range b.interfaces {
		cf.Interfaces = append(cf.Interfaces, b.Class(iface))
	}
	for _, m := range b.methods {
		info, err := m.build()
		if err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", b.name, m.name, m.desc, err)
		}
		cf.Methods = append(cf.Methods, info)
	}
	return cf, nil
}

// Bytes builds the class and encodes it.
func (b *ClassBuilder) Bytes() ([]byte, error) {
	cf, err := b.Build()
	if err != nil {
		return nil, err
	}
	return WriteClassFile(cf)
}

// ---------------------------------------------------------------------------
// Constant interning
// ---------------------------------------------------------------------------

func (b *ClassBuilder) intern(c *Constant) uint16 {
	key := constKey{tag: c.Tag, text: c.Text, bits: c.Bits, a: c.A, b: c.B}
	if i, ok := b.interned[key]; ok {
		return i
	}
	if b.pool.Len() > math.MaxUint16 {
		if b.err == nil {
			b.err = fmt.Errorf("%s: constant pool overflow", b.name)
		}
		return 0
	}
	i := b.pool.Add(c)
	b.interned[key] = i
	return i
}

// Utf8 interns a Utf8 entry.
func (b *ClassBuilder) Utf8(s string) uint16 {
	return b.intern(Utf8Constant(s))
}

// Class interns a Class entry.
func (b *ClassBuilder) Class(name string) uint16 {
	return b.intern(&Constant{Tag: TagClass, A: b.Utf8(name)})
}

// StringConst interns a String entry.
func (b *ClassBuilder) StringConst(s string) uint16 {
	return b.intern(&Constant{Tag: TagString, A: b.Utf8(s)})
}

// Integer interns an Integer entry.
func (b *ClassBuilder) Integer(v int32) uint16 { return b.intern(IntegerConstant(v)) }

// Long interns a Long entry.
func (b *ClassBuilder) Long(v int64) uint16 { return b.intern(LongConstant(v)) }

// Float interns a Float entry.
func (b *ClassBuilder) Float(v float32) uint16 { return b.intern(FloatConstant(v)) }

// Double interns a Double entry.
func (b *ClassBuilder) Double(v float64) uint16 { return b.intern(DoubleConstant(v)) }

// NameAndType interns a NameAndType entry.
func (b *ClassBuilder) NameAndType(name, desc string) uint16 {
	return b.intern(&Constant{Tag: TagNameAndType, A: b.Utf8(name), B: b.Utf8(desc)})
}

func (b *ClassBuilder) memberRef(tag ConstantTag, class, name, desc string) uint16 {
	return b.intern(&Constant{Tag: tag, A: b.Class(class), B: b.NameAndType(name, desc)})
}

// FieldRef interns a Fieldref entry.
func (b *ClassBuilder) FieldRef(class, name, desc string) uint16 {
	return b.memberRef(TagFieldRef, class, name, desc)
}

// MethodRef interns a Methodref entry.
func (b *ClassBuilder) MethodRef(class, name, desc string) uint16 {
	return b.memberRef(TagMethodRef, class, name, desc)
}

// InterfaceMethodRef interns an InterfaceMethodref entry.
func (b *ClassBuilder) InterfaceMethodRef(class, name, desc string) uint16 {
	return b.memberRef(TagInterfaceMethodRef, class, name, desc)
}

// ---------------------------------------------------------------------------
// MethodBuilder
// ---------------------------------------------------------------------------

// MethodBuilder emits the body of one method. It embeds a CodeBuilder for raw
// emission and labels, and adds typed helpers that intern their operands.
type MethodBuilder struct {
	*CodeBuilder
	class     *ClassBuilder
	name      string
	desc      string
	flags     AccessFlags
	minLocals int
}

// Locals reserves at least n local slots.
func (m *MethodBuilder) Locals(n int) {
	m.minLocals = n
}

func (m *MethodBuilder) build() (MemberInfo, error) {
	info := MemberInfo{
		Flags:           m.flags,
		NameIndex:       m.class.Utf8(m.name),
		DescriptorIndex: m.class.Utf8(m.desc),
	}
	typ, err := ParseMethodDescriptor(m.desc)
	if err != nil {
		return info, err
	}
	if m.CodeBuilder == nil {
		return info, nil
	}
	code, err := m.Finish()
	if err != nil {
		return info, err
	}
	shape, err := analyzeCode(code, m.class.pool, typ, m.flags.Has(AccStatic), -1)
	if err != nil {
		return info, err
	}
	locals := max(shape.maxLocal, m.minLocals)
	if shape.maxStack > math.MaxUint16 || locals > math.MaxUint16 {
		return info, fmt.Errorf("frame too large")
	}
	info.Code = code
	info.MaxStack = uint16(shape.maxStack)
	info.MaxLocals = uint16(locals)
	return info, nil
}

// Iconst pushes an int using the shortest encoding.
func (m *MethodBuilder) Iconst(v int32) {
	switch {
	case v >= -1 && v <= 5:
		m.Emit(OpIconst0 + Opcode(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		m.EmitU8(OpBipush, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		m.EmitU16(OpSipush, uint16(int16(v)))
	default:
		m.ldc(m.class.Integer(v))
	}
}

// Lconst pushes a long.
func (m *MethodBuilder) Lconst(v int64) {
	if v == 0 || v == 1 {
		m.Emit(OpLconst0 + Opcode(v))
		return
	}
	m.EmitU16(OpLdc2W, m.class.Long(v))
}

// Fconst pushes a float.
func (m *MethodBuilder) Fconst(v float32) {
	if (v == 0 && !math.Signbit(float64(v))) || v == 1 || v == 2 {
		m.Emit(OpFconst0 + Opcode(v))
		return
	}
	m.ldc(m.class.Float(v))
}

// Dconst pushes a double.
func (m *MethodBuilder) Dconst(v float64) {
	if (v == 0 && !math.Signbit(v)) || v == 1 {
		m.Emit(OpDconst0 + Opcode(v))
		return
	}
	m.EmitU16(OpLdc2W, m.class.Double(v))
}

// LdcString pushes a String constant.
func (m *MethodBuilder) LdcString(s string) {
	m.ldc(m.class.StringConst(s))
}

func (m *MethodBuilder) ldc(index uint16) {
	if index <= math.MaxUint8 {
		m.EmitU8(OpLdc, byte(index))
		return
	}
	m.EmitU16(OpLdcW, index)
}

func kindOffset(k Kind) Opcode {
	switch k.StackKind() {
	case KindLong:
		return 1
	case KindFloat:
		return 2
	case KindDouble:
		return 3
	case KindRef:
		return 4
	}
	return 0
}

// Load pushes local index of kind k.
func (m *MethodBuilder) Load(k Kind, index int) {
	m.EmitLocal(OpIload+kindOffset(k), index)
}

// Store pops into local index of kind k.
func (m *MethodBuilder) Store(k Kind, index int) {
	m.EmitLocal(OpIstore+kindOffset(k), index)
}

// Return emits the return instruction for kind k (KindVoid for return).
func (m *MethodBuilder) Return(k Kind) {
	if k == KindVoid {
		m.Emit(OpReturn)
		return
	}
	m.Emit(OpIreturn + kindOffset(k))
}

// ArrayLoad emits the xaload for element kind k.
func (m *MethodBuilder) ArrayLoad(k Kind) {
	m.Emit(arrayOp(OpIaload, k))
}

// ArrayStore emits the xastore for element kind k.
func (m *MethodBuilder) ArrayStore(k Kind) {
	m.Emit(arrayOp(OpIastore, k))
}

func arrayOp(base Opcode, k Kind) Opcode {
	switch k {
	case KindLong:
		return base + 1
	case KindFloat:
		return base + 2
	case KindDouble:
		return base + 3
	case KindRef:
		return base + 4
	case KindBoolean, KindByte:
		return base + 5
	case KindChar:
		return base + 6
	case KindShort:
		return base + 7
	}
	return base
}

// Getstatic emits getstatic class.name:desc.
func (m *MethodBuilder) Getstatic(class, name, desc string) {
	m.EmitU16(OpGetstatic, m.class.FieldRef(class, name, desc))
}

// Putstatic emits putstatic class.name:desc.
func (m *MethodBuilder) Putstatic(class, name, desc string) {
	m.EmitU16(OpPutstatic, m.class.FieldRef(class, name, desc))
}

// Getfield emits getfield class.name:desc.
func (m *MethodBuilder) Getfield(class, name, desc string) {
	m.EmitU16(OpGetfield, m.class.FieldRef(class, name, desc))
}

// Putfield emits putfield class.name:desc.
func (m *MethodBuilder) Putfield(class, name, desc string) {
	m.EmitU16(OpPutfield, m.class.FieldRef(class, name, desc))
}

// Invokestatic emits invokestatic class.name desc.
func (m *MethodBuilder) Invokestatic(class, name, desc string) {
	m.EmitU16(OpInvokestatic, m.class.MethodRef(class, name, desc))
}

// Invokevirtual emits invokevirtual class.name desc.
func (m *MethodBuilder) Invokevirtual(class, name, desc string) {
	m.EmitU16(OpInvokevirtual, m.class.MethodRef(class, name, desc))
}

// Invokespecial emits invokespecial class.name desc.
func (m *MethodBuilder) Invokespecial(class, name, desc string) {
	m.EmitU16(OpInvokespecial, m.class.MethodRef(class, name, desc))
}

// Invokeinterface emits invokeinterface iface.name desc.
func (m *MethodBuilder) Invokeinterface(iface, name, desc string) {
	count := 1
	if typ, err := ParseMethodDescriptor(desc); err == nil {
		count += len(typ.Params)
	}
	m.EmitInvokeInterface(m.class.InterfaceMethodRef(iface, name, desc), count)
}

// New emits new class.
func (m *MethodBuilder) New(class string) {
	m.EmitU16(OpNew, m.class.Class(class))
}

// Newarray emits newarray for a primitive element kind.
func (m *MethodBuilder) Newarray(k Kind) {
	m.EmitU8(OpNewarray, k.ArrayType())
}

// Anewarray emits anewarray with a class or array element type.
func (m *MethodBuilder) Anewarray(elem string) {
	m.EmitU16(OpAnewarray, m.class.Class(elem))
}

// Multianewarray emits multianewarray for an array type descriptor.
func (m *MethodBuilder) Multianewarray(arrayType string, dims int) {
	m.EmitMultiANewArray(m.class.Class(arrayType), dims)
}

// Checkcast emits checkcast.
func (m *MethodBuilder) Checkcast(t string) {
	m.EmitU16(OpCheckcast, m.class.Class(t))
}

// Instanceof emits instanceof.
func (m *MethodBuilder) Instanceof(t string) {
	m.EmitU16(OpInstanceof, m.class.Class(t))
}
