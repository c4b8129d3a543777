package vm

// ---------------------------------------------------------------------------
// Method
// ---------------------------------------------------------------------------

// Special method names.
const (
	ConstructorName = "<init>"
	InitializerName = "<clinit>"
)

// BodyKind says how a method is implemented. Every method has exactly one.
type BodyKind int

const (
	BodyBytecode BodyKind = iota
	BodyNative
	BodyAbstract
)

// String implements the Stringer interface.
func (b BodyKind) String() string {
	switch b {
	case BodyNative:
		return "native"
	case BodyAbstract:
		return "abstract"
	}
	return "bytecode"
}

// Method is a declared method.
type Method struct {
	Owner      *Class
	Name       string
	Descriptor string
	Flags      AccessFlags
	Type       *MethodType
	MaxStack   int
	MaxLocals  int
	Code       []byte

	// Slot is the vtable slot of a virtual method, -1 otherwise.
	Slot int
	// IfaceSlot is the index of an interface method within its interface's
	// itable row, -1 otherwise.
	IfaceSlot int

	code *decodedCode // set once the body is verified
}

// Body returns how the method is implemented.
func (m *Method) Body() BodyKind {
	switch {
	case m.Flags.Has(AccNative):
		return BodyNative
	case m.Flags.Has(AccAbstract):
		return BodyAbstract
	}
	return BodyBytecode
}

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool {
	return m.Flags.Has(AccStatic)
}

// IsNative reports whether the method is implemented by the host.
func (m *Method) IsNative() bool {
	return m.Flags.Has(AccNative)
}

// IsAbstract reports whether the method has no implementation.
func (m *Method) IsAbstract() bool {
	return m.Flags.Has(AccAbstract)
}

// IsConstructor reports whether the method is an instance initializer.
func (m *Method) IsConstructor() bool {
	return m.Name == ConstructorName
}

// IsVirtual reports whether calls to the method are dispatched on the
// receiver's class.
func (m *Method) IsVirtual() bool {
	return !m.IsStatic() && !m.Flags.Has(AccPrivate) &&
		m.Name != ConstructorName && m.Name != InitializerName
}

// ArgSlots returns the number of local slots taken by the receiver and
// arguments.
func (m *Method) ArgSlots() int {
	n := len(m.Type.Params)
	if !m.IsStatic() {
		n++
	}
	return n
}

// Key returns name+descriptor, the override identity of a method.
func (m *Method) Key() string {
	return m.Name + m.Descriptor
}

// String implements the Stringer interface.
func (m *Method) String() string {
	owner := "?"
	if m.Owner != nil {
		owner = m.Owner.Name
	}
	return owner + "." + m.Name + m.Descriptor
}
