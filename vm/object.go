package vm

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// HeapItem is anything stored in the heap arena.
type HeapItem interface {
	// visitRefs calls fn for every non-null reference the item holds.
	visitRefs(fn func(Ref))
	// TypeName is the class name or array descriptor of the item.
	TypeName() string
}

// Object is an instance of a class. Fields holds one slot per instance field,
// indexed by Field.Offset.
type Object struct {
	Class  *Class
	Fields []Value
}

// TypeName returns the class name.
func (o *Object) TypeName() string {
	return o.Class.Name
}

func (o *Object) visitRefs(fn func(Ref)) {
	for _, v := range o.Fields {
		if v.Kind == KindRef && v.Bits != 0 {
			fn(v.AsRef())
		}
	}
}

// Field returns the value of the named field, searching from the runtime
// class upwards.
func (o *Object) Field(name string) (Value, bool) {
	f := o.Class.FieldByName(name)
	if f == nil || f.IsStatic() {
		return Value{}, false
	}
	return o.Fields[f.Offset], true
}

// SetField stores into the named field, narrowing to the field's kind.
func (o *Object) SetField(name string, v Value) bool {
	f := o.Class.FieldByName(name)
	if f == nil || f.IsStatic() {
		return false
	}
	o.Fields[f.Offset] = narrow(f.Kind, v)
	return true
}

// Array is a fixed-length array of primitives or references.
type Array struct {
	// Type is the array descriptor, e.g. "[I" or "[[Lpkg/A;".
	Type string
	// ElemKind is the element kind; narrow kinds keep their identity here
	// so stores can truncate.
	ElemKind Kind
	// ElemType is the class name or array descriptor of reference elements.
	ElemType string
	Elems    []Value
}

// TypeName returns the array descriptor.
func (a *Array) TypeName() string {
	return a.Type
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.Elems)
}

func (a *Array) visitRefs(fn func(Ref)) {
	if a.ElemKind != KindRef {
		return
	}
	for _, v := range a.Elems {
		if v.Bits != 0 {
			fn(v.AsRef())
		}
	}
}

// Load returns element i.
func (a *Array) Load(i int32) (Value, error) {
	if i < 0 || int(i) >= len(a.Elems) {
		return Value{}, newFault(FaultOutOfBounds, "index %d outside array of length %d", i, len(a.Elems))
	}
	return a.Elems[i], nil
}

// Store writes element i, narrowing to the element kind.
func (a *Array) Store(i int32, v Value) error {
	if i < 0 || int(i) >= len(a.Elems) {
		return newFault(FaultOutOfBounds, "index %d outside array of length %d", i, len(a.Elems))
	}
	a.Elems[i] = narrow(a.ElemKind, v)
	return nil
}

// ---------------------------------------------------------------------------
// Sizes
// ---------------------------------------------------------------------------

const (
	objectHeaderBytes = 16
	arrayHeaderBytes  = 24
	slotBytes         = 8
)

func objectSize(c *Class) int64 {
	return objectHeaderBytes + slotBytes*int64(c.NumSlots)
}

func arraySize(elem Kind, length int32) int64 {
	return arrayHeaderBytes + elem.Size()*int64(length)
}
