package vm

// Field is a declared instance or static field.
//
// Offset is the slot index in an object's field array for instance fields,
// and in the owner's static storage for static fields.
type Field struct {
	Owner      *Class
	Name       string
	Descriptor string
	Flags      AccessFlags
	Kind       Kind
	TypeName   string // class or array type for reference fields
	Offset     int
}

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool {
	return f.Flags.Has(AccStatic)
}

// String implements the Stringer interface.
func (f *Field) String() string {
	owner := "?"
	if f.Owner != nil {
		owner = f.Owner.Name
	}
	return owner + "." + f.Name + ":" + f.Descriptor
}
