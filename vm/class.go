package vm

import (
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Access flags
// ---------------------------------------------------------------------------

// AccessFlags are the class, field and method modifiers.
type AccessFlags uint16

const (
	AccPublic    AccessFlags = 0x0001
	AccPrivate   AccessFlags = 0x0002
	AccProtected AccessFlags = 0x0004
	AccStatic    AccessFlags = 0x0008
	AccFinal     AccessFlags = 0x0010
	AccSuper     AccessFlags = 0x0020
	AccNative    AccessFlags = 0x0100
	AccInterface AccessFlags = 0x0200
	AccAbstract  AccessFlags = 0x0400
)

var accessFlagNames = []struct {
	flag AccessFlags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
}

// Has reports whether all bits of x are set.
func (f AccessFlags) Has(x AccessFlags) bool {
	return f&x == x
}

// String implements the Stringer interface.
func (f AccessFlags) String() string {
	var parts []string
	for _, n := range accessFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// ObjectClassName is the root of the class hierarchy. The loader defines it
// itself; it has no fields and a no-op constructor.
const ObjectClassName = "java/lang/Object"

type classState int

const (
	classDefined classState = iota
	classLinking
	classLinked
	classFailed
)

// Class is a loaded and linked class or interface.
//
// A Class is immutable once linked, apart from the resolution cache in its
// constant pool. Static field values live in each VM, not here.
type Class struct {
	Name           string
	Flags          AccessFlags
	SuperName      string
	InterfaceNames []string

	Superclass *Class
	Interfaces []*Class

	Pool    *ConstantPool
	Fields  []*Field  // declared fields, in declaration order
	Methods []*Method // declared methods, in declaration order

	InstanceFields []*Field // full instance layout, inherited first
	StaticFields   []*Field // declared static fields
	NumSlots       int      // number of instance field slots

	VTable *VTable
	ITable *ITable

	// InterfaceID is the loader-wide id of an interface, -1 for classes.
	InterfaceID int

	allInterfaces []*Class
	ifaceMethods  []*Method
	clinit        *Method
	state         classState
	loader        *Loader
}

// String implements the Stringer interface.
func (c *Class) String() string {
	return c.Name
}

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool {
	return c.Flags.Has(AccInterface)
}

// IsAbstract reports whether c is abstract (interfaces included).
func (c *Class) IsAbstract() bool {
	return c.Flags.Has(AccAbstract) || c.IsInterface()
}

// Loader returns the loader that defined c.
func (c *Class) Loader() *Loader {
	return c.loader
}

// AllInterfaces returns every interface c implements, directly or through
// its superclasses and superinterfaces.
func (c *Class) AllInterfaces() []*Class {
	return c.allInterfaces
}

// IsSubclassOf returns true if c is other or extends it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Superclass {
		if current == other {
			return true
		}
	}
	return false
}

// Implements reports whether c implements the interface iface.
func (c *Class) Implements(iface *Class) bool {
	if c == iface {
		return true
	}
	for _, i := range c.allInterfaces {
		if i == iface {
			return true
		}
	}
	return false
}

// IsAssignableTo reports whether an instance of c can be stored in a
// variable of type other.
func (c *Class) IsAssignableTo(other *Class) bool {
	if other.IsInterface() {
		return c.Implements(other)
	}
	if c.IsInterface() {
		return other.Name == ObjectClassName
	}
	return c.IsSubclassOf(other)
}

// DeclaredMethod returns the method declared by c with this name and
// descriptor, or nil.
func (c *Class) DeclaredMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindMethod looks a method up in c, then its superclasses, then its
// interfaces.
func (c *Class) FindMethod(name, desc string) *Method {
	for current := c; current != nil; current = current.Superclass {
		if m := current.DeclaredMethod(name, desc); m != nil {
			return m
		}
	}
	for _, iface := range c.allInterfaces {
		if m := iface.DeclaredMethod(name, desc); m != nil {
			return m
		}
	}
	if c.IsInterface() && c.Superclass != nil {
		return c.Superclass.FindMethod(name, desc)
	}
	return nil
}

// DeclaredField returns the field declared by c with this name and
// descriptor, or nil.
func (c *Class) DeclaredField(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && f.Descriptor == desc {
			return f
		}
	}
	return nil
}

// FindField looks a field up in c, its interfaces, then its superclasses.
func (c *Class) FindField(name, desc string) *Field {
	for current := c; current != nil; current = current.Superclass {
		if f := current.DeclaredField(name, desc); f != nil {
			return f
		}
		for _, iface := range current.Interfaces {
			if f := iface.FindField(name, desc); f != nil {
				return f
			}
		}
	}
	return nil
}

// FieldByName returns the most derived field with this name, instance or
// static, ignoring the descriptor. Used by hosts poking at objects.
func (c *Class) FieldByName(name string) *Field {
	for current := c; current != nil; current = current.Superclass {
		for _, f := range current.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// StaticInitializer returns the <clinit> method, or nil.
func (c *Class) StaticInitializer() *Method {
	return c.clinit
}

// ---------------------------------------------------------------------------
// ClassTable: loader-wide class registry
// ---------------------------------------------------------------------------

// ClassTable maps class names to classes.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a new empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make(map[string]*Class),
	}
}

// Register adds a class to the table.
// Returns the previous class with this name, or nil.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	old := ct.classes[c.Name]
	ct.classes[c.Name] = c
	return old
}

// Lookup finds a class by name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// Has returns true if a class with this name is registered.
func (ct *ClassTable) Has(name string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	_, ok := ct.classes[name]
	return ok
}

// All returns all registered classes sorted by name.
func (ct *ClassTable) All() []*Class {
	ct.mu.RLock()
	result := make([]*Class, 0, len(ct.classes))
	for _, c := range ct.classes {
		result = append(result, c)
	}
	ct.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}
