package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ---------------------------------------------------------------------------
// Loader: define, link, verify
// ---------------------------------------------------------------------------

// Loader turns class files into linked, verified classes and owns the
// resulting class table. One loader can be shared by many VMs.
//
// Classes referenced but not yet defined are fetched from the loader's
// sources on demand. A class and every class pulled in while loading it are
// published together: if any of them fails, none of them becomes visible.
type Loader struct {
	mu      sync.Mutex
	classes *ClassTable
	sources MultiSource

	// batch state, guarded by mu
	pending map[string]*Class
	order   []*Class
	depth   int

	nextInterfaceID int
}

// NewLoader creates a loader with the bootstrap java/lang/Object class
// already defined.
func NewLoader(sources ...ClassSource) *Loader {
	l := &Loader{
		classes: NewClassTable(),
		sources: MultiSource(sources),
		pending: make(map[string]*Class),
	}
	cf, err := bootstrapObject()
	if err == nil {
		_, err = l.Define(cf)
	}
	if err != nil {
		panic(fmt.Sprintf("classvm: bootstrap %s: %v", ObjectClassName, err))
	}
	return l
}

func bootstrapObject() (*ClassFile, error) {
	b := NewClassBuilder(ObjectClassName, "")
	init := b.Method(ConstructorName, "()V", AccPublic)
	init.Return(KindVoid)
	return b.Build()
}

// AddSource appends a class source to the search path.
func (l *Loader) AddSource(s ClassSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, s)
}

// LoadClass decodes and defines one encoded class.
func (l *Loader) LoadClass(data []byte) (*Class, error) {
	cf, err := ReadClassFile(data)
	if err != nil {
		return nil, err
	}
	return l.Define(cf)
}

// Define links and verifies a decoded class, loading the classes it refers to
// from the loader's sources as needed.
func (l *Loader) Define(cf *ClassFile) (c *Class, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.begin()
	defer func() { l.end(err) }()
	return l.define(cf)
}

// Resolve returns the named class, loading it from the sources if it is not
// yet defined.
func (l *Loader) Resolve(name string) (c *Class, err error) {
	if c := l.classes.Lookup(name); c != nil {
		return c, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.begin()
	defer func() { l.end(err) }()
	return l.resolve(name)
}

// Lookup returns a defined class without loading anything.
func (l *Loader) Lookup(name string) *Class {
	return l.classes.Lookup(name)
}

// Classes returns every defined class sorted by name.
func (l *Loader) Classes() []*Class {
	return l.classes.All()
}

func (l *Loader) begin() {
	l.depth++
}

// end publishes or discards the batch once the outermost load finishes.
func (l *Loader) end(err error) {
	l.depth--
	if l.depth > 0 {
		return
	}
	if err != nil {
		for _, c := range l.order {
			c.state = classFailed
		}
		if len(l.order) > 0 {
			loaderLog.Warningf("discarding %d class(es) after failed load: %v", len(l.order), err)
		}
	} else {
		for _, c := range l.order {
			l.classes.Register(c)
			loaderLog.Debugf("defined %s", c.Name)
		}
		if len(l.order) > 0 {
			loaderLog.Debugf("published %d class(es), %d loaded", len(l.order), l.classes.Len())
		}
	}
	l.pending = make(map[string]*Class)
	l.order = nil
}

// resolve finds a class that is published, in the current batch, or
// available from a source.
func (l *Loader) resolve(name string) (*Class, error) {
	if c := l.classes.Lookup(name); c != nil {
		return c, nil
	}
	if c, ok := l.pending[name]; ok {
		if c.state == classLinking {
			return nil, malformed(name, "circular class hierarchy")
		}
		return c, nil
	}
	if isArrayType(name) {
		return nil, malformed(name, "array type used as a class")
	}
	data, err := l.sources.FindClass(name)
	if err != nil {
		if errors.Is(err, ErrClassNotFound) {
			return nil, &LoadError{Kind: LoadUnresolvedSymbol, Class: name, Detail: "class not found", Err: err}
		}
		return nil, &LoadError{Kind: LoadMalformed, Class: name, Detail: "reading class", Err: err}
	}
	cf, err := ReadClassFile(data)
	if err != nil {
		return nil, err
	}
	if got, _ := cf.Name(); got != name {
		return nil, malformed(name, "source returned class %s", got)
	}
	loaderLog.Debugf("loading %s from class path", name)
	return l.define(cf)
}

// resolveType checks a class or array type name, resolving the class or
// array element class it mentions. Array types resolve to nil.
func (l *Loader) resolveType(name string) (*Class, error) {
	if !isArrayType(name) {
		return l.resolve(name)
	}
	elem, kind := arrayElementType(name)
	for kind == KindRef && isArrayType(elem) {
		elem, kind = arrayElementType(elem)
	}
	if kind == KindRef {
		if _, err := l.resolve(elem); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Definition
// ---------------------------------------------------------------------------

func (l *Loader) define(cf *ClassFile) (*Class, error) {
	name, err := cf.Name()
	if err != nil {
		return nil, &LoadError{Kind: LoadMalformed, Detail: "class name", Err: err}
	}
	if l.classes.Has(name) || l.pending[name] != nil {
		return nil, malformed(name, "class already defined")
	}
	c, err := l.newClass(name, cf)
	if err != nil {
		return nil, err
	}
	l.pending[name] = c
	l.order = append(l.order, c)

	if err := l.link(c); err != nil {
		return nil, err
	}
	if err := l.verify(c); err != nil {
		return nil, err
	}
	loaderLog.Infof("loaded %s (%d fields, %d methods)", c.Name, len(c.Fields), len(c.Methods))
	return c, nil
}

// newClass builds the unlinked class from its file form and checks member
// level structure.
func (l *Loader) newClass(name string, cf *ClassFile) (*Class, error) {
	var errs *multierror.Error
	c := &Class{
		Name:        name,
		Flags:       cf.Flags,
		Pool:        cf.Pool,
		InterfaceID: -1,
		loader:      l,
	}
	super, err := cf.SuperName()
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("superclass: %w", err))
	}
	c.SuperName = super
	for _, idx := range cf.Interfaces {
		iname, err := cf.Pool.ClassName(int(idx))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interface: %w", err))
			continue
		}
		c.InterfaceNames = append(c.InterfaceNames, iname)
	}
	if c.IsInterface() && !c.Flags.Has(AccAbstract) {
		errs = multierror.Append(errs, errors.New("interface not marked abstract"))
	}

	seenFields := make(map[string]bool)
	for i, info := range cf.Fields {
		fname, err1 := cf.Pool.Utf8(int(info.NameIndex))
		desc, err2 := cf.Pool.Utf8(int(info.DescriptorIndex))
		if err := errors.Join(err1, err2); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %d: %w", i, err))
			continue
		}
		kind, typeName, err := ParseFieldDescriptor(desc)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %s: %w", fname, err))
			continue
		}
		if seenFields[fname] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate field %s", fname))
			continue
		}
		seenFields[fname] = true
		f := &Field{Owner: c, Name: fname, Descriptor: desc, Flags: info.Flags, Kind: kind, TypeName: typeName}
		if c.IsInterface() && !f.IsStatic() {
			errs = multierror.Append(errs, fmt.Errorf("interface field %s is not static", fname))
		}
		c.Fields = append(c.Fields, f)
	}

	seenMethods := make(map[string]bool)
	for i, info := range cf.Methods {
		mname, err1 := cf.Pool.Utf8(int(info.NameIndex))
		desc, err2 := cf.Pool.Utf8(int(info.DescriptorIndex))
		if err := errors.Join(err1, err2); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("method %d: %w", i, err))
			continue
		}
		typ, err := ParseMethodDescriptor(desc)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("method %s: %w", mname, err))
			continue
		}
		m := &Method{
			Owner:      c,
			Name:       mname,
			Descriptor: desc,
			Flags:      info.Flags,
			Type:       typ,
			MaxStack:   int(info.MaxStack),
			MaxLocals:  int(info.MaxLocals),
			Code:       info.Code,
			Slot:       -1,
			IfaceSlot:  -1,
		}
		if seenMethods[m.Key()] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate method %s", m.Key()))
			continue
		}
		seenMethods[m.Key()] = true
		if err := checkMethodShape(c, m); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("method %s: %w", m.Key(), err))
			continue
		}
		if mname == InitializerName {
			c.clinit = m
		}
		c.Methods = append(c.Methods, m)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, &LoadError{Kind: LoadMalformed, Class: name, Err: err}
	}
	return c, nil
}

// checkMethodShape enforces the exactly-one-body rule and the constraints on
// special methods.
func checkMethodShape(c *Class, m *Method) error {
	native, abstract := m.Flags.Has(AccNative), m.Flags.Has(AccAbstract)
	hasCode := len(m.Code) > 0
	switch {
	case native && abstract:
		return errors.New("both native and abstract")
	case (native || abstract) && hasCode:
		return fmt.Errorf("%s method has code", m.Body())
	case !native && !abstract && !hasCode:
		return errors.New("no body")
	case abstract && !c.IsAbstract():
		return errors.New("abstract method in concrete class")
	case abstract && (m.IsStatic() || m.Flags.Has(AccPrivate)):
		return errors.New("abstract method is static or private")
	}
	switch m.Name {
	case InitializerName:
		if !m.IsStatic() || m.Descriptor != "()V" {
			return errors.New("static initializer must be static ()V")
		}
	case ConstructorName:
		if m.IsStatic() || m.Type.Return != KindVoid {
			return errors.New("constructor must be an instance method returning void")
		}
		if c.IsInterface() {
			return errors.New("interface declares a constructor")
		}
	}
	if hasCode && m.MaxLocals < m.ArgSlots() {
		return fmt.Errorf("max locals %d smaller than %d argument slots", m.MaxLocals, m.ArgSlots())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

func (l *Loader) link(c *Class) error {
	c.state = classLinking
	if err := l.linkHierarchy(c); err != nil {
		return err
	}
	c.state = classLinked

	layoutFields(c)
	if c.IsInterface() {
		l.linkInterface(c)
		return nil
	}
	return linkMethods(c)
}

func (l *Loader) linkHierarchy(c *Class) error {
	if c.Name == ObjectClassName {
		if c.SuperName != "" || len(c.InterfaceNames) > 0 {
			return malformed(c.Name, "root class cannot have supertypes")
		}
		return nil
	}
	if c.SuperName == "" {
		return malformed(c.Name, "missing superclass")
	}
	super, err := l.resolve(c.SuperName)
	if err != nil {
		return wrapLink(c.Name, "superclass "+c.SuperName, err)
	}
	switch {
	case super.IsInterface():
		return malformed(c.Name, "superclass %s is an interface", super.Name)
	case super.Flags.Has(AccFinal):
		return malformed(c.Name, "superclass %s is final", super.Name)
	case c.IsInterface() && super.Name != ObjectClassName:
		return malformed(c.Name, "interface superclass must be %s", ObjectClassName)
	}
	c.Superclass = super

	seen := make(map[*Class]bool)
	if !c.IsInterface() {
		for _, i := range super.allInterfaces {
			seen[i] = true
			c.allInterfaces = append(c.allInterfaces, i)
		}
	}
	for _, iname := range c.InterfaceNames {
		iface, err := l.resolve(iname)
		if err != nil {
			return wrapLink(c.Name, "interface "+iname, err)
		}
		if !iface.IsInterface() {
			return malformed(c.Name, "%s is not an interface", iname)
		}
		c.Interfaces = append(c.Interfaces, iface)
		for _, i := range append([]*Class{iface}, iface.allInterfaces...) {
			if !seen[i] {
				seen[i] = true
				c.allInterfaces = append(c.allInterfaces, i)
			}
		}
	}
	return nil
}

// wrapLink attributes a failure to load a supertype to the class being
// linked, keeping the kind of the underlying failure.
func wrapLink(class, what string, err error) error {
	kind := LoadMalformed
	var le *LoadError
	if errors.As(err, &le) {
		kind = le.Kind
	}
	return &LoadError{Kind: kind, Class: class, Detail: what, Err: err}
}

// layoutFields assigns instance slots after the inherited ones and static
// storage indices in declaration order.
func layoutFields(c *Class) {
	if c.Superclass != nil {
		c.InstanceFields = append(c.InstanceFields, c.Superclass.InstanceFields...)
		c.NumSlots = c.Superclass.NumSlots
	}
	for _, f := range c.Fields {
		if f.IsStatic() {
			f.Offset = len(c.StaticFields)
			c.StaticFields = append(c.StaticFields, f)
			continue
		}
		f.Offset = c.NumSlots
		c.NumSlots++
		c.InstanceFields = append(c.InstanceFields, f)
	}
}

func (l *Loader) linkInterface(c *Class) {
	c.InterfaceID = l.nextInterfaceID
	l.nextInterfaceID++
	c.VTable = c.Superclass.VTable
	for _, m := range c.Methods {
		if m.IsStatic() || m.Flags.Has(AccPrivate) {
			continue
		}
		m.IfaceSlot = len(c.ifaceMethods)
		c.ifaceMethods = append(c.ifaceMethods, m)
	}
}

// linkMethods builds the vtable and itable of a class.
func linkMethods(c *Class) error {
	var parent *VTable
	if c.Superclass != nil {
		parent = c.Superclass.VTable
	}
	vt := NewVTable(c, parent)
	for _, m := range c.Methods {
		if !m.IsVirtual() {
			continue
		}
		if slot := vt.Find(m.Name, m.Descriptor); slot >= 0 {
			if prev := vt.Lookup(slot); prev.Flags.Has(AccFinal) {
				return malformed(c.Name, "%s overrides final %s", m.Key(), prev)
			}
		}
		m.Slot = vt.Install(m)
	}

	var errs *multierror.Error
	concrete := !c.IsAbstract()
	for slot, m := range vt.methods {
		if !m.IsAbstract() {
			continue
		}
		if def := c.findDefault(m.Name, m.Descriptor); def != nil {
			vt.methods[slot] = def
		} else if concrete {
			errs = multierror.Append(errs, unresolved(c.Name, "no implementation of %s", m))
		}
	}
	c.VTable = vt

	it := newITable()
	for _, iface := range c.allInterfaces {
		row := make([]*Method, len(iface.ifaceMethods))
		for i, im := range iface.ifaceMethods {
			impl := vt.Lookup(vt.Find(im.Name, im.Descriptor))
			if impl == nil || impl.IsAbstract() {
				if def := c.findDefault(im.Name, im.Descriptor); def != nil {
					impl = def
				}
			}
			if impl == nil {
				impl = im
			}
			if impl.IsAbstract() && concrete {
				errs = multierror.Append(errs, unresolved(c.Name, "no implementation of %s", im))
			}
			row[i] = impl
		}
		it.rows[iface.InterfaceID] = row
	}
	c.ITable = it

	if err := errs.ErrorOrNil(); err != nil {
		return &LoadError{Kind: LoadUnresolvedSymbol, Class: c.Name, Detail: "linking", Err: err}
	}
	return nil
}

// findDefault returns a non-abstract interface method inherited by c.
func (c *Class) findDefault(name, desc string) *Method {
	for _, iface := range c.allInterfaces {
		if m := iface.DeclaredMethod(name, desc); m != nil && !m.IsAbstract() && !m.IsStatic() {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// verify checks every method body in isolation and then every symbolic
// reference the bodies make. All problems are reported together.
func (l *Loader) verify(c *Class) error {
	var errs *multierror.Error
	kind := LoadMalformed
	for _, m := range c.Methods {
		if m.Body() != BodyBytecode {
			continue
		}
		shape, err := analyzeCode(m.Code, c.Pool, m.Type, m.IsStatic(), m.MaxLocals)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", m.Key(), err))
			continue
		}
		if shape.maxStack > m.MaxStack {
			errs = multierror.Append(errs, fmt.Errorf("%s: operand stack reaches %d, max stack is %d",
				m.Key(), shape.maxStack, m.MaxStack))
		}
		m.code = newDecodedCode(m.Code, shape.insns)
		for _, ins := range shape.insns {
			if err := l.checkSymbol(c, ins); err != nil {
				var le *LoadError
				if errors.As(err, &le) && le.Kind == LoadUnresolvedSymbol {
					kind = LoadUnresolvedSymbol
				}
				errs = multierror.Append(errs, fmt.Errorf("%s pc %d: %w", m.Key(), ins.PC, err))
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return &LoadError{Kind: kind, Class: c.Name, Detail: "verification failed", Err: err}
	}
	return nil
}

// checkSymbol resolves the class, field, or method an instruction refers to
// without caching the result.
func (l *Loader) checkSymbol(c *Class, ins Instruction) error {
	switch ins.Op {
	case OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpMultianewarray:
		name, err := c.Pool.ClassName(ins.Index)
		if err != nil {
			return malformed(c.Name, "%s: %v", ins.Op, err)
		}
		target, err := l.resolveType(name)
		if err != nil {
			return err
		}
		if ins.Op == OpNew {
			if target == nil {
				return malformed(c.Name, "new of array type %s", name)
			}
			if target.IsAbstract() {
				return malformed(c.Name, "new of abstract %s", name)
			}
		}

	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		ref, err := c.Pool.MemberRef(ins.Index, TagFieldRef)
		if err != nil {
			return malformed(c.Name, "%s: %v", ins.Op, err)
		}
		owner, err := l.resolve(ref.Class)
		if err != nil {
			return err
		}
		f := owner.FindField(ref.Name, ref.Descriptor)
		if f == nil {
			return unresolved(c.Name, "field %s", ref)
		}
		wantStatic := ins.Op == OpGetstatic || ins.Op == OpPutstatic
		if f.IsStatic() != wantStatic {
			return malformed(c.Name, "%s on %s", ins.Op, f)
		}

	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
		ref, err := c.Pool.MemberRef(ins.Index)
		if err != nil {
			return malformed(c.Name, "%s: %v", ins.Op, err)
		}
		if isArrayType(ref.Class) {
			return unresolved(c.Name, "method %s on array type", ref)
		}
		owner, err := l.resolve(ref.Class)
		if err != nil {
			return err
		}
		switch {
		case ins.Op == OpInvokeinterface && !owner.IsInterface():
			return malformed(c.Name, "invokeinterface on class %s", owner.Name)
		case ins.Op == OpInvokevirtual && owner.IsInterface():
			return malformed(c.Name, "invokevirtual on interface %s", owner.Name)
		}
		m := owner.FindMethod(ref.Name, ref.Descriptor)
		if m == nil {
			return unresolved(c.Name, "method %s", ref)
		}
		if m.IsStatic() != (ins.Op == OpInvokestatic) {
			return malformed(c.Name, "%s on %s", ins.Op, m)
		}
	}
	return nil
}
