package vm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// VM: one isolated execution instance
// ---------------------------------------------------------------------------

// Config sizes a VM.
type Config struct {
	// HeapBudget is the heap size in bytes; <= 0 means unlimited.
	HeapBudget int64
	// MaxFrames bounds the frame stack depth.
	MaxFrames int
	// GCThreshold, in (0, 1), collects early once that fraction of the
	// headroom left by the previous collection is used. 0 collects only when
	// the budget is reached.
	GCThreshold float64
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		HeapBudget: 64 << 20,
		MaxFrames:  1 << 16,
	}
}

// VM owns a heap, static storage, a native linker and an interpreter. Classes
// come from a Loader that may be shared with other VMs. A VM runs one
// invocation at a time and is not safe for concurrent use.
type VM struct {
	ID uuid.UUID

	config  Config
	loader  *Loader
	heap    *Heap
	linker  *Linker
	interp  *Interpreter
	statics *staticStore

	objectClass *Class
	tag         string
}

// NewVM creates a VM over loader.
func NewVM(loader *Loader, config Config, natives ...NativeProvider) *VM {
	if config.MaxFrames <= 0 {
		config.MaxFrames = DefaultConfig().MaxFrames
	}
	vm := &VM{
		ID:          uuid.New(),
		config:      config,
		loader:      loader,
		heap:        NewHeap(config.HeapBudget),
		linker:      NewLinker(natives...),
		statics:     newStaticStore(),
		objectClass: loader.Lookup(ObjectClassName),
	}
	vm.tag = "[" + vm.ID.String()[:8] + "] "
	vm.heap.tag = vm.tag
	vm.heap.SetThreshold(config.GCThreshold)
	vm.interp = newInterpreter(vm, config.MaxFrames)
	vm.heap.AddRoots(vm.interp)
	vm.heap.AddRoots(vm.statics)
	interpLog.Infof("%svm created: heap budget %d, max frames %d", vm.tag, config.HeapBudget, config.MaxFrames)
	return vm
}

// Loader returns the VM's class loader.
func (vm *VM) Loader() *Loader { return vm.loader }

// Heap returns the VM's heap.
func (vm *VM) Heap() *Heap { return vm.heap }

// Linker returns the VM's native linker.
func (vm *VM) Linker() *Linker { return vm.linker }

// Config returns the configuration the VM was created with.
func (vm *VM) Config() Config { return vm.config }

// AddNatives registers another native provider.
func (vm *VM) AddNatives(p NativeProvider) {
	vm.linker.AddProvider(p)
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// Invoke calls class.name with the given descriptor. Instance methods take the
// receiver as the first argument and are dispatched on its runtime class.
func (vm *VM) Invoke(ctx context.Context, class, name, desc string, args ...Value) (Value, error) {
	c, err := vm.loader.Resolve(class)
	if err != nil {
		return Value{}, err
	}
	m := c.FindMethod(name, desc)
	if m == nil {
		return Value{}, unresolved(class, "method %s%s", name, desc)
	}
	return vm.InvokeMethod(ctx, m, args...)
}

// InvokeMethod calls m. Argument kinds are checked against the descriptor.
func (vm *VM) InvokeMethod(ctx context.Context, m *Method, args ...Value) (Value, error) {
	want := m.Type.Params
	if !m.IsStatic() {
		want = append([]Kind{KindRef}, want...)
	}
	if len(args) != len(want) {
		return Value{}, fmt.Errorf("%s: %d arguments, want %d", m, len(args), len(want))
	}
	for j, k := range want {
		if args[j].Kind.StackKind() != k.StackKind() {
			return Value{}, fmt.Errorf("%s: argument %d is %s, want %s", m, j, args[j].Kind, k)
		}
		args[j] = narrow(k, args[j])
	}
	if m.IsVirtual() {
		recv, err := vm.heap.Get(args[0].AsRef())
		if err != nil {
			return Value{}, err
		}
		class := vm.objectClass
		if obj, ok := recv.(*Object); ok {
			class = obj.Class
		}
		if m, err = selectVirtual(class, m); err != nil {
			return Value{}, err
		}
	}
	return vm.interp.Invoke(ctx, m, args)
}

// ---------------------------------------------------------------------------
// Host access to objects
// ---------------------------------------------------------------------------

// NewObject allocates an instance of class and runs the constructor with
// descriptor ctorDesc on it. The returned reference is not rooted: Pin it to
// hold it across further allocations.
func (vm *VM) NewObject(ctx context.Context, class, ctorDesc string, args ...Value) (Ref, error) {
	c, err := vm.loader.Resolve(class)
	if err != nil {
		return Null, err
	}
	ctor := c.DeclaredMethod(ConstructorName, ctorDesc)
	if ctor == nil {
		return Null, unresolved(class, "constructor %s", ctorDesc)
	}
	ref, err := vm.heap.AllocObject(c)
	if err != nil {
		return Null, err
	}
	release := vm.heap.Protect(ref)
	defer release()
	if _, err := vm.InvokeMethod(ctx, ctor, append([]Value{Reference(ref)}, args...)...); err != nil {
		return Null, err
	}
	return ref, nil
}

// NewArray allocates an array of the given array type.
func (vm *VM) NewArray(arrayType string, length int32) (Ref, error) {
	return vm.heap.AllocArray(arrayType, length)
}

// GetField reads an instance field by name.
func (vm *VM) GetField(ref Ref, name string) (Value, error) {
	obj, err := vm.heap.Object(ref)
	if err != nil {
		return Value{}, err
	}
	v, ok := obj.Field(name)
	if !ok {
		return Value{}, fmt.Errorf("%s has no field %s", obj.Class.Name, name)
	}
	return v, nil
}

// SetField writes an instance field by name.
func (vm *VM) SetField(ref Ref, name string, v Value) error {
	obj, err := vm.heap.Object(ref)
	if err != nil {
		return err
	}
	if !obj.SetField(name, v) {
		return fmt.Errorf("%s has no field %s", obj.Class.Name, name)
	}
	return nil
}

// Static reads a static field of class without triggering initialisation.
func (vm *VM) Static(class, name string) (Value, error) {
	f, err := vm.staticField(class, name)
	if err != nil {
		return Value{}, err
	}
	return vm.statics.values(f.Owner)[f.Offset], nil
}

// SetStatic writes a static field of class without triggering
// initialisation.
func (vm *VM) SetStatic(class, name string, v Value) error {
	f, err := vm.staticField(class, name)
	if err != nil {
		return err
	}
	vm.statics.values(f.Owner)[f.Offset] = narrow(f.Kind, v)
	return nil
}

func (vm *VM) staticField(class, name string) (*Field, error) {
	c, err := vm.loader.Resolve(class)
	if err != nil {
		return nil, err
	}
	f := c.FieldByName(name)
	if f == nil || !f.IsStatic() {
		return nil, fmt.Errorf("%s has no static field %s", class, name)
	}
	return f, nil
}

// Initialized reports whether class has been statically initialised in this
// VM.
func (vm *VM) Initialized(class string) bool {
	c := vm.loader.Lookup(class)
	return c != nil && vm.statics.initialized(c)
}

// Pin keeps a host-held reference alive until Unpin.
func (vm *VM) Pin(r Ref) { vm.heap.Pin(r) }

// Unpin releases a Pin.
func (vm *VM) Unpin(r Ref) { vm.heap.Unpin(r) }

// CollectGarbage runs a collection now.
func (vm *VM) CollectGarbage() GCStats {
	return vm.heap.Collect()
}

// ---------------------------------------------------------------------------
// Static storage
// ---------------------------------------------------------------------------

type classStatics struct {
	values      []Value
	initialized bool
}

// staticStore holds the static fields of every class used by one VM.
type staticStore struct {
	classes map[*Class]*classStatics
}

func newStaticStore() *staticStore {
	return &staticStore{classes: make(map[*Class]*classStatics)}
}

func (s *staticStore) of(c *Class) *classStatics {
	cs, ok := s.classes[c]
	if !ok {
		cs = &classStatics{values: make([]Value, len(c.StaticFields))}
		for _, f := range c.StaticFields {
			cs.values[f.Offset] = zeroValue(f.Kind)
		}
		s.classes[c] = cs
	}
	return cs
}

func (s *staticStore) values(c *Class) []Value {
	return s.of(c).values
}

func (s *staticStore) initialized(c *Class) bool {
	cs, ok := s.classes[c]
	return ok && cs.initialized
}

func (s *staticStore) markInitialized(c *Class) {
	s.of(c).initialized = true
}

// VisitRoots implements RootProvider.
func (s *staticStore) VisitRoots(visit func(Ref)) {
	for _, cs := range s.classes {
		for _, v := range cs.values {
			if v.Kind == KindRef && v.Bits != 0 {
				visit(v.AsRef())
			}
		}
	}
}
