package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFunc implements a native method. args holds the receiver (instance
// methods) followed by the declared parameters. The returned value is
// ignored for void methods.
type NativeFunc func(env *NativeEnv, args []Value) (Value, error)

// NativeKey identifies a native method.
type NativeKey struct {
	Class      string
	Name       string
	Descriptor string
}

// KeyOf returns the native key of m.
func KeyOf(m *Method) NativeKey {
	return NativeKey{Class: m.Owner.Name, Name: m.Name, Descriptor: m.Descriptor}
}

// String implements the Stringer interface.
func (k NativeKey) String() string {
	return k.Class + "." + k.Name + k.Descriptor
}

// Symbol returns the JNI style short symbol, Java_<class>_<name>, with the
// class's package separators turned into underscores.
func (k NativeKey) Symbol() string {
	return "Java_" + mangle(k.Class) + "_" + mangle(k.Name)
}

func mangle(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '/':
			sb.WriteByte('_')
		case r == '_':
			sb.WriteString("_1")
		case r == ';':
			sb.WriteString("_2")
		case r == '[':
			sb.WriteString("_3")
		case r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
			sb.WriteRune(r)
		default:
			fmt.Fprintf(&sb, "_0%04x", r)
		}
	}
	return sb.String()
}

// NativeProvider supplies native implementations. A provider that does not
// know the method returns (nil, nil); one that knows it but cannot serve
// this descriptor or static-ness returns an error.
type NativeProvider interface {
	LookupNative(key NativeKey, static bool) (NativeFunc, error)
}

// ---------------------------------------------------------------------------
// MapProvider
// ---------------------------------------------------------------------------

// MapProvider registers natives by key or by mangled symbol.
type MapProvider struct {
	mu      sync.RWMutex
	byKey   map[NativeKey]NativeFunc
	bySym   map[string]*Binding
	symFunc map[string]NativeFunc
}

// NewMapProvider returns an empty provider.
func NewMapProvider() *MapProvider {
	return &MapProvider{
		byKey:   make(map[NativeKey]NativeFunc),
		bySym:   make(map[string]*Binding),
		symFunc: make(map[string]NativeFunc),
	}
}

// Register adds fn under key.
func (p *MapProvider) Register(key NativeKey, fn NativeFunc) *MapProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byKey[key] = fn
	return p
}

// RegisterSymbol adds fn under a mangled symbol such as
// "Java_tests_RNI_add". It serves every descriptor of that name.
func (p *MapProvider) RegisterSymbol(symbol string, fn NativeFunc) *MapProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symFunc[symbol] = fn
	return p
}

// Bind marshals a plain Go function (see Bind) and registers it under key.
// The function's signature is checked against the key's descriptor now.
func (p *MapProvider) Bind(key NativeKey, fn any, static bool) error {
	b, err := Bind(fn)
	if err != nil {
		return fmt.Errorf("bind %s: %w", key, err)
	}
	typ, err := ParseMethodDescriptor(key.Descriptor)
	if err != nil {
		return fmt.Errorf("bind %s: %w", key, err)
	}
	if err := b.Check(typ, static); err != nil {
		return fmt.Errorf("bind %s: %w", key, err)
	}
	p.Register(key, b.Native())
	return nil
}

// BindSymbol marshals a Go function and registers it under a mangled
// symbol. The signature is checked when a method links against it.
func (p *MapProvider) BindSymbol(symbol string, fn any) error {
	b, err := Bind(fn)
	if err != nil {
		return fmt.Errorf("bind %s: %w", symbol, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bySym[symbol] = b
	return nil
}

// LookupNative implements NativeProvider.
func (p *MapProvider) LookupNative(key NativeKey, static bool) (NativeFunc, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if fn, ok := p.byKey[key]; ok {
		return fn, nil
	}
	sym := key.Symbol()
	if fn, ok := p.symFunc[sym]; ok {
		return fn, nil
	}
	if b, ok := p.bySym[sym]; ok {
		typ, err := ParseMethodDescriptor(key.Descriptor)
		if err != nil {
			return nil, err
		}
		if err := b.Check(typ, static); err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		return b.Native(), nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Linker
// ---------------------------------------------------------------------------

// Linker resolves native methods lazily, on first invocation, and caches the
// result per method.
type Linker struct {
	mu        sync.RWMutex
	providers []NativeProvider
	cache     map[*Method]NativeFunc
}

// NewLinker creates a linker searching providers in order.
func NewLinker(providers ...NativeProvider) *Linker {
	return &Linker{providers: providers, cache: make(map[*Method]NativeFunc)}
}

// AddProvider appends a provider.
func (k *Linker) AddProvider(p NativeProvider) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.providers = append(k.providers, p)
}

// Link returns the implementation of a native method.
func (k *Linker) Link(m *Method) (NativeFunc, error) {
	k.mu.RLock()
	fn, ok := k.cache[m]
	k.mu.RUnlock()
	if ok {
		return fn, nil
	}

	key := KeyOf(m)
	k.mu.Lock()
	defer k.mu.Unlock()
	if fn, ok := k.cache[m]; ok {
		return fn, nil
	}
	for _, p := range k.providers {
		fn, err := p.LookupNative(key, m.IsStatic())
		if err != nil {
			return nil, &Fault{Kind: FaultUnresolvedNative, Message: key.String(), Err: err}
		}
		if fn != nil {
			k.cache[m] = fn
			nativeLog.Debugf("linked native %s", key)
			return fn, nil
		}
	}
	nativeLog.Warningf("no native implementation of %s (%s)", key, key.Symbol())
	return nil, newFault(FaultUnresolvedNative, "no implementation of %s", key)
}

// ---------------------------------------------------------------------------
// NativeEnv
// ---------------------------------------------------------------------------

// NativeEnv is what a native function sees of the VM calling it.
type NativeEnv struct {
	vm     *VM
	ctx    context.Context
	method *Method
}

// VM returns the calling VM.
func (e *NativeEnv) VM() *VM { return e.vm }

// Heap returns the calling VM's heap.
func (e *NativeEnv) Heap() *Heap { return e.vm.heap }

// Context returns the context of the running invocation.
func (e *NativeEnv) Context() context.Context { return e.ctx }

// Method returns the native method being executed.
func (e *NativeEnv) Method() *Method { return e.method }

// NewObject allocates an instance of the named class without running a
// constructor.
func (e *NativeEnv) NewObject(class string) (Ref, error) {
	c, err := e.vm.loader.Resolve(class)
	if err != nil {
		return Null, err
	}
	return e.vm.heap.AllocObject(c)
}

// NewArray allocates an array of the given array type.
func (e *NativeEnv) NewArray(arrayType string, length int32) (Ref, error) {
	return e.vm.heap.AllocArray(arrayType, length)
}

// Object returns the object r refers to.
func (e *NativeEnv) Object(r Ref) (*Object, error) { return e.vm.heap.Object(r) }

// Array returns the array r refers to.
func (e *NativeEnv) Array(r Ref) (*Array, error) { return e.vm.heap.Array(r) }
