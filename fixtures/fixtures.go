// Package fixtures is the built-in conformance corpus: small programs built
// with vm.ClassBuilder, together with the checks that exercise them.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/classvm/vm"
)

// Fixture groups the classes of one conformance program with its checks.
type Fixture struct {
	Name    string
	Classes []func() *vm.ClassBuilder
	Checks  []Check
}

// Check is one named assertion about a fixture, run against a fresh VM.
type Check struct {
	Fixture string
	Name    string
	Run     func(ctx context.Context, m *vm.VM) error
}

// String returns "fixture/name".
func (c Check) String() string {
	return c.Fixture + "/" + c.Name
}

// All returns the corpus in a stable order.
func All() []Fixture {
	return []Fixture{
		assertFixture(),
		constantsFixture(),
		mathFixture(),
		controlFlowFixture(),
		switchFixture(),
		ackermannFixture(),
		objectFixture(),
		arrayFixture(),
		staticsFixture(),
		rniFixture(),
	}
}

// Checks returns every check of the corpus.
func Checks() []Check {
	var checks []Check
	for _, f := range All() {
		for _, c := range f.Checks {
			c.Fixture = f.Name
			checks = append(checks, c)
		}
	}
	return checks
}

var encoded = sync.OnceValues(func() (map[string][]byte, error) {
	classes := make(map[string][]byte)
	var result *multierror.Error
	for _, f := range All() {
		for _, build := range f.Classes {
			b := build()
			data, err := b.Bytes()
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %s: %w", f.Name, b.Name(), err))
				continue
			}
			classes[b.Name()] = data
		}
	}
	return classes, result.ErrorOrNil()
})

// Encoded returns the corpus as encoded class files keyed by class name.
// The map is shared and must not be modified.
func Encoded() (map[string][]byte, error) {
	return encoded()
}

// Source returns the corpus as a class source.
func Source() (vm.MapSource, error) {
	classes, err := Encoded()
	if err != nil {
		return nil, err
	}
	return vm.MapSource(classes), nil
}

// Names returns the sorted class names of the corpus.
func Names() ([]string, error) {
	classes, err := Encoded()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ---------------------------------------------------------------------------
// Check helpers
// ---------------------------------------------------------------------------

// expect invokes class.name and compares the result with want.
func expect(class, name, desc string, want vm.Value, args ...vm.Value) func(context.Context, *vm.VM) error {
	return func(ctx context.Context, m *vm.VM) error {
		got, err := m.Invoke(ctx, class, name, desc, args...)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%s.%s%s%v = %s, want %s", class, name, desc, args, got, want)
		}
		return nil
	}
}

// expectFault invokes class.name and requires it to fail with a fault of
// the given kind.
func expectFault(class, name, desc string, kind vm.FaultKind, args ...vm.Value) func(context.Context, *vm.VM) error {
	return func(ctx context.Context, m *vm.VM) error {
		got, err := m.Invoke(ctx, class, name, desc, args...)
		if err == nil {
			return fmt.Errorf("%s.%s%s = %s, want %s fault", class, name, desc, got, kind)
		}
		var f *vm.Fault
		if !errors.As(err, &f) || f.Kind != kind {
			return fmt.Errorf("%s.%s%s: got %v, want %s fault", class, name, desc, err, kind)
		}
		return nil
	}
}

// run invokes a void method whose body makes its own assertions.
func run(class, name string) func(context.Context, *vm.VM) error {
	return func(ctx context.Context, m *vm.VM) error {
		_, err := m.Invoke(ctx, class, name, "()V")
		return err
	}
}

// push emits the shortest constant load for v.
func push(m *vm.MethodBuilder, v vm.Value) {
	switch v.Kind {
	case vm.KindLong:
		m.Lconst(v.AsLong())
	case vm.KindFloat:
		m.Fconst(v.AsFloat())
	case vm.KindDouble:
		m.Dconst(v.AsDouble())
	default:
		m.Iconst(v.AsInt())
	}
}

// sig returns the descriptor character of k.
func sig(k vm.Kind) string {
	return string(k.Descriptor())
}

// numeric lists the four computational kinds in opcode order, so the
// typed variant of an arithmetic opcode is base + index.
var numeric = []vm.Kind{vm.KindInt, vm.KindLong, vm.KindFloat, vm.KindDouble}

func typed(base vm.Opcode, k vm.Kind) vm.Opcode {
	for i, n := range numeric {
		if n == k {
			return base + vm.Opcode(i)
		}
	}
	return base
}
