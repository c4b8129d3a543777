// Package natives provides host-side native method providers used by the
// conformance corpus and by embedders.
package natives

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/chazu/classvm/vm"
)

var log = commonlog.GetLogger("classvm.native")

// AssertClasses are the classes whose assertion natives AssertProvider
// serves.
var AssertClasses = []string{"core/Assert", "tests/Assert"}

// Failure is one failed assertion.
type Failure struct {
	Class   string
	Method  string
	Message string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s.%s: %s", f.Class, f.Method, f.Message)
}

// AssertProvider implements the static assertion natives yes(Z)V and
// eq(II)V, eq(JJ)V, eq(FF)V, eq(DD)V. Failed assertions are recorded rather
// than aborting the invocation, unless Strict is set.
type AssertProvider struct {
	// Strict makes a failed assertion abort the invocation with a
	// NativeError fault in addition to being recorded.
	Strict bool

	mu       sync.Mutex
	calls    int
	failures []Failure
	natives  *vm.MapProvider
}

// NewAssertProvider creates a provider serving AssertClasses.
func NewAssertProvider() *AssertProvider {
	p := &AssertProvider{natives: vm.NewMapProvider()}
	for _, class := range AssertClasses {
		p.bind(class)
	}
	return p
}

func (p *AssertProvider) bind(class string) {
	bindings := []struct {
		desc string
		fn   any
	}{
		{"(Z)V", func(env *vm.NativeEnv, ok bool) error {
			return p.check(env, ok, "expected true")
		}},
		{"(II)V", func(env *vm.NativeEnv, a, b int32) error {
			return p.check(env, a == b, fmt.Sprintf("%d != %d", a, b))
		}},
		{"(JJ)V", func(env *vm.NativeEnv, a, b int64) error {
			return p.check(env, a == b, fmt.Sprintf("%d != %d", a, b))
		}},
		{"(FF)V", func(env *vm.NativeEnv, a, b float32) error {
			return p.check(env, a == b, fmt.Sprintf("%g != %g", a, b))
		}},
		{"(DD)V", func(env *vm.NativeEnv, a, b float64) error {
			return p.check(env, a == b, fmt.Sprintf("%g != %g", a, b))
		}},
	}
	for _, b := range bindings {
		name := "eq"
		if b.desc == "(Z)V" {
			name = "yes"
		}
		key := vm.NativeKey{Class: class, Name: name, Descriptor: b.desc}
		if err := p.natives.Bind(key, b.fn, true); err != nil {
			// the signatures above are fixed; a mismatch is a programming error
			panic(err)
		}
	}
}

func (p *AssertProvider) check(env *vm.NativeEnv, ok bool, message string) error {
	m := env.Method()
	p.mu.Lock()
	p.calls++
	if ok {
		p.mu.Unlock()
		return nil
	}
	f := Failure{Class: m.Owner.Name, Method: m.Name + m.Descriptor, Message: message}
	p.failures = append(p.failures, f)
	p.mu.Unlock()

	log.Warningf("assertion failed: %s", f)
	if p.Strict {
		return f
	}
	return nil
}

// LookupNative implements vm.NativeProvider.
func (p *AssertProvider) LookupNative(key vm.NativeKey, static bool) (vm.NativeFunc, error) {
	return p.natives.LookupNative(key, static)
}

// Calls returns the number of assertions evaluated.
func (p *AssertProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Failures returns a copy of the recorded failures.
func (p *AssertProvider) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Failure(nil), p.failures...)
}

// Err returns the recorded failures as one error, or nil.
func (p *AssertProvider) Err() error {
	var result *multierror.Error
	for _, f := range p.Failures() {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}

// Reset clears the recorded state.
func (p *AssertProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
	p.failures = nil
}
