package fixtures

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/classvm/vm"
)

// ---------------------------------------------------------------------------
// Corpus
// ---------------------------------------------------------------------------

func TestEncodedCorpusBuilds(t *testing.T) {
	classes, err := Encoded()
	require.NoError(t, err)

	names, err := Names()
	require.NoError(t, err)
	assert.Len(t, names, len(classes))
	assert.Contains(t, names, "tests/ackermann/Ackermann")
	assert.Contains(t, names, "core/Assert")

	for name, data := range classes {
		cf, err := vm.ReadClassFile(data)
		require.NoError(t, err, name)
		got, err := cf.Name()
		require.NoError(t, err)
		assert.Equal(t, name, got)
	}
}

func TestCorpusLoads(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	names, err := Names()
	require.NoError(t, err)
	for _, name := range names {
		_, err := loader.Resolve(name)
		assert.NoError(t, err, name)
	}
}

func TestCheckNamesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range Checks() {
		assert.False(t, seen[c.String()], "duplicate check %s", c)
		seen[c.String()] = true
	}
}

func TestIntegerDivisionByZeroIsChecked(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range Checks() {
		names[c.Name] = true
	}
	for _, name := range []string{"div_I_zero", "rem_I_zero", "div_J_zero", "rem_J_zero"} {
		assert.True(t, names[name], name)
	}
}

// ---------------------------------------------------------------------------
// Running checks
// ---------------------------------------------------------------------------

func TestChecks(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	for _, c := range Checks() {
		t.Run(c.String(), func(t *testing.T) {
			if testing.Short() && strings.HasPrefix(c.Name, "ack(3,10)") {
				t.Skip("deep recursion")
			}
			r := RunCheck(context.Background(), loader, vm.DefaultConfig(), c)
			assert.NoError(t, r.Err)
		})
	}
}

func TestRunParallel(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	var checks []Check
	for _, c := range Checks() {
		if c.Fixture == "object" || c.Fixture == "switch" {
			checks = append(checks, c)
		}
	}
	results, err := Run(context.Background(), loader, vm.DefaultConfig(), checks, 4)
	require.NoError(t, err)
	require.Len(t, results, len(checks))

	ids := make(map[string]bool)
	for i, r := range results {
		assert.Equal(t, checks[i].String(), r.Check.String())
		assert.True(t, r.Passed(), "%s: %v", r.Check, r.Err)
		ids[r.VM.String()] = true
	}
	assert.Len(t, ids, len(checks), "each check runs in its own VM")
}

func TestBytecodeAssertionsAreCounted(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	r := RunCheck(context.Background(), loader, vm.DefaultConfig(),
		Check{Fixture: "constants", Name: "test", Run: run(constantsClass, "test")})
	require.NoError(t, r.Err)
	assert.Equal(t, len(constants), r.Asserts)
}

func TestFailedAssertionFailsCheck(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	failing := Check{
		Fixture: "assert",
		Name:    "mismatch",
		Run: func(ctx context.Context, m *vm.VM) error {
			_, err := m.Invoke(ctx, assertClass, "eq", "(II)V", vm.Int(1), vm.Int(2))
			return err
		},
	}
	r := RunCheck(context.Background(), loader, vm.DefaultConfig(), failing)
	require.Error(t, r.Err)
	assert.Contains(t, r.Err.Error(), "1 != 2")
}

func TestGCReclaimsShortLivedObjects(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	config := vm.Config{HeapBudget: 16 << 10, MaxFrames: 1024}
	m := vm.NewVM(loader, config)
	got, err := m.Invoke(context.Background(), objectTestClass, "gcTest", "(I)I", vm.Int(5000))
	require.NoError(t, err)
	assert.Equal(t, vm.Int(1), got)

	stats := m.Heap().Stats()
	assert.Greater(t, stats.Cycles, 0)
	assert.GreaterOrEqual(t, stats.TotalFreed, int64(4000))
	assert.LessOrEqual(t, m.Heap().Used(), config.HeapBudget)
}

// heldClass builds a class whose run(n) keeps one object in a local,
// allocates n garbage objects, then calls the native gc()V before reading
// the kept object's field.
func heldClass(name string) *vm.ClassBuilder {
	b := vm.NewClassBuilder(name, "")
	b.Field("value", "I", vm.AccPublic)
	b.DefaultConstructor()
	b.NativeMethod("gc", "()V", vm.AccPublic|vm.AccStatic)

	m := b.Method("run", "(I)I", vm.AccPublic|vm.AccStatic)
	loop, done := m.NewLabel(), m.NewLabel()
	m.New(name)
	m.Emit(vm.OpDup)
	m.Invokespecial(name, vm.ConstructorName, "()V")
	m.Store(vm.KindRef, 1)
	m.Load(vm.KindRef, 1)
	m.Iconst(7)
	m.Putfield(name, "value", "I")
	m.Mark(loop)
	m.Load(vm.KindInt, 0)
	m.EmitJump(vm.OpIfle, done)
	m.New(name)
	m.Emit(vm.OpDup)
	m.Invokespecial(name, vm.ConstructorName, "()V")
	m.Emit(vm.OpPop)
	m.EmitIinc(0, -1)
	m.EmitJump(vm.OpGoto, loop)
	m.Mark(done)
	m.Invokestatic(name, "gc", "()V")
	m.Load(vm.KindRef, 1)
	m.Getfield(name, "value", "I")
	m.Return(vm.KindInt)
	return b
}

func TestForcedCollectionKeepsOnlyHeldObject(t *testing.T) {
	const name = "tests/gc/Held"
	const garbage = 1000
	data, err := heldClass(name).Bytes()
	require.NoError(t, err)

	var stats vm.GCStats
	live := -1
	natives := vm.NewMapProvider().Register(vm.NativeKey{Class: name, Name: "gc", Descriptor: "()V"},
		func(env *vm.NativeEnv, _ []vm.Value) (vm.Value, error) {
			stats = env.VM().CollectGarbage()
			live = env.Heap().Live()
			return vm.Value{}, nil
		})

	m := vm.NewVM(vm.NewLoader(vm.MapSource{name: data}), vm.DefaultConfig(), natives)
	got, err := m.Invoke(context.Background(), name, "run", "(I)I", vm.Int(garbage))
	require.NoError(t, err)

	assert.Equal(t, vm.Int(7), got, "the held object keeps its field")
	assert.Equal(t, garbage, stats.Freed)
	assert.Equal(t, 1, stats.Marked)
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, stats.Live)
}

func TestHeapExhaustedWhenEverythingIsLive(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	m := vm.NewVM(loader, vm.Config{HeapBudget: 4 << 10, MaxFrames: 1024})
	_, err = m.Invoke(context.Background(), objectTestClass, "chain", "(I)I", vm.Int(10000))
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrHeapExhausted)
}

func TestAckermannClosedForm(t *testing.T) {
	for _, tc := range []struct {
		n    int32
		want int32
	}{
		{0, 5},
		{1, 13},
		{2, 29},
		{10, 8189},
	} {
		assert.Equal(t, tc.want, AckermannThree(tc.n))
	}
}
