package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostClass = "n/Host_Calls"

func hostBuilder() *ClassBuilder {
	b := NewClassBuilder(hostClass, "")
	b.DefaultConstructor()
	b.NativeMethod("add", "(II)I", AccPublic|AccStatic)
	b.NativeMethod("scale", "(J)J", AccPublic|AccStatic)
	b.NativeMethod("callback", "(I)I", AccPublic|AccStatic)
	b.NativeMethod("fails", "()V", AccPublic|AccStatic)
	b.NativeMethod("missing", "()V", AccPublic|AccStatic)
	b.NativeMethod("self", "()Z", AccPublic)

	m := b.Method("addTwice", "(II)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Load(KindInt, 1)
	m.Invokestatic(hostClass, "add", "(II)I")
	m.Load(KindInt, 1)
	m.Invokestatic(hostClass, "add", "(II)I")
	m.Return(KindInt)

	m = b.Method("square", "(I)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Load(KindInt, 0)
	m.Emit(OpImul)
	m.Return(KindInt)
	return b
}

var errHost = errors.New("host failure")

func hostNatives(t *testing.T) *MapProvider {
	t.Helper()
	p := NewMapProvider()
	require.NoError(t, p.Bind(NativeKey{hostClass, "add", "(II)I"}, func(a, b int32) int32 {
		return a + b
	}, true))
	require.NoError(t, p.BindSymbol("Java_n_Host_1Calls_scale", func(v int64) int64 {
		return v * 3
	}))
	p.Register(NativeKey{hostClass, "callback", "(I)I"}, func(env *NativeEnv, args []Value) (Value, error) {
		return env.VM().Invoke(env.Context(), hostClass, "square", "(I)I", args[0])
	})
	require.NoError(t, p.Bind(NativeKey{hostClass, "fails", "()V"}, func() error {
		return errHost
	}, true))
	require.NoError(t, p.Bind(NativeKey{hostClass, "self", "()Z"}, func(env *NativeEnv, this Ref) bool {
		return env.Heap().Valid(this)
	}, false))
	return p
}

func hostVM(t *testing.T) *VM {
	t.Helper()
	return NewVM(NewLoader(sourceOf(t, hostBuilder())), DefaultConfig(), hostNatives(t))
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

func TestNativeKeySymbol(t *testing.T) {
	tests := []struct {
		key  NativeKey
		want string
	}{
		{NativeKey{"tests/RNI", "add", "(II)I"}, "Java_tests_RNI_add"},
		{NativeKey{"a/b/Host_Calls", "do_it", "()V"}, "Java_a_b_Host_1Calls_do_1it"},
		{NativeKey{"x/Café", "f", "()V"}, "Java_x_Caf_000e9_f"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Symbol())
		})
	}
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

func TestBindChecksSignature(t *testing.T) {
	p := NewMapProvider()
	tests := []struct {
		name   string
		desc   string
		fn     any
		static bool
	}{
		{"arity", "(II)I", func(a int32) int32 { return a }, true},
		{"argument kind", "(J)J", func(a float64) int64 { return 0 }, true},
		{"result kind", "()I", func() float32 { return 0 }, true},
		{"void result", "()V", func() int32 { return 0 }, true},
		{"missing receiver", "()I", func() int32 { return 0 }, false},
		{"not a function", "()V", 42, true},
		{"unsupported type", "(I)V", func(s string) {}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Bind(NativeKey{"a/B", "f", tt.desc}, tt.fn, tt.static)
			assert.Error(t, err)
		})
	}
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

func TestNativeCalls(t *testing.T) {
	m := hostVM(t)

	got, err := m.Invoke(bg, hostClass, "addTwice", "(II)I", Int(2), Int(5))
	require.NoError(t, err)
	assert.Equal(t, Int(12), got)

	got, err = m.Invoke(bg, hostClass, "scale", "(J)J", Long(1<<40))
	require.NoError(t, err)
	assert.Equal(t, Long(3<<40), got)

	got, err = m.Invoke(bg, hostClass, "callback", "(I)I", Int(9))
	require.NoError(t, err)
	assert.Equal(t, Int(81), got, "natives may re-enter the VM")

	obj, err := m.NewObject(bg, hostClass, "()V")
	require.NoError(t, err)
	got, err = m.Invoke(bg, hostClass, "self", "()Z", Reference(obj))
	require.NoError(t, err)
	assert.True(t, got.AsBool())
}

func TestNativeErrors(t *testing.T) {
	m := hostVM(t)

	_, err := m.Invoke(bg, hostClass, "fails", "()V")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNativeError)
	assert.ErrorIs(t, err, errHost)
	assert.Equal(t, "fails", faultOf(t, err).Method)

	_, err = m.Invoke(bg, hostClass, "missing", "()V")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedNative)
	assert.Contains(t, err.Error(), hostClass+".missing()V")
}

func TestNativesAreLinkedPerVM(t *testing.T) {
	l := NewLoader(sourceOf(t, hostBuilder()))
	bare := NewVM(l, DefaultConfig())
	_, err := bare.Invoke(bg, hostClass, "addTwice", "(II)I", Int(1), Int(1))
	assert.ErrorIs(t, err, ErrUnresolvedNative)

	bare.AddNatives(hostNatives(t))
	got, err := bare.Invoke(bg, hostClass, "addTwice", "(II)I", Int(1), Int(1))
	require.NoError(t, err)
	assert.Equal(t, Int(3), got)
}

func TestSymbolBindingMatchesMethodShape(t *testing.T) {
	const class = "n/Shapes"
	b := NewClassBuilder(class, "")
	b.DefaultConstructor()
	b.NativeMethod("twice", "(I)I", AccPublic)
	b.NativeMethod("half", "(I)I", AccPublic)
	b.NativeMethod("neg", "(I)I", AccPublic|AccStatic)
	b.NativeMethod("inc", "(I)I", AccPublic|AccStatic)

	p := NewMapProvider()
	require.NoError(t, p.BindSymbol("Java_n_Shapes_twice", func(env *NativeEnv, this Ref, v int32) int32 {
		return v * 2
	}))
	require.NoError(t, p.BindSymbol("Java_n_Shapes_half", func(v int32) int32 {
		return v / 2
	}))
	require.NoError(t, p.BindSymbol("Java_n_Shapes_neg", func(v int32) int32 {
		return -v
	}))
	require.NoError(t, p.BindSymbol("Java_n_Shapes_inc", func(env *NativeEnv, this Ref, v int32) int32 {
		return v + 1
	}))

	m := NewVM(NewLoader(sourceOf(t, b)), DefaultConfig(), p)
	obj, err := m.NewObject(bg, class, "()V")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []Value
		want Value
		ok   bool
	}{
		{"twice", []Value{Reference(obj), Int(4)}, Int(8), true},
		{"half", []Value{Reference(obj), Int(4)}, Value{}, false},
		{"neg", []Value{Int(4)}, Int(-4), true},
		{"inc", []Value{Int(4)}, Value{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Invoke(bg, class, tt.name, "(I)I", tt.args...)
			if !tt.ok {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnresolvedNative)
				assert.Contains(t, err.Error(), "Java_n_Shapes_"+tt.name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
