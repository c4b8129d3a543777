package vm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sourceOf encodes builders into a MapSource.
func sourceOf(t *testing.T, builders ...*ClassBuilder) MapSource {
	t.Helper()
	src := MapSource{}
	for _, b := range builders {
		src[b.Name()] = mustBytes(t, b)
	}
	return src
}

// staticReturn builds class name with a static method f()I returning v.
func staticReturn(name, super string, v int32) *ClassBuilder {
	b := NewClassBuilder(name, super)
	m := b.Method("f", "()I", AccPublic|AccStatic)
	m.Iconst(v)
	m.Return(KindInt)
	return b
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func TestLoaderBootstrapsObject(t *testing.T) {
	l := NewLoader()
	obj := l.Lookup(ObjectClassName)
	require.NotNil(t, obj)
	assert.Nil(t, obj.Superclass)
	assert.NotNil(t, obj.DeclaredMethod(ConstructorName, "()V"))
}

func TestLoaderResolvesFromSources(t *testing.T) {
	src := sourceOf(t,
		staticReturn("a/Base", "", 1),
		staticReturn("a/Derived", "a/Base", 2),
	)
	l := NewLoader(src)
	c, err := l.Resolve("a/Derived")
	require.NoError(t, err)
	assert.Equal(t, "a/Base", c.Superclass.Name)
	assert.True(t, c.IsSubclassOf(l.Lookup("a/Base")))
	assert.NotNil(t, l.Lookup("a/Base"), "superclass published with the batch")

	again, err := l.Resolve("a/Derived")
	require.NoError(t, err)
	assert.Same(t, c, again)
}

func TestLoaderSearchesSourcesInOrder(t *testing.T) {
	first := sourceOf(t, staticReturn("a/Dup", "", 1))
	second := sourceOf(t, staticReturn("a/Dup", "", 2), staticReturn("a/Only", "", 3))
	l := NewLoader(first)
	l.AddSource(second)

	m := NewVM(l, DefaultConfig())
	got, err := m.Invoke(bg, "a/Dup", "f", "()I")
	require.NoError(t, err)
	assert.Equal(t, Int(1), got)

	got, err = m.Invoke(bg, "a/Only", "f", "()I")
	require.NoError(t, err)
	assert.Equal(t, Int(3), got)
}

func TestLoaderClassNotFound(t *testing.T) {
	l := NewLoader()
	_, err := l.Resolve("no/Such")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
	assert.ErrorIs(t, err, ErrClassNotFound)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, LoadUnresolvedSymbol, le.Kind)
}

func TestLoaderRejectsDuplicateDefinition(t *testing.T) {
	l := NewLoader()
	data := mustBytes(t, staticReturn("a/Once", "", 1))
	_, err := l.LoadClass(data)
	require.NoError(t, err)

	_, err = l.LoadClass(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoaderRejectsArrayAsClass(t *testing.T) {
	_, err := NewLoader().Resolve("[I")
	assert.ErrorIs(t, err, ErrMalformed)
}

// ---------------------------------------------------------------------------
// Hierarchy errors
// ---------------------------------------------------------------------------

func TestLoaderCircularHierarchy(t *testing.T) {
	src := sourceOf(t,
		NewClassBuilder("a/A", "a/B"),
		NewClassBuilder("a/B", "a/A"),
	)
	_, err := NewLoader(src).Resolve("a/A")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "circular")
}

func TestLoaderMissingSuperclassIsUnresolved(t *testing.T) {
	src := sourceOf(t, NewClassBuilder("a/Orphan", "a/Missing"))
	_, err := NewLoader(src).Resolve("a/Orphan")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
}

func TestLoaderRejectsInterfaceAsSuperclass(t *testing.T) {
	src := sourceOf(t,
		NewInterfaceBuilder("a/Iface"),
		NewClassBuilder("a/Impl", "a/Iface"),
	)
	_, err := NewLoader(src).Resolve("a/Impl")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoaderRejectsFinalSuperclass(t *testing.T) {
	final := NewClassBuilder("a/Final", "").Flags(AccPublic | AccSuper | AccFinal)
	src := sourceOf(t, final, NewClassBuilder("a/Sub", "a/Final"))
	_, err := NewLoader(src).Resolve("a/Sub")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoaderMissingInterfaceMethod(t *testing.T) {
	iface := NewInterfaceBuilder("a/Shape")
	iface.AbstractMethod("area", "()I", AccPublic)
	impl := NewClassBuilder("a/Square", "").Implements("a/Shape")
	impl.DefaultConstructor()

	_, err := NewLoader(sourceOf(t, iface, impl)).Resolve("a/Square")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
	assert.Contains(t, err.Error(), "area")
}

func TestDescribeDispatch(t *testing.T) {
	iface := NewInterfaceBuilder("a/Shape")
	iface.AbstractMethod("area", "()I", AccPublic)
	impl := NewClassBuilder("a/Square", "").Implements("a/Shape")
	impl.DefaultConstructor()
	m := impl.Method("area", "()I", AccPublic)
	m.Iconst(4)
	m.Return(KindInt)

	l := NewLoader(sourceOf(t, iface, impl))
	c, err := l.Resolve("a/Square")
	require.NoError(t, err)
	assert.Len(t, l.Classes(), 3)

	tests := []struct {
		name  string
		class *Class
		want  []string
	}{
		{"implementation", c, []string{
			"vtable:",
			"a/Square.area()I",
			"itable: 1 interfaces",
			"a/Shape.area()I -> a/Square.area()I",
		}},
		{"interface", l.Lookup("a/Shape"), []string{
			"vtable:",
			"(of " + ObjectClassName + ")",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DescribeDispatch(tt.class)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
	assert.NotContains(t, DescribeDispatch(l.Lookup("a/Shape")), "itable")
}

// ---------------------------------------------------------------------------
// Batches
// ---------------------------------------------------------------------------

func TestLoaderDiscardsFailedBatch(t *testing.T) {
	// a/Good loads fine on its own, but a/Bad extends it and calls a
	// method that does not exist, so the whole batch is dropped.
	bad := NewClassBuilder("a/Bad", "a/Good")
	m := bad.Method("g", "()V", AccPublic|AccStatic)
	m.Invokestatic("a/Good", "nope", "()V")
	m.Return(KindVoid)

	l := NewLoader(sourceOf(t, staticReturn("a/Good", "", 1), bad))
	_, err := l.Resolve("a/Bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
	assert.Nil(t, l.Lookup("a/Bad"))
	assert.Nil(t, l.Lookup("a/Good"), "classes loaded for a failed batch are not published")

	good, err := l.Resolve("a/Good")
	require.NoError(t, err)
	assert.Equal(t, "a/Good", good.Name)
}

func TestLoaderMutualReferences(t *testing.T) {
	// a/Ping calls a/Pong and a/Pong calls a/Ping.
	ping := NewClassBuilder("a/Ping", "")
	m := ping.Method("ping", "(I)I", AccPublic|AccStatic)
	done := m.NewLabel()
	m.Load(KindInt, 0)
	m.EmitJump(OpIfle, done)
	m.Load(KindInt, 0)
	m.Iconst(1)
	m.Emit(OpIsub)
	m.Invokestatic("a/Pong", "pong", "(I)I")
	m.Return(KindInt)
	m.Mark(done)
	m.Iconst(0)
	m.Return(KindInt)

	pong := NewClassBuilder("a/Pong", "")
	m = pong.Method("pong", "(I)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Invokestatic("a/Ping", "ping", "(I)I")
	m.Iconst(1)
	m.Emit(OpIadd)
	m.Return(KindInt)

	l := NewLoader(sourceOf(t, ping, pong))
	got, err := NewVM(l, DefaultConfig()).Invoke(bg, "a/Ping", "ping", "(I)I", Int(10))
	require.NoError(t, err)
	assert.Equal(t, Int(10), got)
}

func TestLoaderConcurrentResolve(t *testing.T) {
	var builders []*ClassBuilder
	for _, name := range []string{"c/A", "c/B", "c/C", "c/D"} {
		builders = append(builders, staticReturn(name, "", 1))
	}
	l := NewLoader(sourceOf(t, builders...))

	var wg sync.WaitGroup
	results := make([][]*Class, 8)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, b := range builders {
				c, err := l.Resolve(b.Name())
				assert.NoError(t, err)
				results[g] = append(results[g], c)
			}
		}()
	}
	wg.Wait()
	for _, r := range results[1:] {
		for i := range r {
			assert.Same(t, results[0][i], r[i], "every goroutine sees the same class")
		}
	}
	assert.Len(t, l.Classes(), 5)
}
