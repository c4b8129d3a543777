package vm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bg = context.Background()

// ---------------------------------------------------------------------------
// Test classes
// ---------------------------------------------------------------------------

const calcClass = "i/Calc"

func calcBuilder() *ClassBuilder {
	b := NewClassBuilder(calcClass, "")

	m := b.Method("div", "(II)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Load(KindInt, 1)
	m.Emit(OpIdiv)
	m.Return(KindInt)

	m = b.Method("outer", "(II)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Load(KindInt, 1)
	m.Invokestatic(calcClass, "div", "(II)I")
	m.Return(KindInt)

	m = b.Method("deep", "(I)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Iconst(1)
	m.Emit(OpIadd)
	m.Invokestatic(calcClass, "deep", "(I)I")
	m.Return(KindInt)

	m = b.Method("spin", "()V", AccPublic|AccStatic)
	top := m.NewLabel()
	m.Mark(top)
	m.EmitJump(OpGoto, top)

	m = b.Method("twice", "(J)J", AccPublic|AccStatic)
	m.Load(KindLong, 0)
	m.Emit(OpDup2)
	m.Emit(OpLadd)
	m.Return(KindLong)

	m = b.Method("rsub", "(II)I", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Load(KindInt, 1)
	m.Emit(OpSwap)
	m.Emit(OpIsub)
	m.Return(KindInt)

	// (a, b) -> a*b + a, via dup_x1 on the int stack
	m = b.Method("mulAdd", "(II)I", AccPublic|AccStatic)
	m.Load(KindInt, 1)
	m.Load(KindInt, 0)
	m.Emit(OpDupX1)
	m.Emit(OpImul)
	m.Emit(OpIadd)
	m.Return(KindInt)

	m = b.Method("str", "()V", AccPublic|AccStatic)
	m.LdcString("hello")
	m.Emit(OpPop)
	m.Return(KindVoid)

	m = b.Method("throws", "()V", AccPublic|AccStatic)
	m.Emit(OpAconstNull)
	m.Emit(OpAthrow)

	m = b.Method("widen", "(I)J", AccPublic|AccStatic)
	m.Load(KindInt, 0)
	m.Emit(OpI2l)
	m.Lconst(1 << 33)
	m.Emit(OpLadd)
	m.Return(KindLong)
	return b
}

const pointClass = "i/Point"

func pointBuilder() *ClassBuilder {
	b := NewClassBuilder(pointClass, "")
	b.Field("x", "I", AccPublic)
	b.Field("y", "I", AccPublic)

	m := b.Method(ConstructorName, "(II)V", AccPublic)
	m.Load(KindRef, 0)
	m.Invokespecial(ObjectClassName, ConstructorName, "()V")
	m.Load(KindRef, 0)
	m.Load(KindInt, 1)
	m.Putfield(pointClass, "x", "I")
	m.Load(KindRef, 0)
	m.Load(KindInt, 2)
	m.Putfield(pointClass, "y", "I")
	m.Return(KindVoid)

	m = b.Method("sum", "()I", AccPublic)
	m.Load(KindRef, 0)
	m.Getfield(pointClass, "x", "I")
	m.Load(KindRef, 0)
	m.Getfield(pointClass, "y", "I")
	m.Emit(OpIadd)
	m.Return(KindInt)
	return b
}

const (
	initClass  = "i/Init"
	countClass = "i/Count"
	badClass   = "i/BadInit"
)

func staticsBuilders() []*ClassBuilder {
	count := NewClassBuilder(countClass, "")
	count.Field("n", "I", AccPublic|AccStatic)

	init := NewClassBuilder(initClass, "")
	init.Field("value", "I", AccPublic|AccStatic)
	m := init.Method(InitializerName, "()V", AccStatic)
	m.Iconst(7)
	m.Putstatic(initClass, "value", "I")
	m.Getstatic(countClass, "n", "I")
	m.Iconst(1)
	m.Emit(OpIadd)
	m.Putstatic(countClass, "n", "I")
	m.Return(KindVoid)
	m = init.Method("get", "()I", AccPublic|AccStatic)
	m.Getstatic(initClass, "value", "I")
	m.Return(KindInt)

	bad := NewClassBuilder(badClass, "")
	bad.Field("v", "I", AccPublic|AccStatic)
	m = bad.Method(InitializerName, "()V", AccStatic)
	m.Iconst(1)
	m.Iconst(0)
	m.Emit(OpIdiv)
	m.Putstatic(badClass, "v", "I")
	m.Return(KindVoid)
	m = bad.Method("get", "()I", AccPublic|AccStatic)
	m.Getstatic(badClass, "v", "I")
	m.Return(KindInt)

	return []*ClassBuilder{count, init, bad}
}

func testVM(t *testing.T, config Config, natives ...NativeProvider) *VM {
	t.Helper()
	builders := append([]*ClassBuilder{calcBuilder(), pointBuilder()}, staticsBuilders()...)
	return NewVM(NewLoader(sourceOf(t, builders...)), config, natives...)
}

func faultOf(t *testing.T, err error) *Fault {
	t.Helper()
	var f *Fault
	require.True(t, errors.As(err, &f), "want *Fault, got %v", err)
	return f
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestInvokeStatic(t *testing.T) {
	m := testVM(t, DefaultConfig())
	tests := []struct {
		name, desc string
		args       []Value
		want       Value
	}{
		{"div", "(II)I", []Value{Int(17), Int(5)}, Int(3)},
		{"div", "(II)I", []Value{Int(-17), Int(5)}, Int(-3)},
		{"outer", "(II)I", []Value{Int(100), Int(7)}, Int(14)},
		{"twice", "(J)J", []Value{Long(1 << 40)}, Long(1 << 41)},
		{"rsub", "(II)I", []Value{Int(3), Int(10)}, Int(7)},
		{"mulAdd", "(II)I", []Value{Int(6), Int(7)}, Int(48)},
		{"widen", "(I)J", []Value{Int(-1)}, Long(1<<33 - 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Invoke(bg, calcClass, tt.name, tt.desc, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvokeChecksArguments(t *testing.T) {
	m := testVM(t, DefaultConfig())
	_, err := m.Invoke(bg, calcClass, "div", "(II)I", Int(1))
	assert.Error(t, err)
	_, err = m.Invoke(bg, calcClass, "div", "(II)I", Int(1), Long(2))
	assert.Error(t, err)
	_, err = m.Invoke(bg, calcClass, "nope", "()V")
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
}

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

func TestFaultLocation(t *testing.T) {
	m := testVM(t, DefaultConfig())
	_, err := m.Invoke(bg, calcClass, "outer", "(II)I", Int(1), Int(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDivideByZero)

	f := faultOf(t, err)
	assert.Equal(t, FaultDivideByZero, f.Kind)
	assert.Equal(t, calcClass, f.Class)
	assert.Equal(t, "div", f.Method)
	assert.Equal(t, "(II)I", f.Descriptor)
	assert.Equal(t, 2, f.PC)
	assert.Equal(t, "idiv", f.Opcode)
	require.Len(t, f.Trace, 2)
	assert.Equal(t, "div", f.Trace[0].Method)
	assert.Equal(t, "outer", f.Trace[1].Method)
	assert.Contains(t, f.StackTrace(), "i/Calc.outer@")
	assert.Contains(t, f.Error(), "pc=2")

	// The VM is usable after a fault.
	got, err := m.Invoke(bg, calcClass, "div", "(II)I", Int(9), Int(3))
	require.NoError(t, err)
	assert.Equal(t, Int(3), got)
}

func TestStackOverflow(t *testing.T) {
	config := DefaultConfig()
	config.MaxFrames = 100
	m := testVM(t, config)
	_, err := m.Invoke(bg, calcClass, "deep", "(I)I", Int(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStackOverflow)
	assert.NotEmpty(t, faultOf(t, err).Trace)
}

func TestUnsupportedInstructions(t *testing.T) {
	m := testVM(t, DefaultConfig())
	for _, name := range []string{"str", "throws"} {
		_, err := m.Invoke(bg, calcClass, name, "()V")
		assert.ErrorIs(t, err, ErrUnsupported, name)
	}
}

func TestCancellation(t *testing.T) {
	m := testVM(t, DefaultConfig())
	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := m.Invoke(ctx, calcClass, "spin", "()V")
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInterrupted)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("spin was not interrupted")
	}
}

// ---------------------------------------------------------------------------
// Objects and statics
// ---------------------------------------------------------------------------

func TestHostObjectAccess(t *testing.T) {
	m := testVM(t, DefaultConfig())
	p, err := m.NewObject(bg, pointClass, "(II)V", Int(3), Int(4))
	require.NoError(t, err)
	m.Pin(p)
	defer m.Unpin(p)

	x, err := m.GetField(p, "x")
	require.NoError(t, err)
	assert.Equal(t, Int(3), x)

	require.NoError(t, m.SetField(p, "y", Int(10)))
	got, err := m.Invoke(bg, pointClass, "sum", "()I", Reference(p))
	require.NoError(t, err)
	assert.Equal(t, Int(13), got)

	_, err = m.GetField(p, "z")
	assert.Error(t, err)
	_, err = m.GetField(Null, "x")
	assert.ErrorIs(t, err, ErrNullReference)
}

func TestStaticInitializerRunsOnce(t *testing.T) {
	m := testVM(t, DefaultConfig())
	assert.False(t, m.Initialized(initClass))

	for range 3 {
		got, err := m.Invoke(bg, initClass, "get", "()I")
		require.NoError(t, err)
		assert.Equal(t, Int(7), got)
	}
	assert.True(t, m.Initialized(initClass))
	n, err := m.Static(countClass, "n")
	require.NoError(t, err)
	assert.Equal(t, Int(1), n)
}

func TestStaticsArePerVM(t *testing.T) {
	m := testVM(t, DefaultConfig())
	_, err := m.Invoke(bg, initClass, "get", "()I")
	require.NoError(t, err)

	other := NewVM(m.Loader(), DefaultConfig())
	assert.False(t, other.Initialized(initClass))
	v, err := other.Static(initClass, "value")
	require.NoError(t, err)
	assert.Equal(t, Int(0), v)

	require.NoError(t, other.SetStatic(initClass, "value", Int(99)))
	v, err = m.Static(initClass, "value")
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)
}

func TestFailedStaticInitializer(t *testing.T) {
	m := testVM(t, DefaultConfig())
	_, err := m.Invoke(bg, badClass, "get", "()I")
	require.Error(t, err)
	f := faultOf(t, err)
	assert.Equal(t, FaultDivideByZero, f.Kind)
	assert.Equal(t, InitializerName, f.Method)

	// The class stays initialised; the field keeps its default.
	assert.True(t, m.Initialized(badClass))
	got, err := m.Invoke(bg, badClass, "get", "()I")
	require.NoError(t, err)
	assert.Equal(t, Int(0), got)
}
