package fixtures

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/classvm/vm"
)

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

const (
	arrayClass   = "tests/array/ArrayTest"
	objectArray  = "[Ljava/lang/Object;"
	simpleArray  = "[L" + simpleObjectClass + ";"
	intArray2Dim = "[[I"
)

func arrayTestBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(arrayClass, "")
	static := vm.AccPublic | vm.AccStatic

	single := b.Method("singleArray", "(I)[I", static)
	single.Load(vm.KindInt, 0)
	single.Newarray(vm.KindInt)
	single.Return(vm.KindRef)

	singleRef := b.Method("singleRefArray", "()"+objectArray, static)
	singleRef.Iconst(5)
	singleRef.Anewarray(vm.ObjectClassName)
	singleRef.Return(vm.KindRef)

	// multiArray(n): int[4][4] with [1][2] = n
	multi := b.Method("multiArray", "(I)"+intArray2Dim, static)
	multi.Iconst(4)
	multi.Iconst(4)
	multi.Multianewarray(intArray2Dim, 2)
	multi.Store(vm.KindRef, 1)
	multi.Load(vm.KindRef, 1)
	multi.Iconst(1)
	multi.ArrayLoad(vm.KindRef)
	multi.Iconst(2)
	multi.Load(vm.KindInt, 0)
	multi.ArrayStore(vm.KindInt)
	multi.Load(vm.KindRef, 1)
	multi.Return(vm.KindRef)

	set := b.Method("setValue", "([III)V", static)
	set.Load(vm.KindRef, 0)
	set.Load(vm.KindInt, 1)
	set.Load(vm.KindInt, 2)
	set.ArrayStore(vm.KindInt)
	set.Return(vm.KindVoid)

	get := b.Method("getValue", "([II)I", static)
	get.Load(vm.KindRef, 0)
	get.Load(vm.KindInt, 1)
	get.ArrayLoad(vm.KindInt)
	get.Return(vm.KindInt)

	setRef := b.Method("setValueRef", "("+objectArray+"ILjava/lang/Object;)V", static)
	setRef.Load(vm.KindRef, 0)
	setRef.Load(vm.KindInt, 1)
	setRef.Load(vm.KindRef, 2)
	setRef.ArrayStore(vm.KindRef)
	setRef.Return(vm.KindVoid)

	getRef := b.Method("getValueRef", "("+objectArray+"I)Ljava/lang/Object;", static)
	getRef.Load(vm.KindRef, 0)
	getRef.Load(vm.KindInt, 1)
	getRef.ArrayLoad(vm.KindRef)
	getRef.Return(vm.KindRef)

	// sum(n): fill int[n] with 0..n-1, then add it up using arraylength
	sum := b.Method("sum", "(I)I", static)
	fill, add, done := sum.NewLabel(), sum.NewLabel(), sum.NewLabel()
	sum.Load(vm.KindInt, 0)
	sum.Newarray(vm.KindInt)
	sum.Store(vm.KindRef, 1)
	sum.Iconst(0)
	sum.Store(vm.KindInt, 2)
	sum.Mark(fill)
	sum.Load(vm.KindInt, 2)
	sum.Load(vm.KindInt, 0)
	sum.EmitJump(vm.OpIfIcmpge, add)
	sum.Load(vm.KindRef, 1)
	sum.Load(vm.KindInt, 2)
	sum.Load(vm.KindInt, 2)
	sum.ArrayStore(vm.KindInt)
	sum.EmitIinc(2, 1)
	sum.EmitJump(vm.OpGoto, fill)
	sum.Mark(add)
	sum.Iconst(0)
	sum.Store(vm.KindInt, 3)
	sum.Load(vm.KindRef, 1)
	sum.Emit(vm.OpArraylength)
	sum.Store(vm.KindInt, 2)
	loop := sum.NewLabel()
	sum.Mark(loop)
	sum.Load(vm.KindInt, 2)
	sum.EmitJump(vm.OpIfle, done)
	sum.EmitIinc(2, -1)
	sum.Load(vm.KindInt, 3)
	sum.Load(vm.KindRef, 1)
	sum.Load(vm.KindInt, 2)
	sum.ArrayLoad(vm.KindInt)
	sum.Emit(vm.OpIadd)
	sum.Store(vm.KindInt, 3)
	sum.EmitJump(vm.OpGoto, loop)
	sum.Mark(done)
	sum.Load(vm.KindInt, 3)
	sum.Return(vm.KindInt)

	// narrow(kind, v) stores v into a one-element array of kind and reads
	// it back
	for _, k := range []vm.Kind{vm.KindByte, vm.KindChar, vm.KindShort, vm.KindBoolean} {
		m := b.Method("narrow_"+sig(k), "(I)I", static)
		m.Iconst(1)
		m.Newarray(k)
		m.Store(vm.KindRef, 1)
		m.Load(vm.KindRef, 1)
		m.Iconst(0)
		m.Load(vm.KindInt, 0)
		m.ArrayStore(k)
		m.Load(vm.KindRef, 1)
		m.Iconst(0)
		m.ArrayLoad(k)
		m.Return(vm.KindInt)
	}

	oob := b.Method("outOfBounds", "(I)I", static)
	oob.Iconst(2)
	oob.Newarray(vm.KindInt)
	oob.Load(vm.KindInt, 0)
	oob.ArrayLoad(vm.KindInt)
	oob.Return(vm.KindInt)

	negative := b.Method("negative", "()I", static)
	negative.Iconst(-1)
	negative.Newarray(vm.KindInt)
	negative.Emit(vm.OpArraylength)
	negative.Return(vm.KindInt)

	multiLength := b.Method("multiLength", "()I", static)
	multiLength.Iconst(2)
	multiLength.Iconst(5)
	multiLength.Multianewarray(intArray2Dim, 2)
	multiLength.Iconst(1)
	multiLength.ArrayLoad(vm.KindRef)
	multiLength.Emit(vm.OpArraylength)
	multiLength.Return(vm.KindInt)

	// covariance() = (o instanceof SimpleObject[]) + 10*(o instanceof Object[])
	// for o = new SimpleObject[1] holding an ExtendedObject
	cov := b.Method("covariance", "()I", static)
	cov.Iconst(1)
	cov.Anewarray(simpleObjectClass)
	cov.Store(vm.KindRef, 0)
	cov.Load(vm.KindRef, 0)
	cov.Iconst(0)
	emitNew(cov, extendedObjectClass, "(J)V", func() { cov.Lconst(3) })
	cov.ArrayStore(vm.KindRef)
	cov.Load(vm.KindRef, 0)
	cov.Instanceof(simpleArray)
	cov.Load(vm.KindRef, 0)
	cov.Instanceof(objectArray)
	cov.Iconst(10)
	cov.Emit(vm.OpImul)
	cov.Emit(vm.OpIadd)
	cov.Return(vm.KindInt)

	// storeMismatch stores a plain Object into a SimpleObject[]
	mismatch := b.Method("storeMismatch", "()V", static)
	mismatch.Iconst(1)
	mismatch.Anewarray(simpleObjectClass)
	mismatch.Checkcast(objectArray)
	mismatch.Iconst(0)
	emitNew(mismatch, vm.ObjectClassName, "()V", nil)
	mismatch.ArrayStore(vm.KindRef)
	mismatch.Return(vm.KindVoid)

	nullArray := b.Method("nullArray", "()I", static)
	nullArray.Emit(vm.OpAconstNull)
	nullArray.Checkcast("[I")
	nullArray.Emit(vm.OpArraylength)
	nullArray.Return(vm.KindInt)
	return b
}

func arrayFixture() Fixture {
	return Fixture{
		Name:    "array",
		Classes: []func() *vm.ClassBuilder{arrayTestBuilder},
		Checks: []Check{
			{Name: "singleArray", Run: checkSingleArray},
			{Name: "singleRefArray", Run: checkSingleRefArray},
			{Name: "multiArray", Run: checkMultiArray},
			{Name: "sum", Run: expect(arrayClass, "sum", "(I)I", vm.Int(4950), vm.Int(100))},
			{Name: "narrow_B", Run: expect(arrayClass, "narrow_B", "(I)I", vm.Int(-56), vm.Int(200))},
			{Name: "narrow_C", Run: expect(arrayClass, "narrow_C", "(I)I", vm.Int(65535), vm.Int(-1))},
			{Name: "narrow_S", Run: expect(arrayClass, "narrow_S", "(I)I", vm.Int(-32768), vm.Int(32768))},
			{Name: "narrow_Z", Run: expect(arrayClass, "narrow_Z", "(I)I", vm.Int(1), vm.Int(3))},
			{Name: "inBounds", Run: expect(arrayClass, "outOfBounds", "(I)I", vm.Int(0), vm.Int(1))},
			{Name: "outOfBounds", Run: expectFault(arrayClass, "outOfBounds", "(I)I", vm.FaultOutOfBounds, vm.Int(2))},
			{Name: "negativeIndex", Run: expectFault(arrayClass, "outOfBounds", "(I)I", vm.FaultOutOfBounds, vm.Int(-1))},
			{Name: "negativeLength", Run: expectFault(arrayClass, "negative", "()I", vm.FaultNegativeLength)},
			{Name: "multiLength", Run: expect(arrayClass, "multiLength", "()I", vm.Int(5))},
			{Name: "covariance", Run: expect(arrayClass, "covariance", "()I", vm.Int(11))},
			{Name: "storeMismatch", Run: expectFault(arrayClass, "storeMismatch", "()V", vm.FaultClassCast)},
			{Name: "nullArray", Run: expectFault(arrayClass, "nullArray", "()I", vm.FaultNullReference)},
		},
	}
}

// invokeRef invokes a method returning a reference and pins the result.
// The caller must Unpin it.
func invokeRef(ctx context.Context, m *vm.VM, class, name, desc string, args ...vm.Value) (vm.Ref, error) {
	v, err := m.Invoke(ctx, class, name, desc, args...)
	if err != nil {
		return vm.Null, err
	}
	if !v.IsRef() || v.AsRef().IsNull() {
		return vm.Null, fmt.Errorf("%s.%s%s returned %s, want an object", class, name, desc, v)
	}
	m.Pin(v.AsRef())
	return v.AsRef(), nil
}

func checkSingleArray(ctx context.Context, m *vm.VM) error {
	ref, err := invokeRef(ctx, m, arrayClass, "singleArray", "(I)[I", vm.Int(5))
	if err != nil {
		return err
	}
	defer m.Unpin(ref)

	arr, err := m.Heap().Array(ref)
	if err != nil {
		return err
	}
	if arr.Type != "[I" || arr.Len() != 5 {
		return fmt.Errorf("singleArray(5) = %s of length %d", arr.Type, arr.Len())
	}
	for i, v := range arr.Elems {
		if v != vm.Int(0) {
			return fmt.Errorf("element %d = %s, want 0", i, v)
		}
	}
	if _, err := m.Invoke(ctx, arrayClass, "setValue", "([III)V", vm.Reference(ref), vm.Int(2), vm.Int(7)); err != nil {
		return err
	}
	return expect(arrayClass, "getValue", "([II)I", vm.Int(7), vm.Reference(ref), vm.Int(2))(ctx, m)
}

func checkSingleRefArray(ctx context.Context, m *vm.VM) error {
	ref, err := invokeRef(ctx, m, arrayClass, "singleRefArray", "()"+objectArray)
	if err != nil {
		return err
	}
	defer m.Unpin(ref)

	obj, err := m.NewObject(ctx, simpleObjectClass, "(I)V", vm.Int(3))
	if err != nil {
		return err
	}
	desc := "(" + objectArray + "ILjava/lang/Object;)V"
	if _, err := m.Invoke(ctx, arrayClass, "setValueRef", desc, vm.Reference(ref), vm.Int(4), vm.Reference(obj)); err != nil {
		return err
	}
	got, err := m.Invoke(ctx, arrayClass, "getValueRef", "("+objectArray+"I)Ljava/lang/Object;", vm.Reference(ref), vm.Int(4))
	if err != nil {
		return err
	}
	if got.AsRef() != obj {
		return fmt.Errorf("getValueRef(4) = %s, want %s", got, obj)
	}
	got, err = m.Invoke(ctx, arrayClass, "getValueRef", "("+objectArray+"I)Ljava/lang/Object;", vm.Reference(ref), vm.Int(0))
	if err != nil {
		return err
	}
	if !got.AsRef().IsNull() {
		return fmt.Errorf("getValueRef(0) = %s, want null", got)
	}
	return nil
}

func checkMultiArray(ctx context.Context, m *vm.VM) error {
	ref, err := invokeRef(ctx, m, arrayClass, "multiArray", "(I)"+intArray2Dim, vm.Int(9))
	if err != nil {
		return err
	}
	defer m.Unpin(ref)

	outer, err := m.Heap().Array(ref)
	if err != nil {
		return err
	}
	if outer.Len() != 4 || outer.ElemType != "[I" {
		return fmt.Errorf("multiArray: outer %s of length %d", outer.Type, outer.Len())
	}
	row, err := m.Heap().Array(outer.Elems[1].AsRef())
	if err != nil {
		return err
	}
	if row.Len() != 4 || row.Elems[2] != vm.Int(9) {
		return fmt.Errorf("multiArray: row 1 = %v", row.Elems)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statics
// ---------------------------------------------------------------------------

const (
	staticsClass      = "tests/statics/Java"
	staticsChildClass = "tests/statics/Child"
)

func staticsBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(staticsClass, "")
	b.Field("value", "I", vm.AccPublic|vm.AccStatic)
	b.Field("inits", "I", vm.AccPublic|vm.AccStatic)

	clinit := b.Method(vm.InitializerName, "()V", vm.AccStatic)
	clinit.Iconst(3)
	clinit.Putstatic(staticsClass, "value", "I")
	clinit.Getstatic(staticsClass, "inits", "I")
	clinit.Iconst(1)
	clinit.Emit(vm.OpIadd)
	clinit.Putstatic(staticsClass, "inits", "I")
	clinit.Return(vm.KindVoid)

	get := b.Method("getStatic", "()I", vm.AccPublic|vm.AccStatic)
	get.Getstatic(staticsClass, "value", "I")
	get.Return(vm.KindInt)

	bump := b.Method("bump", "()I", vm.AccPublic|vm.AccStatic)
	bump.Getstatic(staticsClass, "value", "I")
	bump.Iconst(1)
	bump.Emit(vm.OpIadd)
	bump.Emit(vm.OpDup)
	bump.Putstatic(staticsClass, "value", "I")
	bump.Return(vm.KindInt)
	return b
}

// Child's initializer reads its superclass's static, which must already
// be initialised.
func staticsChildBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(staticsChildClass, staticsClass)
	b.Field("derived", "I", vm.AccPublic|vm.AccStatic)
	b.DefaultConstructor()

	clinit := b.Method(vm.InitializerName, "()V", vm.AccStatic)
	clinit.Getstatic(staticsClass, "value", "I")
	clinit.Iconst(10)
	clinit.Emit(vm.OpImul)
	clinit.Putstatic(staticsChildClass, "derived", "I")
	clinit.Return(vm.KindVoid)

	get := b.Method("derived", "()I", vm.AccPublic|vm.AccStatic)
	get.Getstatic(staticsChildClass, "derived", "I")
	get.Return(vm.KindInt)
	return b
}

func staticsFixture() Fixture {
	return Fixture{
		Name:    "statics",
		Classes: []func() *vm.ClassBuilder{staticsBuilder, staticsChildBuilder},
		Checks: []Check{
			{Name: "getStatic", Run: expect(staticsClass, "getStatic", "()I", vm.Int(3))},
			{Name: "initOnce", Run: checkInitOnce},
			{Name: "superFirst", Run: expect(staticsChildClass, "derived", "()I", vm.Int(30))},
			{Name: "lazy", Run: checkLazyInit},
		},
	}
}

func checkInitOnce(ctx context.Context, m *vm.VM) error {
	for want := int32(4); want <= 6; want++ {
		if err := expect(staticsClass, "bump", "()I", vm.Int(want))(ctx, m); err != nil {
			return err
		}
	}
	inits, err := m.Static(staticsClass, "inits")
	if err != nil {
		return err
	}
	if inits != vm.Int(1) {
		return fmt.Errorf("initializer ran %s times", inits)
	}
	return nil
}

func checkLazyInit(ctx context.Context, m *vm.VM) error {
	if m.Initialized(staticsChildClass) {
		return errors.New("Child initialised before first use")
	}
	if _, err := m.NewObject(ctx, staticsChildClass, "()V"); err != nil {
		return err
	}
	if !m.Initialized(staticsChildClass) || !m.Initialized(staticsClass) {
		return errors.New("new did not initialise Child and its superclass")
	}
	v, err := m.Static(staticsChildClass, "derived")
	if err != nil {
		return err
	}
	if v != vm.Int(30) {
		return fmt.Errorf("Child.derived = %s, want 30", v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Native methods
// ---------------------------------------------------------------------------

const rniClass = "tests/rni/RniTests"

func rniBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(rniClass, "")
	static := vm.AccPublic | vm.AccStatic
	b.NativeMethod("testNative", "(IJI)J", static)
	b.NativeMethod("allocate", "(I)[I", static)
	b.NativeMethod("fail", "()V", static)
	b.NativeMethod("missing", "()V", static)

	test := b.Method("test", "(IJI)J", static)
	test.Load(vm.KindInt, 0)
	test.Load(vm.KindLong, 1)
	test.Load(vm.KindInt, 2)
	test.Invokestatic(rniClass, "testNative", "(IJI)J")
	test.Return(vm.KindLong)

	// allocated(n) = allocate(n).length
	alloc := b.Method("allocated", "(I)I", static)
	alloc.Load(vm.KindInt, 0)
	alloc.Invokestatic(rniClass, "allocate", "(I)[I")
	alloc.Emit(vm.OpArraylength)
	alloc.Return(vm.KindInt)

	missing := b.Method("callMissing", "()V", static)
	missing.Invokestatic(rniClass, "missing", "()V")
	missing.Return(vm.KindVoid)
	return b
}

// ErrNativeFailure is returned by the fixture native RniTests.fail.
var ErrNativeFailure = errors.New("fixture native failure")

// Natives returns the native provider the corpus links against, apart from
// the assertion natives.
func Natives() vm.NativeProvider {
	p := vm.NewMapProvider()
	// testNative links by its mangled symbol
	must(p.BindSymbol(vm.NativeKey{Class: rniClass, Name: "testNative"}.Symbol(), func(n1 int32, n2 int64, n3 int32) int64 {
		return int64(n1) + n2*int64(n3)
	}))
	must(p.Bind(vm.NativeKey{Class: rniClass, Name: "allocate", Descriptor: "(I)[I"}, func(env *vm.NativeEnv, n int32) (vm.Ref, error) {
		return env.NewArray("[I", n)
	}, true))
	p.Register(vm.NativeKey{Class: rniClass, Name: "fail", Descriptor: "()V"}, func(*vm.NativeEnv, []vm.Value) (vm.Value, error) {
		return vm.Value{}, ErrNativeFailure
	})
	return p
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func rniFixture() Fixture {
	return Fixture{
		Name:    "rni",
		Classes: []func() *vm.ClassBuilder{rniBuilder},
		Checks: []Check{
			{Name: "test", Run: expect(rniClass, "test", "(IJI)J", vm.Long(69+50*12), vm.Int(69), vm.Long(50), vm.Int(12))},
			{Name: "direct", Run: expect(rniClass, "testNative", "(IJI)J", vm.Long(-1), vm.Int(1), vm.Long(-1), vm.Int(2))},
			{Name: "allocate", Run: expect(rniClass, "allocated", "(I)I", vm.Int(17), vm.Int(17))},
			{Name: "fail", Run: expectFault(rniClass, "fail", "()V", vm.FaultNativeError)},
			{Name: "missing", Run: expectFault(rniClass, "callMissing", "()V", vm.FaultUnresolvedNative)},
		},
	}
}
