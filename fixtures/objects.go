package fixtures

import (
	"github.com/chazu/classvm/vm"
)

const (
	objectTestClass     = "tests/object/ObjectTest"
	extendTestClass     = "tests/object/ExtendTest"
	simpleObjectClass   = "tests/object/SimpleObject"
	extendedObjectClass = "tests/object/ExtendedObject"
	animalClass         = "tests/object/Animal"
	fruitClass          = "tests/object/Fruit"
	interfaceTestClass  = "tests/object/InterfaceTest"
	objectTestsClass    = "tests/object/ObjectTests"

	objectTestDesc = "L" + objectTestClass + ";"
)

// emitNew emits new class; dup; args; invokespecial <init>desc. The args
// callback pushes the constructor arguments.
func emitNew(m *vm.MethodBuilder, class, desc string, args func()) {
	m.New(class)
	m.Emit(vm.OpDup)
	if args != nil {
		args()
	}
	m.Invokespecial(class, vm.ConstructorName, desc)
}

// ---------------------------------------------------------------------------
// ObjectTest and ExtendTest
// ---------------------------------------------------------------------------

func objectTestBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(objectTestClass, "")
	b.Field("value", "I", vm.AccPublic)
	b.Field("child", objectTestDesc, vm.AccPublic)

	ctor := b.Method(vm.ConstructorName, "(I"+objectTestDesc+")V", vm.AccPublic)
	ctor.Load(vm.KindRef, 0)
	ctor.Invokespecial(vm.ObjectClassName, vm.ConstructorName, "()V")
	ctor.Load(vm.KindRef, 0)
	ctor.Load(vm.KindInt, 1)
	ctor.Putfield(objectTestClass, "value", "I")
	ctor.Load(vm.KindRef, 0)
	ctor.Load(vm.KindRef, 2)
	ctor.Putfield(objectTestClass, "child", objectTestDesc)
	ctor.Return(vm.KindVoid)

	value := b.Method("value", "()I", vm.AccPublic)
	value.Load(vm.KindRef, 0)
	value.Getfield(objectTestClass, "value", "I")
	value.Return(vm.KindInt)

	newTest := b.Method("newTest", "()Ljava/lang/Object;", vm.AccPublic|vm.AccStatic)
	emitNew(newTest, objectTestClass, "(I"+objectTestDesc+")V", func() {
		newTest.Iconst(5)
		newTest.Emit(vm.OpAconstNull)
	})
	newTest.Return(vm.KindRef)

	// simpleTest(v) = new ObjectTest(v, null).value()
	simple := b.Method("simpleTest", "(I)I", vm.AccPublic|vm.AccStatic)
	emitNew(simple, objectTestClass, "(I"+objectTestDesc+")V", func() {
		simple.Load(vm.KindInt, 0)
		simple.Emit(vm.OpAconstNull)
	})
	simple.Invokevirtual(objectTestClass, "value", "()I")
	simple.Return(vm.KindInt)

	// simpleTestObject(v) = new ObjectTest(v, new ObjectTest(v*2, null)).child.value()
	nested := b.Method("simpleTestObject", "(I)I", vm.AccPublic|vm.AccStatic)
	emitNew(nested, objectTestClass, "(I"+objectTestDesc+")V", func() {
		nested.Load(vm.KindInt, 0)
		emitNew(nested, objectTestClass, "(I"+objectTestDesc+")V", func() {
			nested.Load(vm.KindInt, 0)
			nested.Iconst(2)
			nested.Emit(vm.OpImul)
			nested.Emit(vm.OpAconstNull)
		})
	})
	nested.Getfield(objectTestClass, "child", objectTestDesc)
	nested.Invokevirtual(objectTestClass, "value", "()I")
	nested.Return(vm.KindInt)

	// gcTest(n): one object held in a local survives n short-lived ones.
	gc := b.Method("gcTest", "(I)I", vm.AccPublic|vm.AccStatic)
	loop, done := gc.NewLabel(), gc.NewLabel()
	emitNew(gc, objectTestClass, "(I"+objectTestDesc+")V", func() {
		gc.Iconst(1)
		gc.Emit(vm.OpAconstNull)
	})
	gc.Store(vm.KindRef, 1)
	gc.Iconst(0)
	gc.Store(vm.KindInt, 2)
	gc.Mark(loop)
	gc.Load(vm.KindInt, 2)
	gc.Load(vm.KindInt, 0)
	gc.EmitJump(vm.OpIfIcmpge, done)
	emitNew(gc, objectTestClass, "(I"+objectTestDesc+")V", func() {
		gc.Load(vm.KindInt, 2)
		gc.Emit(vm.OpAconstNull)
	})
	gc.Emit(vm.OpPop)
	gc.EmitIinc(2, 1)
	gc.EmitJump(vm.OpGoto, loop)
	gc.Mark(done)
	gc.Load(vm.KindRef, 1)
	gc.Getfield(objectTestClass, "value", "I")
	gc.Return(vm.KindInt)

	// chain(n) links n objects through child and returns the length found
	// by walking the list; every node stays reachable from the head.
	chain := b.Method("chain", "(I)I", vm.AccPublic|vm.AccStatic)
	build, walk, count, end := chain.NewLabel(), chain.NewLabel(), chain.NewLabel(), chain.NewLabel()
	chain.Emit(vm.OpAconstNull)
	chain.Store(vm.KindRef, 1)
	chain.Mark(build)
	chain.Load(vm.KindInt, 0)
	chain.EmitJump(vm.OpIfle, walk)
	emitNew(chain, objectTestClass, "(I"+objectTestDesc+")V", func() {
		chain.Load(vm.KindInt, 0)
		chain.Load(vm.KindRef, 1)
	})
	chain.Store(vm.KindRef, 1)
	chain.EmitIinc(0, -1)
	chain.EmitJump(vm.OpGoto, build)
	chain.Mark(walk)
	chain.Iconst(0)
	chain.Store(vm.KindInt, 0)
	chain.Mark(count)
	chain.Load(vm.KindRef, 1)
	chain.EmitJump(vm.OpIfnull, end)
	chain.EmitIinc(0, 1)
	chain.Load(vm.KindRef, 1)
	chain.Getfield(objectTestClass, "child", objectTestDesc)
	chain.Store(vm.KindRef, 1)
	chain.EmitJump(vm.OpGoto, count)
	chain.Mark(end)
	chain.Load(vm.KindInt, 0)
	chain.Return(vm.KindInt)
	return b
}

func extendTestBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(extendTestClass, objectTestClass)
	b.Field("another", "I", vm.AccPublic)

	ctor := b.Method(vm.ConstructorName, "(II"+objectTestDesc+")V", vm.AccPublic)
	ctor.Load(vm.KindRef, 0)
	ctor.Load(vm.KindInt, 1)
	ctor.Load(vm.KindRef, 3)
	ctor.Invokespecial(objectTestClass, vm.ConstructorName, "(I"+objectTestDesc+")V")
	ctor.Load(vm.KindRef, 0)
	ctor.Load(vm.KindInt, 2)
	ctor.Putfield(extendTestClass, "another", "I")
	ctor.Return(vm.KindVoid)

	// create() = value()*10 + another of new ExtendTest(1, 2, null), and
	// asserts both fields
	create := b.Method("create", "()I", vm.AccPublic|vm.AccStatic)
	emitNew(create, extendTestClass, "(II"+objectTestDesc+")V", func() {
		create.Iconst(1)
		create.Iconst(2)
		create.Emit(vm.OpAconstNull)
	})
	create.Store(vm.KindRef, 0)
	create.Iconst(1)
	create.Load(vm.KindRef, 0)
	create.Getfield(objectTestClass, "value", "I")
	assertEq(create, vm.KindInt)
	create.Iconst(2)
	create.Load(vm.KindRef, 0)
	create.Getfield(extendTestClass, "another", "I")
	assertEq(create, vm.KindInt)
	create.Load(vm.KindRef, 0)
	create.Invokevirtual(objectTestClass, "value", "()I")
	create.Iconst(10)
	create.Emit(vm.OpImul)
	create.Load(vm.KindRef, 0)
	create.Getfield(extendTestClass, "another", "I")
	create.Emit(vm.OpIadd)
	create.Return(vm.KindInt)
	return b
}

// ---------------------------------------------------------------------------
// SimpleObject, ExtendedObject and Animal
// ---------------------------------------------------------------------------

// BasicValue is what SimpleObject.basic returns; ExtendedObject adds
// BasicExtension to it.
const (
	BasicValue     = 640
	BasicExtension = 400
	AnimalAge      = 49
	FruitHello     = 543
)

func simpleObjectBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(simpleObjectClass, "")
	b.Field("value", "I", vm.AccPublic)
	b.DefaultConstructor()

	ctor := b.Method(vm.ConstructorName, "(I)V", vm.AccPublic)
	ctor.Load(vm.KindRef, 0)
	ctor.Invokespecial(simpleObjectClass, vm.ConstructorName, "()V")
	ctor.Load(vm.KindRef, 0)
	ctor.Load(vm.KindInt, 1)
	ctor.Putfield(simpleObjectClass, "value", "I")
	ctor.Return(vm.KindVoid)

	basic := b.Method("basic", "()I", vm.AccPublic)
	basic.Iconst(BasicValue)
	basic.Return(vm.KindInt)
	return b
}

func animalBuilder() *vm.ClassBuilder {
	return vm.NewInterfaceBuilder(animalClass).
		AbstractMethod("age", "()I", vm.AccPublic)
}

func extendedObjectBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(extendedObjectClass, simpleObjectClass).Implements(animalClass)
	b.Field("anotherField", "J", vm.AccPublic)

	long := b.Method(vm.ConstructorName, "(J)V", vm.AccPublic)
	long.Load(vm.KindRef, 0)
	long.Invokespecial(simpleObjectClass, vm.ConstructorName, "()V")
	long.Load(vm.KindRef, 0)
	long.Load(vm.KindLong, 1)
	long.Putfield(extendedObjectClass, "anotherField", "J")
	long.Return(vm.KindVoid)

	both := b.Method(vm.ConstructorName, "(IJ)V", vm.AccPublic)
	both.Load(vm.KindRef, 0)
	both.Load(vm.KindInt, 1)
	both.Invokespecial(simpleObjectClass, vm.ConstructorName, "(I)V")
	both.Load(vm.KindRef, 0)
	both.Load(vm.KindLong, 2)
	both.Putfield(extendedObjectClass, "anotherField", "J")
	both.Return(vm.KindVoid)

	basic := b.Method("basic", "()I", vm.AccPublic)
	basic.Load(vm.KindRef, 0)
	basic.Invokespecial(simpleObjectClass, "basic", "()I")
	basic.Iconst(BasicExtension)
	basic.Emit(vm.OpIadd)
	basic.Return(vm.KindInt)

	age := b.Method("age", "()I", vm.AccPublic)
	age.Iconst(AnimalAge)
	age.Return(vm.KindInt)
	return b
}

// ---------------------------------------------------------------------------
// Fruit and InterfaceTest
// ---------------------------------------------------------------------------

func fruitBuilder() *vm.ClassBuilder {
	b := vm.NewInterfaceBuilder(fruitClass).
		AbstractMethod("hello", "()I", vm.AccPublic)

	// ripe is a default method built on hello
	ripe := b.Method("ripe", "()I", vm.AccPublic)
	ripe.Load(vm.KindRef, 0)
	ripe.Invokeinterface(fruitClass, "hello", "()I")
	ripe.Iconst(1)
	ripe.Emit(vm.OpIadd)
	ripe.Return(vm.KindInt)
	return b
}

func interfaceTestBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(interfaceTestClass, "").Implements(fruitClass)
	b.Field("hi", "I", vm.AccPublic)
	b.DefaultConstructor()

	hello := b.Method("hello", "()I", vm.AccPublic)
	hello.Load(vm.KindRef, 0)
	hello.Getfield(interfaceTestClass, "hi", "I")
	hello.Return(vm.KindInt)

	// hi() sets the field through a fresh instance and asserts the
	// interface call sees it
	hi := b.Method("hi", "()V", vm.AccPublic|vm.AccStatic)
	emitNew(hi, interfaceTestClass, "()V", nil)
	hi.Store(vm.KindRef, 0)
	hi.Load(vm.KindRef, 0)
	hi.Iconst(FruitHello)
	hi.Putfield(interfaceTestClass, "hi", "I")
	hi.Iconst(FruitHello)
	hi.Load(vm.KindRef, 0)
	hi.Invokeinterface(fruitClass, "hello", "()I")
	assertEq(hi, vm.KindInt)
	hi.Return(vm.KindVoid)
	return b
}

// ---------------------------------------------------------------------------
// ObjectTests: host-visible scenarios
// ---------------------------------------------------------------------------

func objectTestsBuilder() *vm.ClassBuilder {
	b := vm.NewClassBuilder(objectTestsClass, "")
	static := vm.AccPublic | vm.AccStatic

	createSimple := b.Method("createSimple", "()I", static)
	emitNew(createSimple, simpleObjectClass, "()V", nil)
	createSimple.Getfield(simpleObjectClass, "value", "I")
	createSimple.Return(vm.KindInt)

	numbered := b.Method("createSimpleNumbered", "(I)I", static)
	emitNew(numbered, simpleObjectClass, "(I)V", func() { numbered.Load(vm.KindInt, 0) })
	numbered.Getfield(simpleObjectClass, "value", "I")
	numbered.Return(vm.KindInt)

	set := b.Method("setSimpleField", "(I)I", static)
	emitNew(set, simpleObjectClass, "()V", nil)
	set.Store(vm.KindRef, 1)
	set.Load(vm.KindRef, 1)
	set.Load(vm.KindInt, 0)
	set.Putfield(simpleObjectClass, "value", "I")
	set.Load(vm.KindRef, 1)
	set.Getfield(simpleObjectClass, "value", "I")
	set.Return(vm.KindInt)

	// simpleInvocation(extended) calls basic() through SimpleObject's slot.
	inv := b.Method("simpleInvocation", "(Z)I", static)
	plain, call := inv.NewLabel(), inv.NewLabel()
	inv.Load(vm.KindInt, 0)
	inv.EmitJump(vm.OpIfeq, plain)
	emitNew(inv, extendedObjectClass, "(J)V", func() { inv.Lconst(5) })
	inv.Store(vm.KindRef, 1)
	inv.EmitJump(vm.OpGoto, call)
	inv.Mark(plain)
	emitNew(inv, simpleObjectClass, "()V", nil)
	inv.Store(vm.KindRef, 1)
	inv.Mark(call)
	inv.Load(vm.KindRef, 1)
	inv.Invokevirtual(simpleObjectClass, "basic", "()I")
	inv.Return(vm.KindInt)

	// createExtended() = value*1000 + anotherField of new ExtendedObject(400, 500)
	ext := b.Method("createExtended", "()I", static)
	emitNew(ext, extendedObjectClass, "(IJ)V", func() {
		ext.Iconst(400)
		ext.Lconst(500)
	})
	ext.Store(vm.KindRef, 0)
	ext.Load(vm.KindRef, 0)
	ext.Getfield(simpleObjectClass, "value", "I")
	ext.Iconst(1000)
	ext.Emit(vm.OpImul)
	ext.Load(vm.KindRef, 0)
	ext.Getfield(extendedObjectClass, "anotherField", "J")
	ext.Emit(vm.OpL2i)
	ext.Emit(vm.OpIadd)
	ext.Return(vm.KindInt)

	// casting() = age*100 + (o instanceof SimpleObject)*10 + (o instanceof Fruit)
	cast := b.Method("casting", "()I", static)
	emitNew(cast, extendedObjectClass, "(J)V", func() { cast.Lconst(1) })
	cast.Store(vm.KindRef, 0)
	cast.Load(vm.KindRef, 0)
	cast.Checkcast(animalClass)
	cast.Invokeinterface(animalClass, "age", "()I")
	cast.Iconst(100)
	cast.Emit(vm.OpImul)
	cast.Load(vm.KindRef, 0)
	cast.Instanceof(simpleObjectClass)
	cast.Iconst(10)
	cast.Emit(vm.OpImul)
	cast.Emit(vm.OpIadd)
	cast.Load(vm.KindRef, 0)
	cast.Instanceof(fruitClass)
	cast.Emit(vm.OpIadd)
	cast.Return(vm.KindInt)

	badCast := b.Method("badCast", "()I", static)
	emitNew(badCast, simpleObjectClass, "()V", nil)
	badCast.Checkcast(animalClass)
	badCast.Invokeinterface(animalClass, "age", "()I")
	badCast.Return(vm.KindInt)

	iface := b.Method("interfaceCall", "()I", static)
	emitNew(iface, extendedObjectClass, "(J)V", func() { iface.Lconst(0) })
	iface.Invokeinterface(animalClass, "age", "()I")
	iface.Return(vm.KindInt)

	for _, method := range []string{"hello", "ripe"} {
		m := b.Method("fruit_"+method, "()I", static)
		emitNew(m, interfaceTestClass, "()V", nil)
		m.Store(vm.KindRef, 0)
		m.Load(vm.KindRef, 0)
		m.Iconst(FruitHello)
		m.Putfield(interfaceTestClass, "hi", "I")
		m.Load(vm.KindRef, 0)
		m.Invokeinterface(fruitClass, method, "()I")
		m.Return(vm.KindInt)
	}

	nullField := b.Method("nullField", "()I", static)
	nullField.Emit(vm.OpAconstNull)
	nullField.Getfield(simpleObjectClass, "value", "I")
	nullField.Return(vm.KindInt)

	nullCall := b.Method("nullCall", "()I", static)
	nullCall.Emit(vm.OpAconstNull)
	nullCall.Invokevirtual(simpleObjectClass, "basic", "()I")
	nullCall.Return(vm.KindInt)

	// recurse never terminates; the frame limit stops it
	recurse := b.Method("recurse", "(I)I", static)
	recurse.Load(vm.KindInt, 0)
	recurse.Iconst(1)
	recurse.Emit(vm.OpIadd)
	recurse.Invokestatic(objectTestsClass, "recurse", "(I)I")
	recurse.Return(vm.KindInt)
	return b
}

func objectFixture() Fixture {
	return Fixture{
		Name: "object",
		Classes: []func() *vm.ClassBuilder{
			objectTestBuilder,
			extendTestBuilder,
			simpleObjectBuilder,
			animalBuilder,
			extendedObjectBuilder,
			fruitBuilder,
			interfaceTestBuilder,
			objectTestsBuilder,
		},
		Checks: []Check{
			{Name: "simpleTest", Run: expect(objectTestClass, "simpleTest", "(I)I", vm.Int(69), vm.Int(69))},
			{Name: "simpleTestObject", Run: expect(objectTestClass, "simpleTestObject", "(I)I", vm.Int(42), vm.Int(21))},
			{Name: "gcTest", Run: expect(objectTestClass, "gcTest", "(I)I", vm.Int(1), vm.Int(10000))},
			{Name: "chain", Run: expect(objectTestClass, "chain", "(I)I", vm.Int(500), vm.Int(500))},
			{Name: "extend", Run: expect(extendTestClass, "create", "()I", vm.Int(12))},
			{Name: "createSimple", Run: expect(objectTestsClass, "createSimple", "()I", vm.Int(0))},
			{Name: "createSimpleNumbered", Run: expect(objectTestsClass, "createSimpleNumbered", "(I)I", vm.Int(69), vm.Int(69))},
			{Name: "setSimpleField", Run: expect(objectTestsClass, "setSimpleField", "(I)I", vm.Int(-7), vm.Int(-7))},
			{Name: "simpleInvocation", Run: expect(objectTestsClass, "simpleInvocation", "(Z)I", vm.Int(BasicValue), vm.Bool(false))},
			{Name: "extendedInvocation", Run: expect(objectTestsClass, "simpleInvocation", "(Z)I", vm.Int(BasicValue+BasicExtension), vm.Bool(true))},
			{Name: "createExtended", Run: expect(objectTestsClass, "createExtended", "()I", vm.Int(400500))},
			{Name: "casting", Run: expect(objectTestsClass, "casting", "()I", vm.Int(AnimalAge*100+10))},
			{Name: "badCast", Run: expectFault(objectTestsClass, "badCast", "()I", vm.FaultClassCast)},
			{Name: "interfaceCall", Run: expect(objectTestsClass, "interfaceCall", "()I", vm.Int(AnimalAge))},
			{Name: "fruit", Run: expect(objectTestsClass, "fruit_hello", "()I", vm.Int(FruitHello))},
			{Name: "defaultMethod", Run: expect(objectTestsClass, "fruit_ripe", "()I", vm.Int(FruitHello+1))},
			{Name: "hi", Run: run(interfaceTestClass, "hi")},
			{Name: "nullField", Run: expectFault(objectTestsClass, "nullField", "()I", vm.FaultNullReference)},
			{Name: "nullCall", Run: expectFault(objectTestsClass, "nullCall", "()I", vm.FaultNullReference)},
			{Name: "stackOverflow", Run: expectFault(objectTestsClass, "recurse", "(I)I", vm.FaultStackOverflow, vm.Int(0))},
		},
	}
}
