package vm

// ---------------------------------------------------------------------------
// Runtime resolution
// ---------------------------------------------------------------------------

// Symbolic references are resolved on first execution and cached in the
// constant pool entry. Verification already proved every reference
// resolvable, so a failure here means the class table changed underneath.

func (l *Loader) resolvedEntry(pool *ConstantPool, index int, tags ...ConstantTag) (*Constant, *resolution, error) {
	c, err := pool.Expect(index, tags...)
	if err != nil {
		return nil, nil, newFault(FaultInternal, "%v", err)
	}
	return c, c.resolved.Load(), nil
}

// classRef resolves a Class entry. Array types yield a nil class and their
// descriptor.
func (l *Loader) classRef(pool *ConstantPool, index int) (*Class, string, error) {
	name, err := pool.ClassName(index)
	if err != nil {
		return nil, "", newFault(FaultInternal, "%v", err)
	}
	if isArrayType(name) {
		return nil, name, nil
	}
	c, r, err := l.resolvedEntry(pool, index, TagClass)
	if err != nil {
		return nil, "", err
	}
	if r != nil {
		return r.class, name, nil
	}
	class, err := l.Resolve(name)
	if err != nil {
		return nil, "", &Fault{Kind: FaultInternal, Message: "resolving " + name, Err: err}
	}
	c.resolved.Store(&resolution{class: class})
	return class, name, nil
}

// fieldRef resolves a Fieldref entry.
func (l *Loader) fieldRef(pool *ConstantPool, index int) (*Field, error) {
	c, r, err := l.resolvedEntry(pool, index, TagFieldRef)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r.field, nil
	}
	ref, err := pool.MemberRef(index, TagFieldRef)
	if err != nil {
		return nil, newFault(FaultInternal, "%v", err)
	}
	owner, err := l.Resolve(ref.Class)
	if err != nil {
		return nil, &Fault{Kind: FaultInternal, Message: "resolving " + ref.Class, Err: err}
	}
	f := owner.FindField(ref.Name, ref.Descriptor)
	if f == nil {
		return nil, newFault(FaultInternal, "field %s vanished", ref)
	}
	c.resolved.Store(&resolution{class: owner, field: f})
	return f, nil
}

// methodRef resolves a Methodref or InterfaceMethodref entry to the method
// named by the reference, before any receiver-based selection.
func (l *Loader) methodRef(pool *ConstantPool, index int) (*Method, error) {
	c, r, err := l.resolvedEntry(pool, index, TagMethodRef, TagInterfaceMethodRef)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r.method, nil
	}
	ref, err := pool.MemberRef(index, c.Tag)
	if err != nil {
		return nil, newFault(FaultInternal, "%v", err)
	}
	owner, err := l.Resolve(ref.Class)
	if err != nil {
		return nil, &Fault{Kind: FaultInternal, Message: "resolving " + ref.Class, Err: err}
	}
	m := owner.FindMethod(ref.Name, ref.Descriptor)
	if m == nil {
		return nil, newFault(FaultInternal, "method %s vanished", ref)
	}
	c.resolved.Store(&resolution{class: owner, method: m})
	return m, nil
}

// ---------------------------------------------------------------------------
// Method selection
// ---------------------------------------------------------------------------

// selectVirtual picks the implementation of resolved for a receiver whose
// runtime class is recv. Both invokevirtual and invokeinterface land here:
// vtable slots serve class methods, the itable serves interface methods.
func selectVirtual(recv *Class, resolved *Method) (*Method, error) {
	var m *Method
	switch {
	case resolved.Slot >= 0:
		if !recv.IsSubclassOf(resolved.Owner) {
			return nil, newFault(FaultClassCast, "%s is not a %s", recv.Name, resolved.Owner.Name)
		}
		m = recv.VTable.Lookup(resolved.Slot)
	case resolved.IfaceSlot >= 0:
		if recv.ITable == nil {
			return nil, newFault(FaultClassCast, "%s does not implement %s", recv.Name, resolved.Owner.Name)
		}
		m = recv.ITable.Lookup(resolved.Owner.InterfaceID, resolved.IfaceSlot)
		if m == nil {
			return nil, newFault(FaultClassCast, "%s does not implement %s", recv.Name, resolved.Owner.Name)
		}
	default:
		// private or final-by-construction: no dispatch
		return resolved, nil
	}
	if m == nil {
		return nil, newFault(FaultInternal, "%s has no slot %d for %s", recv.Name, resolved.Slot, resolved)
	}
	if m.IsAbstract() {
		return nil, newFault(FaultInternal, "abstract method %s called on %s", m, recv.Name)
	}
	return m, nil
}

// isInstance reports whether the heap item is assignable to the named type.
func (l *Loader) isInstance(item HeapItem, target *Class, targetName string) bool {
	switch it := item.(type) {
	case *Object:
		if target == nil {
			return false
		}
		return it.Class.IsAssignableTo(target)
	case *Array:
		if target != nil {
			return target.Name == ObjectClassName
		}
		return l.arrayAssignable(it.Type, targetName)
	}
	return false
}

// arrayAssignable implements array covariance for reference element types.
func (l *Loader) arrayAssignable(from, to string) bool {
	if from == to {
		return true
	}
	if !isArrayType(to) {
		return to == ObjectClassName
	}
	fe, fk := arrayElementType(from)
	te, tk := arrayElementType(to)
	if fk != KindRef || tk != KindRef {
		return false
	}
	if isArrayType(fe) {
		if isArrayType(te) {
			return l.arrayAssignable(fe, te)
		}
		return te == ObjectClassName
	}
	if isArrayType(te) {
		return false
	}
	fc, tc := l.Lookup(fe), l.Lookup(te)
	return fc != nil && tc != nil && fc.IsAssignableTo(tc)
}

// storeCompatible reports whether v may be stored into an array of
// reference elements of type elemType (aastore).
func (l *Loader) storeCompatible(heap *Heap, elemType string, v Value) (bool, error) {
	if v.AsRef().IsNull() {
		return true, nil
	}
	item, err := heap.Get(v.AsRef())
	if err != nil {
		return false, err
	}
	var target *Class
	if !isArrayType(elemType) {
		if target = l.Lookup(elemType); target == nil {
			return false, nil
		}
	}
	return l.isInstance(item, target, elemType), nil
}
