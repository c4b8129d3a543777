package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Heap: arena of generation-checked slots
// ---------------------------------------------------------------------------

// RootProvider supplies GC roots. The interpreter's frame stack and the VM's
// static storage are providers.
type RootProvider interface {
	VisitRoots(visit func(Ref))
}

type heapSlot struct {
	item   HeapItem
	gen    uint32
	size   int64
	marked bool
}

// Heap owns every object and array of one VM.
//
// Allocation is accounted in bytes against a budget. An allocation that
// would exceed the budget runs a full collection first and fails with a
// HeapExhausted fault only if the request still does not fit.
type Heap struct {
	slots []heapSlot
	free  []int

	used      int64
	budget    int64
	threshold int64
	fraction  float64
	live      int

	providers []RootProvider
	pinned    map[Ref]int
	protected []Ref

	totals HeapStats
	tag    string
}

// HeapStats are cumulative counters since the heap was created.
type HeapStats struct {
	Cycles          int
	Allocations     int64
	AllocatedBytes  int64
	TotalFreed      int64
	TotalFreedBytes int64
	PeakUsed        int64
}

// NewHeap creates a heap with the given byte budget. A budget <= 0 means
// unlimited.
func NewHeap(budget int64) *Heap {
	if budget <= 0 {
		budget = math.MaxInt64
	}
	return &Heap{
		budget:    budget,
		threshold: budget,
		pinned:    make(map[Ref]int),
	}
}

// SetThreshold makes allocation collect early once fraction of the free
// headroom left by the previous collection has been used. Fractions outside
// (0, 1) disable the early trigger.
func (h *Heap) SetThreshold(fraction float64) {
	if fraction <= 0 || fraction >= 1 || h.budget == math.MaxInt64 {
		fraction = 0
	}
	h.fraction = fraction
	h.resetThreshold()
}

func (h *Heap) resetThreshold() {
	if h.fraction == 0 {
		h.threshold = h.budget
		return
	}
	h.threshold = h.used + int64(float64(h.budget-h.used)*h.fraction)
}

// Budget returns the byte budget.
func (h *Heap) Budget() int64 { return h.budget }

// Used returns the bytes currently accounted to live and unreclaimed items.
func (h *Heap) Used() int64 { return h.used }

// Live returns the number of items currently in the arena.
func (h *Heap) Live() int { return h.live }

// Stats returns cumulative counters.
func (h *Heap) Stats() HeapStats { return h.totals }

// AddRoots registers a root provider.
func (h *Heap) AddRoots(p RootProvider) {
	h.providers = append(h.providers, p)
}

// Pin keeps r alive until a matching Unpin. Pins nest.
func (h *Heap) Pin(r Ref) {
	if !r.IsNull() {
		h.pinned[r]++
	}
}

// Unpin releases one Pin of r.
func (h *Heap) Unpin(r Ref) {
	if n := h.pinned[r]; n > 1 {
		h.pinned[r] = n - 1
	} else {
		delete(h.pinned, r)
	}
}

// Protect registers r as a transient root and returns a function releasing
// it together with everything protected after it.
func (h *Heap) Protect(r Ref) (release func()) {
	mark := len(h.protected)
	h.protected = append(h.protected, r)
	return func() {
		h.protected = h.protected[:mark]
	}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// AllocObject allocates an instance of c with zeroed fields.
func (h *Heap) AllocObject(c *Class) (Ref, error) {
	if c.IsAbstract() {
		return Null, newFault(FaultInternal, "cannot instantiate abstract %s", c.Name)
	}
	size := objectSize(c)
	if err := h.reserve(size); err != nil {
		return Null, err
	}
	obj := &Object{Class: c, Fields: make([]Value, c.NumSlots)}
	for _, f := range c.InstanceFields {
		obj.Fields[f.Offset] = zeroValue(f.Kind)
	}
	return h.store(obj, size), nil
}

// AllocArray allocates an array of the given array type ("[I", "[Lpkg/A;",
// "[[J") with zeroed elements.
func (h *Heap) AllocArray(arrayType string, length int32) (Ref, error) {
	if length < 0 {
		return Null, newFault(FaultNegativeLength, "array length %d", length)
	}
	if !isArrayType(arrayType) {
		return Null, newFault(FaultInternal, "%q is not an array type", arrayType)
	}
	elemType, elemKind := arrayElementType(arrayType)
	size := arraySize(elemKind, length)
	if err := h.reserve(size); err != nil {
		return Null, err
	}
	arr := &Array{
		Type:     arrayType,
		ElemKind: elemKind,
		ElemType: elemType,
		Elems:    make([]Value, length),
	}
	zero := zeroValue(elemKind)
	for i := range arr.Elems {
		arr.Elems[i] = zero
	}
	return h.store(arr, size), nil
}

// reserve makes room for size bytes, collecting if needed.
func (h *Heap) reserve(size int64) error {
	if h.used+size <= h.threshold {
		return nil
	}
	h.Collect()
	if h.used+size <= h.budget {
		return nil
	}
	gcLog.Warningf("%sheap exhausted: need %d bytes, %d of %d in use", h.tag, size, h.used, h.budget)
	return &Fault{
		Kind:     FaultHeapExhausted,
		Message:  "heap exhausted",
		Operands: []Value{Long(size), Long(h.used), Long(h.budget)},
	}
}

func (h *Heap) store(item HeapItem, size int64) Ref {
	var idx int
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.slots = append(h.slots, heapSlot{})
		idx = len(h.slots) - 1
	}
	s := &h.slots[idx]
	s.item = item
	s.size = size
	s.marked = false
	h.used += size
	h.live++
	h.totals.Allocations++
	h.totals.AllocatedBytes += size
	if h.used > h.totals.PeakUsed {
		h.totals.PeakUsed = h.used
	}
	return makeRef(idx, s.gen)
}

// ---------------------------------------------------------------------------
// Access
// ---------------------------------------------------------------------------

// Get returns the item r refers to. Null and dangling references fault.
func (h *Heap) Get(r Ref) (HeapItem, error) {
	if r.IsNull() {
		return nil, newFault(FaultNullReference, "null reference")
	}
	idx := r.index()
	if idx < 0 || idx >= len(h.slots) || h.slots[idx].item == nil || h.slots[idx].gen != r.generation() {
		return nil, newFault(FaultNullReference, "dangling reference %s", r)
	}
	return h.slots[idx].item, nil
}

// Valid reports whether r refers to a live item.
func (h *Heap) Valid(r Ref) bool {
	_, err := h.Get(r)
	return err == nil
}

// Object returns the object r refers to.
func (h *Heap) Object(r Ref) (*Object, error) {
	item, err := h.Get(r)
	if err != nil {
		return nil, err
	}
	obj, ok := item.(*Object)
	if !ok {
		return nil, newFault(FaultClassCast, "%s is not an object", item.TypeName())
	}
	return obj, nil
}

// Array returns the array r refers to.
func (h *Heap) Array(r Ref) (*Array, error) {
	item, err := h.Get(r)
	if err != nil {
		return nil, err
	}
	arr, ok := item.(*Array)
	if !ok {
		return nil, newFault(FaultClassCast, "%s is not an array", item.TypeName())
	}
	return arr, nil
}

// ForEach calls fn for every item in the arena.
func (h *Heap) ForEach(fn func(Ref, HeapItem)) {
	for i := range h.slots {
		if s := &h.slots[i]; s.item != nil {
			fn(makeRef(i, s.gen), s.item)
		}
	}
}
