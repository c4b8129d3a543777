package vm

import (
	"fmt"
	"strings"
)

// VTable holds the virtual dispatch table for a class.
//
// Methods are stored in an array indexed by slot. A subclass table starts as
// a copy of its parent's, so a slot assigned to a method in a superclass keeps
// its index in every subclass and an override simply replaces the entry.
type VTable struct {
	class   *Class
	methods []*Method
}

// NewVTable creates a vtable for class, inheriting parent's slots.
func NewVTable(class *Class, parent *VTable) *VTable {
	vt := &VTable{class: class}
	if parent != nil {
		vt.methods = make([]*Method, len(parent.methods), len(parent.methods)+8)
		copy(vt.methods, parent.methods)
	}
	return vt
}

// Lookup returns the method at slot, or nil.
func (vt *VTable) Lookup(slot int) *Method {
	if slot >= 0 && slot < len(vt.methods) {
		return vt.methods[slot]
	}
	return nil
}

// Find returns the slot of the method with this name and descriptor, or -1.
func (vt *VTable) Find(name, desc string) int {
	for i, m := range vt.methods {
		if m.Name == name && m.Descriptor == desc {
			return i
		}
	}
	return -1
}

// Install overrides the inherited slot with the same name and descriptor, or
// appends a new slot, and returns the slot used.
func (vt *VTable) Install(m *Method) int {
	if slot := vt.Find(m.Name, m.Descriptor); slot >= 0 {
		vt.methods[slot] = m
		return slot
	}
	vt.methods = append(vt.methods, m)
	return len(vt.methods) - 1
}

// Class returns the class this vtable belongs to.
func (vt *VTable) Class() *Class {
	return vt.class
}

// Len returns the number of slots.
func (vt *VTable) Len() int {
	return len(vt.methods)
}

// Methods returns the slots in order.
func (vt *VTable) Methods() []*Method {
	return vt.methods
}

// ---------------------------------------------------------------------------
// ITable: interface dispatch
// ---------------------------------------------------------------------------

// ITable maps (interface id, interface slot) to the implementing method of
// one concrete class.
type ITable struct {
	rows map[int][]*Method
}

func newITable() *ITable {
	return &ITable{rows: make(map[int][]*Method)}
}

// Lookup returns the implementation of slot of the interface with id iface,
// or nil when the class does not implement it.
func (it *ITable) Lookup(iface, slot int) *Method {
	row, ok := it.rows[iface]
	if !ok || slot < 0 || slot >= len(row) {
		return nil
	}
	return row[slot]
}

// Len returns the number of interfaces in the table.
func (it *ITable) Len() int {
	return len(it.rows)
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// DescribeDispatch lists the vtable slots of c and the itable row of every
// interface it implements, one entry per line.
func DescribeDispatch(c *Class) string {
	var sb strings.Builder
	if vt := c.VTable; vt != nil {
		fmt.Fprintf(&sb, "vtable: %d slots", vt.Len())
		if owner := vt.Class(); owner != c {
			fmt.Fprintf(&sb, " (of %s)", owner.Name)
		}
		sb.WriteString("\n")
		for slot, m := range vt.Methods() {
			fmt.Fprintf(&sb, "  %3d  %s\n", slot, m)
		}
	}
	if it := c.ITable; it != nil && it.Len() > 0 {
		fmt.Fprintf(&sb, "itable: %d interfaces\n", it.Len())
		for _, iface := range c.AllInterfaces() {
			for slot, im := range iface.ifaceMethods {
				fmt.Fprintf(&sb, "  %s.%s%s -> %s\n", iface.Name, im.Name, im.Descriptor,
					it.Lookup(iface.InterfaceID, slot))
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
