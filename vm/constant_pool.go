package vm

import (
	"fmt"
	"math"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Constant pool entries
// ---------------------------------------------------------------------------

// ConstantTag identifies the type of a constant pool entry. The numbering
// follows the classic class file tags.
type ConstantTag uint8

const (
	TagUtf8               ConstantTag = 1
	TagInteger            ConstantTag = 3
	TagFloat              ConstantTag = 4
	TagLong               ConstantTag = 5
	TagDouble             ConstantTag = 6
	TagClass              ConstantTag = 7
	TagString             ConstantTag = 8
	TagFieldRef           ConstantTag = 9
	TagMethodRef          ConstantTag = 10
	TagInterfaceMethodRef ConstantTag = 11
	TagNameAndType        ConstantTag = 12
)

// String implements the Stringer interface.
func (t ConstantTag) String() string {
	switch t {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldRef:
		return "Fieldref"
	case TagMethodRef:
		return "Methodref"
	case TagInterfaceMethodRef:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

func (t ConstantTag) valid() bool {
	return t == TagUtf8 || (t >= TagInteger && t <= TagNameAndType)
}

// Constant is one constant pool entry.
//
// Numeric entries keep their raw bit pattern in Bits. Symbolic entries use A
// and B as pool indices: Class and String use A for the Utf8 name; the member
// refs use A for the Class and B for the NameAndType; NameAndType uses A for
// the name and B for the descriptor.
type Constant struct {
	Tag  ConstantTag
	Text string
	Bits uint64
	A, B uint16

	resolved atomic.Pointer[resolution]
}

// resolution caches the target of a symbolic entry after first use.
type resolution struct {
	class  *Class
	field  *Field
	method *Method
}

// IntegerConstant returns an Integer entry.
func IntegerConstant(v int32) *Constant {
	return &Constant{Tag: TagInteger, Bits: uint64(uint32(v))}
}

// LongConstant returns a Long entry.
func LongConstant(v int64) *Constant {
	return &Constant{Tag: TagLong, Bits: uint64(v)}
}

// FloatConstant returns a Float entry.
func FloatConstant(v float32) *Constant {
	return &Constant{Tag: TagFloat, Bits: uint64(math.Float32bits(v))}
}

// DoubleConstant returns a Double entry.
func DoubleConstant(v float64) *Constant {
	return &Constant{Tag: TagDouble, Bits: math.Float64bits(v)}
}

// Utf8Constant returns a Utf8 entry.
func Utf8Constant(s string) *Constant {
	return &Constant{Tag: TagUtf8, Text: s}
}

// Value converts a numeric entry to its stack value.
func (c *Constant) Value() Value {
	switch c.Tag {
	case TagInteger:
		return Int(int32(uint32(c.Bits)))
	case TagLong:
		return Long(int64(c.Bits))
	case TagFloat:
		return Value{Kind: KindFloat, Bits: uint64(uint32(c.Bits))}
	case TagDouble:
		return Value{Kind: KindDouble, Bits: c.Bits}
	}
	return Value{}
}

// IsWide reports whether the entry is loaded by ldc2_w.
func (c *Constant) IsWide() bool {
	return c.Tag == TagLong || c.Tag == TagDouble
}

// ---------------------------------------------------------------------------
// ConstantPool
// ---------------------------------------------------------------------------

// ConstantPool holds a class's constants. Index 0 is never valid.
type ConstantPool struct {
	entries []*Constant
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: []*Constant{nil}}
}

// Len returns the number of slots including the unused slot 0.
func (p *ConstantPool) Len() int {
	return len(p.entries)
}

// Add appends an entry and returns its index.
func (p *ConstantPool) Add(c *Constant) uint16 {
	p.entries = append(p.entries, c)
	return uint16(len(p.entries) - 1)
}

// Entries returns entries 1..Len()-1.
func (p *ConstantPool) Entries() []*Constant {
	return p.entries[1:]
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i int) (*Constant, error) {
	if i <= 0 || i >= len(p.entries) || p.entries[i] == nil {
		return nil, fmt.Errorf("constant pool index %d out of range", i)
	}
	return p.entries[i], nil
}

// Expect returns the entry at index i if it has one of the given tags.
func (p *ConstantPool) Expect(i int, tags ...ConstantTag) (*Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return nil, fmt.Errorf("constant pool index %d is %s, want %v", i, c.Tag, tags)
}

// Utf8 returns the text of a Utf8 entry.
func (p *ConstantPool) Utf8(i int) (string, error) {
	c, err := p.Expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName returns the name referenced by a Class entry.
func (p *ConstantPool) ClassName(i int) (string, error) {
	c, err := p.Expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(int(c.A))
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *ConstantPool) NameAndType(i int) (string, string, error) {
	c, err := p.Expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := p.Utf8(int(c.A))
	if err != nil {
		return "", "", err
	}
	desc, err := p.Utf8(int(c.B))
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef is the symbolic content of a field or method reference.
type MemberRef struct {
	Tag        ConstantTag
	Class      string
	Name       string
	Descriptor string
}

// String implements the Stringer interface.
func (r MemberRef) String() string {
	if r.Tag == TagFieldRef {
		return r.Class + "." + r.Name + ":" + r.Descriptor
	}
	return r.Class + "." + r.Name + r.Descriptor
}

// MemberRef decodes a Fieldref, Methodref or InterfaceMethodref entry.
func (p *ConstantPool) MemberRef(i int, tags ...ConstantTag) (MemberRef, error) {
	if len(tags) == 0 {
		tags = []ConstantTag{TagFieldRef, TagMethodRef, TagInterfaceMethodRef}
	}
	c, err := p.Expect(i, tags...)
	if err != nil {
		return MemberRef{}, err
	}
	class, err := p.ClassName(int(c.A))
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(int(c.B))
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Tag: c.Tag, Class: class, Name: name, Descriptor: desc}, nil
}

// Validate checks that every entry has a known tag and that symbolic entries
// point at entries of the right type.
func (p *ConstantPool) Validate() error {
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c == nil {
			return fmt.Errorf("constant pool index %d is empty", i)
		}
		if !c.Tag.valid() {
			return fmt.Errorf("constant pool index %d has unknown tag %d", i, c.Tag)
		}
		var err error
		switch c.Tag {
		case TagClass, TagString:
			_, err = p.Utf8(int(c.A))
		case TagNameAndType:
			_, _, err = p.NameAndType(i)
		case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
			_, err = p.MemberRef(i, c.Tag)
		}
		if err != nil {
			return fmt.Errorf("constant pool index %d (%s): %w", i, c.Tag, err)
		}
	}
	return nil
}
