package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// ClassFile: decoded but unlinked class
// ---------------------------------------------------------------------------

// ClassFile is the in-memory form of a class file: what the reader produces,
// the writer consumes, the builder assembles, and the loader defines.
type ClassFile struct {
	Pool       *ConstantPool
	Flags      AccessFlags
	ThisClass  uint16
	SuperClass uint16 // 0 only for java/lang/Object
	Interfaces []uint16
	Fields     []MemberInfo
	Methods    []MemberInfo
}

// MemberInfo is a field or method entry of a class file. Code, MaxStack and
// MaxLocals are only meaningful for methods with a bytecode body.
type MemberInfo struct {
	Flags           AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	MaxStack        uint16
	MaxLocals       uint16
	Code            []byte
}

// Name returns the class name.
func (cf *ClassFile) Name() (string, error) {
	return cf.Pool.ClassName(int(cf.ThisClass))
}

// SuperName returns the superclass name, or "" when there is none.
func (cf *ClassFile) SuperName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return cf.Pool.ClassName(int(cf.SuperClass))
}

// ---------------------------------------------------------------------------
// Wire form
// ---------------------------------------------------------------------------

// Integer keys keep the payload compact and its canonical encoding stable.
// Floating point constants travel as raw bits so -0.0 and NaN payloads
// survive the round trip.

type wireClass struct {
	Constants  []wireConstant `cbor:"1,keyasint"`
	Flags      uint16         `cbor:"2,keyasint,omitempty"`
	This       uint16         `cbor:"3,keyasint"`
	Super      uint16         `cbor:"4,keyasint,omitempty"`
	Interfaces []uint16       `cbor:"5,keyasint,omitempty"`
	Fields     []wireMember   `cbor:"6,keyasint,omitempty"`
	Methods    []wireMember   `cbor:"7,keyasint,omitempty"`
}

type wireConstant struct {
	Tag  uint8  `cbor:"1,keyasint"`
	Text string `cbor:"2,keyasint,omitempty"`
	Bits uint64 `cbor:"3,keyasint,omitempty"`
	A    uint16 `cbor:"4,keyasint,omitempty"`
	B    uint16 `cbor:"5,keyasint,omitempty"`
}

type wireMember struct {
	Flags      uint16 `cbor:"1,keyasint,omitempty"`
	Name       uint16 `cbor:"2,keyasint"`
	Descriptor uint16 `cbor:"3,keyasint"`
	MaxStack   uint16 `cbor:"4,keyasint,omitempty"`
	MaxLocals  uint16 `cbor:"5,keyasint,omitempty"`
	Code       []byte `cbor:"6,keyasint,omitempty"`
}

var (
	classEncMode cbor.EncMode
	classDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	classEncMode = em
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR dec mode: %v", err))
	}
	classDecMode = dm
}

func toWire(cf *ClassFile) *wireClass {
	w := &wireClass{
		Flags:      uint16(cf.Flags),
		This:       cf.ThisClass,
		Super:      cf.SuperClass,
		Interfaces: cf.Interfaces,
	}
	for _, c := range cf.Pool.Entries() {
		w.Constants = append(w.Constants, wireConstant{
			Tag: uint8(c.Tag), Text: c.Text, Bits: c.Bits, A: c.A, B: c.B,
		})
	}
	for _, f := range cf.Fields {
		w.Fields = append(w.Fields, memberToWire(f))
	}
	for _, m := range cf.Methods {
		w.Methods = append(w.Methods, memberToWire(m))
	}
	return w
}

func memberToWire(m MemberInfo) wireMember {
	return wireMember{
		Flags:      uint16(m.Flags),
		Name:       m.NameIndex,
		Descriptor: m.DescriptorIndex,
		MaxStack:   m.MaxStack,
		MaxLocals:  m.MaxLocals,
		Code:       m.Code,
	}
}

func fromWire(w *wireClass) *ClassFile {
	cf := &ClassFile{
		Pool:       NewConstantPool(),
		Flags:      AccessFlags(w.Flags),
		ThisClass:  w.This,
		SuperClass: w.Super,
		Interfaces: w.Interfaces,
	}
	for _, c := range w.Constants {
		cf.Pool.Add(&Constant{Tag: ConstantTag(c.Tag), Text: c.Text, Bits: c.Bits, A: c.A, B: c.B})
	}
	for _, f := range w.Fields {
		cf.Fields = append(cf.Fields, memberFromWire(f))
	}
	for _, m := range w.Methods {
		cf.Methods = append(cf.Methods, memberFromWire(m))
	}
	return cf
}

func memberFromWire(w wireMember) MemberInfo {
	return MemberInfo{
		Flags:           AccessFlags(w.Flags),
		NameIndex:       w.Name,
		DescriptorIndex: w.Descriptor,
		MaxStack:        w.MaxStack,
		MaxLocals:       w.MaxLocals,
		Code:            w.Code,
	}
}
