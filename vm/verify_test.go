package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCode builds a class whose single static method f()I has the given
// body, bypassing the builder's own checks.
func withCode(t *testing.T, code []byte, maxStack, maxLocals uint16) []byte {
	t.Helper()
	return withPoolCode(t, func(*ClassBuilder) []byte { return code }, maxStack, maxLocals)
}

// withPoolCode is withCode for bodies that name constants added to the
// class's pool by code.
func withPoolCode(t *testing.T, code func(b *ClassBuilder) []byte, maxStack, maxLocals uint16) []byte {
	t.Helper()
	b := NewClassBuilder("v/Subject", "")
	m := b.Method("f", "()I", AccPublic|AccStatic)
	m.Iconst(0)
	m.Return(KindInt)
	// Make sure a method ref is in the pool for the tests that need one.
	b.MethodRef("v/Subject", "f", "()I")
	body := code(b)
	cf, err := b.Build()
	require.NoError(t, err)
	cf.Methods[0].Code = body
	cf.Methods[0].MaxStack = maxStack
	cf.Methods[0].MaxLocals = maxLocals
	data, err := WriteClassFile(cf)
	require.NoError(t, err)
	return data
}

func TestVerifierAcceptsValidCode(t *testing.T) {
	data := withCode(t, []byte{byte(OpIconst2), byte(OpIconst3), byte(OpIadd), byte(OpIreturn)}, 2, 0)
	c, err := NewLoader().LoadClass(data)
	require.NoError(t, err)

	got, err := NewVM(c.Loader(), DefaultConfig()).Invoke(bg, "v/Subject", "f", "()I")
	require.NoError(t, err)
	assert.Equal(t, Int(5), got)
}

func TestVerifierRejects(t *testing.T) {
	tests := []struct {
		name      string
		code      []byte
		maxStack  uint16
		maxLocals uint16
		want      string
	}{
		{"underflow", []byte{byte(OpIadd), byte(OpIreturn)}, 2, 0, "underflow"},
		{"category mismatch", []byte{byte(OpLconst0), byte(OpIreturn)}, 2, 0, "category"},
		{"wrong return kind", []byte{byte(OpFconst0), byte(OpFreturn)}, 1, 0, "float return"},
		{"falls off end", []byte{byte(OpIconst1)}, 1, 0, "falls off the end"},
		{"jump into operand", []byte{byte(OpGoto), 0, 4, byte(OpBipush), 1, byte(OpIreturn)}, 1, 0, "not an instruction boundary"},
		{"local outside frame", []byte{byte(OpIload), 3, byte(OpIreturn)}, 1, 2, "outside max_locals"},
		{"max stack too small", []byte{byte(OpIconst1), byte(OpIconst1), byte(OpIadd), byte(OpIreturn)}, 1, 0, "max stack is 1"},
		{"inconsistent merge", []byte{
			byte(OpIconst0),
			byte(OpIfeq), 0, 5, // to the ireturn with an empty stack
			byte(OpIconst1),
			byte(OpNop),
			byte(OpIreturn),
		}, 1, 0, "inconsistent"},
		{"unsupported", []byte{byte(OpMonitorenter), byte(OpIconst0), byte(OpIreturn)}, 1, 0, "unsupported"},
		{"bad constant index", []byte{byte(OpLdc), 200, byte(OpIreturn)}, 1, 0, "ldc"},
		{"unknown opcode", []byte{0xfe}, 1, 0, "unknown opcode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadClass(withCode(t, tt.code, tt.maxStack, tt.maxLocals))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVerifierChecksUnreachableCode(t *testing.T) {
	tests := []struct {
		name string
		code func(b *ClassBuilder) []byte
		want string
	}{
		{"new of array type", func(b *ClassBuilder) []byte {
			idx := b.Class("[I")
			return []byte{byte(OpIconst0), byte(OpIreturn), byte(OpNew), byte(idx >> 8), byte(idx)}
		}, "new of array type"},
		{"missing constant", func(*ClassBuilder) []byte {
			return []byte{byte(OpIconst0), byte(OpIreturn), byte(OpLdc), 250, byte(OpPop), byte(OpIconst0), byte(OpIreturn)}
		}, "ldc"},
		{"field ref is a method ref", func(b *ClassBuilder) []byte {
			idx := b.MethodRef("v/Subject", "f", "()I")
			return []byte{byte(OpIconst0), byte(OpIreturn), byte(OpGetstatic), byte(idx >> 8), byte(idx), byte(OpIreturn)}
		}, "getstatic"},
		{"local outside frame", func(*ClassBuilder) []byte {
			return []byte{byte(OpIconst0), byte(OpIreturn), byte(OpIload), 9, byte(OpIreturn)}
		}, "outside max_locals"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				_, err = NewLoader().LoadClass(withPoolCode(t, tt.code, 1, 0))
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVerifierReportsEveryMethod(t *testing.T) {
	b := NewClassBuilder("v/Many", "")
	for _, name := range []string{"a", "b"} {
		m := b.Method(name, "()I", AccPublic|AccStatic)
		m.Iconst(0)
		m.Return(KindInt)
	}
	cf, err := b.Build()
	require.NoError(t, err)
	for i := range cf.Methods {
		cf.Methods[i].Code = []byte{byte(OpIadd), byte(OpIreturn)}
	}
	data, err := WriteClassFile(cf)
	require.NoError(t, err)

	_, err = NewLoader().LoadClass(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a()I")
	assert.Contains(t, err.Error(), "b()I")
}

func TestVerifierChecksSymbols(t *testing.T) {
	b := NewClassBuilder("v/Refs", "")
	m := b.Method("f", "()I", AccPublic|AccStatic)
	m.Getstatic("v/Refs", "missing", "I")
	m.Return(KindInt)
	_, err := NewLoader().LoadClass(mustBytes(t, b))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)

	// A static method called with invokevirtual is a structural error.
	b = NewClassBuilder("v/Shape", "")
	b.DefaultConstructor()
	s := b.Method("s", "()V", AccPublic|AccStatic)
	s.Return(KindVoid)
	v := b.Method("g", "()V", AccPublic)
	v.Load(KindRef, 0)
	v.Invokevirtual("v/Shape", "s", "()V")
	v.Return(KindVoid)
	_, err = NewLoader().LoadClass(mustBytes(t, b))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMethodShapeRules(t *testing.T) {
	tests := []struct {
		name  string
		build func() *ClassBuilder
	}{
		{"abstract in concrete class", func() *ClassBuilder {
			b := NewClassBuilder("v/Concrete", "")
			b.AbstractMethod("f", "()V", AccPublic)
			return b
		}},
		{"static constructor", func() *ClassBuilder {
			b := NewClassBuilder("v/Ctor", "")
			m := b.Method(ConstructorName, "()V", AccPublic|AccStatic)
			m.Return(KindVoid)
			return b
		}},
		{"instance initializer", func() *ClassBuilder {
			b := NewClassBuilder("v/Clinit", "")
			m := b.Method(InitializerName, "()V", AccPublic)
			m.Return(KindVoid)
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadClass(mustBytes(t, tt.build()))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
