package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func TestDecodeSimpleInstructions(t *testing.T) {
	b := NewCodeBuilder()
	b.Emit(OpIload1)
	b.EmitU8(OpBipush, 0xfe)
	b.EmitU16(OpSipush, 0x8000)
	b.EmitLocal(OpAload, 7)
	b.EmitIinc(4, -3)
	b.Emit(OpIreturn)
	code, err := b.Finish()
	require.NoError(t, err)

	insns, err := DecodeAll(code)
	require.NoError(t, err)
	require.Len(t, insns, 6)

	assert.Equal(t, OpIload1, insns[0].Op)
	assert.Equal(t, 1, insns[0].Index)
	assert.Equal(t, int32(-2), insns[1].Const)
	assert.Equal(t, int32(-32768), insns[2].Const)
	assert.Equal(t, OpAload, insns[3].Op)
	assert.Equal(t, 7, insns[3].Index)
	assert.Equal(t, OpIinc, insns[4].Op)
	assert.Equal(t, 4, insns[4].Index)
	assert.Equal(t, int32(-3), insns[4].Const)

	pc := 0
	for _, ins := range insns {
		assert.Equal(t, pc, ins.PC)
		pc += ins.Len
	}
	assert.Equal(t, len(code), pc)
}

func TestDecodeWide(t *testing.T) {
	b := NewCodeBuilder()
	b.EmitLocal(OpLstore, 300)
	b.EmitIinc(2, 1000)
	b.Emit(OpReturn)
	code, err := b.Finish()
	require.NoError(t, err)

	insns, err := DecodeAll(code)
	require.NoError(t, err)
	require.Len(t, insns, 3)

	assert.True(t, insns[0].Wide)
	assert.Equal(t, OpLstore, insns[0].Op)
	assert.Equal(t, 300, insns[0].Index)
	assert.Equal(t, 4, insns[0].Len)

	assert.True(t, insns[1].Wide)
	assert.Equal(t, OpIinc, insns[1].Op)
	assert.Equal(t, int32(1000), insns[1].Const)
	assert.Equal(t, 6, insns[1].Len)
}

func TestDecodeSwitchPadding(t *testing.T) {
	// The switch operands are four-byte aligned relative to the start of
	// the code, so the padding depends on where the switch begins.
	for prefix := 0; prefix < 4; prefix++ {
		b := NewCodeBuilder()
		for i := 0; i < prefix; i++ {
			b.Emit(OpNop)
		}
		dflt, one, two := b.NewLabel(), b.NewLabel(), b.NewLabel()
		b.Emit(OpIload0)
		b.EmitTableSwitch(1, dflt, one, two)
		b.Mark(one)
		b.Emit(OpIconst1)
		b.Emit(OpIreturn)
		b.Mark(two)
		b.Emit(OpIconst2)
		b.Emit(OpIreturn)
		b.Mark(dflt)
		b.Emit(OpIconst0)
		b.Emit(OpIreturn)
		code, err := b.Finish()
		require.NoError(t, err)

		ins, err := DecodeInstruction(code, prefix+1)
		require.NoError(t, err, "prefix %d", prefix)
		assert.Equal(t, OpTableswitch, ins.Op)
		assert.Equal(t, []int32{1, 2}, ins.Keys)
		require.Len(t, ins.Targets, 3)
		assert.Equal(t, OpIconst0, Opcode(code[ins.Targets[0]]))
		assert.Equal(t, OpIconst1, Opcode(code[ins.Targets[1]]))
		assert.Equal(t, OpIconst2, Opcode(code[ins.Targets[2]]))
		assert.Equal(t, 0, (prefix+1+1+switchPadding(prefix+1))%4)
	}
}

func TestLookupSwitchSortsKeys(t *testing.T) {
	b := NewCodeBuilder()
	dflt, a, c := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Emit(OpIload0)
	b.EmitLookupSwitch(dflt, map[int32]*Label{100: c, -5: a})
	b.Mark(a)
	b.Mark(c)
	b.Mark(dflt)
	b.Emit(OpReturn)
	code, err := b.Finish()
	require.NoError(t, err)

	ins, err := DecodeInstruction(code, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{-5, 100}, ins.Keys)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want string
	}{
		{"unknown opcode", []byte{0xfe}, "unknown opcode"},
		{"truncated operand", []byte{byte(OpSipush), 1}, ErrTruncated.Error()},
		{"truncated switch", []byte{byte(OpTableswitch), 0, 0, 0, 0}, ErrTruncated.Error()},
		{"bad wide", []byte{byte(OpWide), byte(OpIadd)}, "wide"},
		{"inverted tableswitch", []byte{byte(OpTableswitch), 0, 0, 0,
			0, 0, 0, 0, // default
			0, 0, 0, 5, // low
			0, 0, 0, 1, // high
		}, "low 5 > high 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAll(tt.code)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

func TestLabelErrors(t *testing.T) {
	b := NewCodeBuilder()
	l := b.NewLabel()
	b.EmitJump(OpGoto, l)
	_, err := b.Finish()
	assert.ErrorContains(t, err, "never marked")

	b = NewCodeBuilder()
	l = b.NewLabel()
	b.Mark(l)
	b.Mark(l)
	_, err = b.Finish()
	assert.ErrorContains(t, err, "marked twice")
}

func TestBackwardJump(t *testing.T) {
	b := NewCodeBuilder()
	top := b.NewLabel()
	b.Mark(top)
	b.Emit(OpNop)
	b.EmitJump(OpGoto, top)
	code, err := b.Finish()
	require.NoError(t, err)

	ins, err := DecodeInstruction(code, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ins.Targets)
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassembleMethod(t *testing.T) {
	b := NewClassBuilder("test/Dis", "")
	m := b.Method("call", "()I", AccPublic|AccStatic)
	m.Iconst(300)
	m.Invokestatic("test/Dis", "id", "(I)I")
	m.Return(KindInt)
	id := b.Method("id", "(I)I", AccPublic|AccStatic)
	id.Load(KindInt, 0)
	id.Return(KindInt)
	b.NativeMethod("ext", "()V", AccPublic|AccStatic)

	c, err := NewLoader().LoadClass(mustBytes(t, b))
	require.NoError(t, err)

	text := DisassembleMethod(c.DeclaredMethod("call", "()I"))
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "call()I")
	assert.Contains(t, lines[0], "stack=1 locals=0")
	assert.Equal(t, "0000  sipush 300", lines[1])
	assert.Contains(t, lines[2], "invokestatic")
	assert.Contains(t, lines[2], "test/Dis.id(I)I")
	assert.Equal(t, "0006  ireturn", lines[3])

	native := DisassembleMethod(c.DeclaredMethod("ext", "()V"))
	assert.True(t, strings.HasSuffix(native, "ext()V;"))
}
