package vm

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterClass builds a small class with fields, constants of every kind and
// a static method.
func counterClass() *ClassBuilder {
	b := NewClassBuilder("test/Counter", "")
	b.Field("count", "I", AccPrivate)
	b.Field("total", "J", AccPrivate|AccStatic)
	b.DefaultConstructor()

	m := b.Method("constants", "()D", AccPublic|AccStatic)
	m.Iconst(100000)
	m.Emit(OpI2d)
	m.Lconst(1 << 40)
	m.Emit(OpL2d)
	m.Emit(OpDadd)
	m.Fconst(float32(math.Inf(1)))
	m.Emit(OpF2d)
	m.Emit(OpDadd)
	m.Dconst(math.Copysign(0, -1))
	m.Emit(OpDadd)
	m.Return(KindDouble)
	return b
}

func mustBytes(t *testing.T, b *ClassBuilder) []byte {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

// reheader rewrites the payload length and checksum after a test has
// modified the payload.
func reheader(data []byte) []byte {
	payload := data[classHeaderSize:]
	binary.LittleEndian.PutUint32(data[12:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(data[16:], crc32.ChecksumIEEE(payload))
	return data
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestClassFileRoundTrip(t *testing.T) {
	data := mustBytes(t, counterClass())
	assert.Equal(t, ClassMagic, string(data[:4]))

	cf, err := ReadClassFile(data)
	require.NoError(t, err)
	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, "test/Counter", name)
	super, err := cf.SuperName()
	require.NoError(t, err)
	assert.Equal(t, ObjectClassName, super)
	assert.Len(t, cf.Fields, 2)
	assert.Len(t, cf.Methods, 2)

	again, err := WriteClassFile(cf)
	require.NoError(t, err)
	assert.Equal(t, data, again, "decode then encode reproduces the bytes")
}

func TestClassFileEncodingIsDeterministic(t *testing.T) {
	a := mustBytes(t, counterClass())
	b := mustBytes(t, counterClass())
	assert.Equal(t, a, b)
}

func TestConstantPoolInterning(t *testing.T) {
	b := NewClassBuilder("test/Intern", "")
	i1 := b.Integer(7)
	i2 := b.Integer(7)
	assert.Equal(t, i1, i2)
	assert.NotEqual(t, b.Integer(8), i1)

	m1 := b.MethodRef("a/B", "f", "()V")
	m2 := b.MethodRef("a/B", "f", "()V")
	assert.Equal(t, m1, m2)
	assert.NotEqual(t, b.InterfaceMethodRef("a/B", "f", "()V"), m1)

	// Distinct bit patterns stay distinct.
	assert.NotEqual(t, b.Double(0), b.Double(math.Copysign(0, -1)))
}

func TestFloatConstantsKeepTheirBits(t *testing.T) {
	nan := math.Float64frombits(0x7ff8000000000123)
	b := NewClassBuilder("test/Bits", "")
	idx := b.Double(nan)
	cf, err := ReadClassFile(mustBytes(t, b))
	require.NoError(t, err)

	c, err := cf.Pool.Get(int(idx))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7ff8000000000123), c.Bits)
}

// ---------------------------------------------------------------------------
// Rejection
// ---------------------------------------------------------------------------

func TestReadClassFileRejects(t *testing.T) {
	good := mustBytes(t, counterClass())
	clone := func() []byte { return append([]byte(nil), good...) }

	tests := []struct {
		name   string
		data   func() []byte
		target error
	}{
		{"empty", func() []byte { return nil }, ErrCorruptHeader},
		{"short header", func() []byte { return good[:10] }, ErrCorruptHeader},
		{"bad magic", func() []byte {
			d := clone()
			copy(d, "JAVA")
			return d
		}, ErrInvalidMagic},
		{"future version", func() []byte {
			d := clone()
			binary.LittleEndian.PutUint32(d[4:], ClassVersion+1)
			return d
		}, ErrVersionMismatch},
		{"unknown flags", func() []byte {
			d := clone()
			binary.LittleEndian.PutUint32(d[8:], 1)
			return d
		}, ErrCorruptHeader},
		{"truncated payload", func() []byte { return good[:len(good)-3] }, ErrCorruptHeader},
		{"checksum", func() []byte {
			d := clone()
			d[len(d)-1] ^= 0xff
			return d
		}, ErrChecksumMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadClassFile(tt.data())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestReadClassFileRejectsGarbagePayload(t *testing.T) {
	data := mustBytes(t, counterClass())
	data = append(data[:classHeaderSize], 0xff, 0x00, 0x13)
	_, err := ReadClassFile(reheader(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadClassFileRejectsBadPool(t *testing.T) {
	b := NewClassBuilder("test/BadPool", "")
	cf, err := b.Build()
	require.NoError(t, err)
	// Point this_class at a Utf8 entry.
	cf.ThisClass = b.Utf8("test/BadPool")
	data, err := WriteClassFile(cf)
	require.NoError(t, err)

	_, err = ReadClassFile(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
