package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// ---------------------------------------------------------------------------
// Class file errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic     = errors.New("invalid magic number: expected CVMC")
	ErrVersionMismatch  = errors.New("class file version mismatch")
	ErrCorruptHeader    = errors.New("corrupt class file header")
	ErrChecksumMismatch = errors.New("class file checksum mismatch")
	ErrNonCanonical     = errors.New("class payload is not canonically encoded")
)

// ---------------------------------------------------------------------------
// ClassReader
// ---------------------------------------------------------------------------

// ReadClassFile decodes a class file. Every failure is a Malformed
// *LoadError wrapping one of the errors above or the CBOR decode error.
func ReadClassFile(data []byte) (*ClassFile, error) {
	fail := func(err error) (*ClassFile, error) {
		return nil, &LoadError{Kind: LoadMalformed, Detail: "read class file", Err: err}
	}
	if len(data) < classHeaderSize {
		return fail(fmt.Errorf("%w: %d bytes", ErrCorruptHeader, len(data)))
	}
	if string(data[0:4]) != ClassMagic {
		return fail(ErrInvalidMagic)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != ClassVersion {
		return fail(fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, ClassVersion))
	}
	if flags := binary.LittleEndian.Uint32(data[8:]); flags&^classKnownFlags != 0 {
		return fail(fmt.Errorf("%w: unknown flags 0x%x", ErrCorruptHeader, flags))
	}
	size := binary.LittleEndian.Uint32(data[12:])
	payload := data[classHeaderSize:]
	if uint64(len(payload)) != uint64(size) {
		return fail(fmt.Errorf("%w: payload length %d, header says %d", ErrCorruptHeader, len(payload), size))
	}
	if sum := crc32.ChecksumIEEE(payload); sum != binary.LittleEndian.Uint32(data[16:]) {
		return fail(ErrChecksumMismatch)
	}

	var w wireClass
	if err := classDecMode.Unmarshal(payload, &w); err != nil {
		return fail(fmt.Errorf("decode class payload: %w", err))
	}
	// Re-encoding must reproduce the payload, which rules out unknown keys,
	// non-minimal integers and other alternative encodings.
	again, err := classEncMode.Marshal(&w)
	if err != nil || !bytes.Equal(again, payload) {
		return fail(ErrNonCanonical)
	}

	cf := fromWire(&w)
	if err := cf.Pool.Validate(); err != nil {
		return fail(err)
	}
	if _, err := cf.Name(); err != nil {
		return fail(fmt.Errorf("this class: %w", err))
	}
	return cf, nil
}

// LoadClassFile reads and decodes a class file from disk.
func LoadClassFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadClassFile(data)
}
