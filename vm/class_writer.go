package vm

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// Class file header
// ---------------------------------------------------------------------------

// Class file layout: a fixed 20-byte header followed by the CBOR payload.
const (
	ClassMagic   = "CVMC"
	ClassVersion = 1

	classHeaderSize = 20
)

// Header flags. None are defined yet; readers reject unknown bits.
const classKnownFlags uint32 = 0

// ---------------------------------------------------------------------------
// ClassWriter
// ---------------------------------------------------------------------------

// WriteClassFile encodes a class file. The encoding is canonical, so equal
// class files always produce identical bytes.
func WriteClassFile(cf *ClassFile) ([]byte, error) {
	payload, err := classEncMode.Marshal(toWire(cf))
	if err != nil {
		return nil, fmt.Errorf("encode class: %w", err)
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("encode class: payload of %d bytes too large", len(payload))
	}
	out := make([]byte, classHeaderSize, classHeaderSize+len(payload))
	copy(out[0:4], ClassMagic)
	binary.LittleEndian.PutUint32(out[4:], ClassVersion)
	binary.LittleEndian.PutUint32(out[8:], 0)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[16:], crc32.ChecksumIEEE(payload))
	return append(out, payload...), nil
}

// SaveClassFile writes an encoded class file to path.
func SaveClassFile(path string, cf *ClassFile) error {
	data, err := WriteClassFile(cf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
