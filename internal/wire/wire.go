package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version  byte = 1
	kindTile byte = 1
	kindMeta byte = 2
)

var (
	ErrCorrupt = errors.New("tilecache: corrupt record")
	magic4     = [...]byte{'T', 'I', 'L', 'E'}
)

const header = 4 + 1 + 1

func hasHeader(b []byte, kind byte) bool {
	return len(b) >= header && bytes.Equal(b[:4], magic4[:]) && b[4] == version && b[5] == kind
}

// Tile: magic(4) | ver(1) | kind(1=tile) | vlen(u32 be) | payload(vlen)
func EncodeTile(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(header + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindTile)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeTile returns the payload as a sub-slice of b (no copy).
func DecodeTile(b []byte) ([]byte, error) {
	if len(b) < header+4 || !hasHeader(b, kindTile) {
		return nil, ErrCorrupt
	}
	off := header
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact framing: no short reads, no trailing bytes
	if vlen != len(b)-off {
		return nil, ErrCorrupt
	}
	return b[off:], nil
}

// Meta: magic(4) | ver(1) | kind(2=meta) | schemaVersion(u32 be)
func EncodeMeta(schemaVersion uint32) []byte {
	b := make([]byte, header+4)
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindMeta
	binary.BigEndian.PutUint32(b[header:], schemaVersion)
	return b
}

func DecodeMeta(b []byte) (uint32, error) {
	if len(b) != header+4 || !hasHeader(b, kindMeta) {
		return 0, ErrCorrupt
	}
	return binary.BigEndian.Uint32(b[header:]), nil
}
