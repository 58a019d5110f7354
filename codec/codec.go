// Package codec turns stored values into bytes and back.
//
// The tile store persists tile.Entry records through a Codec[tile.Entry]; any
// codec here works, Msgpack is the default.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
