package codec

import "encoding/json"

// JSON stores values as JSON. Binary fields become base64, so prefer Msgpack or
// CBOR for tile payloads unless the store is inspected by hand.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
