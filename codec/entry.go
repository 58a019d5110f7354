package codec

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/unkn0wn-root/tilecache/tile"
)

// Entry encodes tile.Entry in protobuf wire format without generated code:
//
//	message Entry {
//	  string url          = 1;
//	  int64  timestamp_ms = 2; // unix millis
//	  bytes  data         = 3;
//	  string content_type = 4;
//	}
//
// Timestamps are truncated to milliseconds. Unknown fields are skipped.
type Entry struct{}

var _ Codec[tile.Entry] = Entry{}

const (
	fieldURL         protowire.Number = 1
	fieldTimestamp   protowire.Number = 2
	fieldData        protowire.Number = 3
	fieldContentType protowire.Number = 4
)

var errWireType = errors.New("codec: unexpected wire type")

func (Entry) Encode(e tile.Entry) ([]byte, error) {
	b := make([]byte, 0, len(e.Key)+len(e.Data)+len(e.ContentType)+24)
	b = protowire.AppendTag(b, fieldURL, protowire.BytesType)
	b = protowire.AppendString(b, e.Key)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp.UnixMilli()))
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Data)
	b = protowire.AppendTag(b, fieldContentType, protowire.BytesType)
	b = protowire.AppendString(b, e.ContentType)
	return b, nil
}

func (Entry) Decode(b []byte) (tile.Entry, error) {
	var e tile.Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return tile.Entry{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldURL, fieldData, fieldContentType:
			if typ != protowire.BytesType {
				return tile.Entry{}, fmt.Errorf("%w: field %d", errWireType, num)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return tile.Entry{}, protowire.ParseError(n)
			}
			switch num {
			case fieldURL:
				e.Key = string(v)
			case fieldData:
				e.Data = append([]byte(nil), v...)
			default:
				e.ContentType = string(v)
			}
			b = b[n:]
		case fieldTimestamp:
			if typ != protowire.VarintType {
				return tile.Entry{}, fmt.Errorf("%w: field %d", errWireType, num)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return tile.Entry{}, protowire.ParseError(n)
			}
			e.Timestamp = time.UnixMilli(int64(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return tile.Entry{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return e, nil
}
