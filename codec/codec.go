// Package codec implements the serialization and compression strategies used
// to turn logical cache values into the byte payloads a shard accounts for.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Serializer turns a logical value into bytes and back. Implementations must
// be safe for concurrent use; a Codec never mutates a Serializer after
// construction.
type Serializer interface {
	// Name is the stable identifier persisted in snapshots.
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Registry of known serializer names, matching the "serializer" config field.
const (
	StrategyJSON     = "json"
	StrategyFastJSON = "fast-json"
	StrategyBinary   = "binary"
)

// New builds a Serializer for the given strategy name. An empty name
// defaults to StrategyJSON.
func New(strategy string) (Serializer, error) {
	switch strategy {
	case "", StrategyJSON:
		return jsonSerializer{}, nil
	case StrategyFastJSON:
		return fastJSONSerializer{}, nil
	case StrategyBinary:
		return binarySerializer{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown serializer strategy %q", strategy)
	}
}

// Codec combines a fixed Serializer with optional deflate compression. Both
// are chosen once at configuration time; the identifier and compress flag
// are what a snapshot records to detect a mismatched warm-boot load.
type Codec struct {
	ser      Serializer
	compress bool
}

// NewCodec constructs a Codec for the given strategy and compression flag.
func NewCodec(strategy string, compress bool) (*Codec, error) {
	ser, err := New(strategy)
	if err != nil {
		return nil, err
	}
	return &Codec{ser: ser, compress: compress}, nil
}

// Strategy reports the serializer's stable name.
func (c *Codec) Strategy() string { return c.ser.Name() }

// Compressed reports whether payloads are deflate-compressed.
func (c *Codec) Compressed() bool { return c.compress }

// Encode serializes v and, if compression is enabled, deflates the result.
func (c *Codec) Encode(v any) ([]byte, error) {
	raw, err := c.ser.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	if !c.compress {
		return raw, nil
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("codec: deflate writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("codec: deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: deflate close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode: it inflates the payload (if compression is
// enabled) and deserializes the result. A corrupted payload is a fatal
// error propagated to the caller so the entry can be evicted.
func (c *Codec) Decode(data []byte) (any, error) {
	raw := data
	if c.compress {
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		inflated, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("codec: inflate: %w", err)
		}
		raw = inflated
	}
	v, err := c.ser.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return v, nil
}
