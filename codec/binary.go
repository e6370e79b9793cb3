package codec

import "github.com/vmihailenco/msgpack/v5"

// binarySerializer is the "language-native compact form": a schema-less
// dense binary encoding, matching the role msgpack plays for BLOB storage
// in comparable Go caches.
type binarySerializer struct{}

func (binarySerializer) Name() string { return StrategyBinary }

func (binarySerializer) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (binarySerializer) Decode(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
