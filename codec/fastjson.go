package codec

import gojson "github.com/goccy/go-json"

// fastJSONSerializer swaps the standard library encoder/decoder for
// goccy/go-json, a drop-in faster implementation exposed behind the same
// Serializer contract as jsonSerializer.
type fastJSONSerializer struct{}

func (fastJSONSerializer) Name() string { return StrategyFastJSON }

func (fastJSONSerializer) Encode(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

func (fastJSONSerializer) Decode(data []byte) (any, error) {
	var v any
	if err := gojson.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
