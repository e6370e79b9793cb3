package codec

import "encoding/json"

// jsonSerializer is the default strategy, built on the standard library.
type jsonSerializer struct{}

func (jsonSerializer) Name() string { return StrategyJSON }

func (jsonSerializer) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonSerializer) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
