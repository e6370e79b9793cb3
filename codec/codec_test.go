package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		strategy string
		compress bool
	}{
		{StrategyJSON, false},
		{StrategyJSON, true},
		{StrategyFastJSON, false},
		{StrategyFastJSON, true},
		{StrategyBinary, false},
		{StrategyBinary, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.strategy, func(t *testing.T) {
			t.Parallel()

			c, err := NewCodec(tc.strategy, tc.compress)
			require.NoError(t, err)

			payload := map[string]any{"name": "Alice", "age": float64(30)}
			enc, err := c.Encode(payload)
			require.NoError(t, err)

			dec, err := c.Decode(enc)
			require.NoError(t, err)
			require.Equal(t, payload, dec)
		})
	}
}

func TestCodec_UnknownStrategy(t *testing.T) {
	t.Parallel()

	_, err := NewCodec("yaml", false)
	require.Error(t, err)
}

func TestCodec_CorruptedPayloadFails(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(StrategyJSON, false)
	require.NoError(t, err)

	_, err = c.Decode([]byte("{not json"))
	require.Error(t, err)
}

func TestCodec_CompressedCorruptedPayloadFails(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(StrategyJSON, true)
	require.NoError(t, err)

	_, err = c.Decode([]byte("not a deflate stream"))
	require.Error(t, err)
}
