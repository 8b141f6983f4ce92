package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRow_PreservesKinds(t *testing.T) {
	ts := time.Date(2020, 4, 9, 10, 30, 0, 0, time.UTC)
	in := Row{"北海道", int64(42), 2.5, true, nil, ts, ""}

	data, err := EncodeRow(in)
	require.NoError(t, err)

	out, err := DecodeRow(data)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	assert.Equal(t, "北海道", out[0])
	assert.Equal(t, int64(42), out[1])
	assert.Equal(t, 2.5, out[2])
	assert.Equal(t, true, out[3])
	assert.Nil(t, out[4])
	assert.True(t, ts.Equal(out[5].(time.Time)))
	assert.Equal(t, "", out[6])
}

func TestEncodeRow_IntegralFloatKeepsKey(t *testing.T) {
	data, err := EncodeRow(Row{float64(3)})
	require.NoError(t, err)

	out, err := DecodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, KeyString(float64(3)), KeyString(out[0]))
}

func TestDecodeRow_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not an array", input: `{"a":1}`},
		{name: "nested array", input: `[[1]]`},
		{name: "unknown object", input: `[{"x":"y"}]`},
		{name: "bad time", input: `[{"$time":"yesterday"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRow([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}
