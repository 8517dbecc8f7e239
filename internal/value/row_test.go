package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowPreservesInsertionOrder(t *testing.T) {
	row := NewRow(3)
	row.Set("c", Int4(3))
	row.Set("a", Int4(1))
	row.Set("b", Int4(2))

	assert.Equal(t, []string{"c", "a", "b"}, row.Columns())

	encoded, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"c":{"type":"int4","value":3},"a":{"type":"int4","value":1},"b":{"type":"int4","value":2}}`, string(encoded))

	plain, err := row.MarshalPlainJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"c":3,"a":1,"b":2}`, string(plain))
}

func TestRowSetReplacesExistingColumn(t *testing.T) {
	row := NewRow(2)
	row.Set("a", Int4(1))
	row.Set("b", Int4(2))
	row.Set("a", Text("x"))

	assert.Equal(t, []string{"a", "b"}, row.Columns())
	got, ok := row.Get("a")
	require.True(t, ok)
	assert.True(t, got.Equal(Text("x")))
}

func TestRowJSONRoundTripKeepsOrder(t *testing.T) {
	row := NewRow(3)
	row.Set("zeta", Float8(math.NaN()))
	row.Set("alpha", NullOf(KindDate))
	row.Set("mid", Text("m"))

	encoded, err := json.Marshal(row)
	require.NoError(t, err)

	decoded := NewRow(0)
	require.NoError(t, json.Unmarshal(encoded, decoded))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, decoded.Columns())
	assert.True(t, row.Equal(decoded))
}

func TestBuilderCapsRows(t *testing.T) {
	builder := NewBuilder([]string{"n"}, 25)
	for i := 0; i < 10000; i++ {
		row := NewRow(1)
		row.Set("n", Int8(int64(i)))
		if !builder.Add(row) {
			break
		}
	}
	builder.MarkTruncated()

	result := builder.Result()
	assert.Equal(t, 25, result.Len())
	assert.True(t, result.Truncated)
	first, _ := result.Rows[0].Get("n")
	assert.True(t, first.Equal(Int8(0)))
}

func TestBuilderUnboundedWhenLimitZero(t *testing.T) {
	builder := NewBuilder(nil, 0)
	for i := 0; i < 100; i++ {
		require.True(t, builder.Add(NewRow(0)))
	}
	assert.Equal(t, 100, builder.Result().Len())
	assert.False(t, builder.Result().Truncated)
}
