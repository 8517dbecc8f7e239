package query

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

func TestConvertParsesTextEncodedScalars(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		kind value.Kind
		raw  any
		want value.Value
	}{
		{value.KindBool, "true", value.Bool(true)},
		{value.KindBool, []byte("f"), value.Bool(false)},
		{value.KindInt2, "12", value.Int2(12)},
		{value.KindInt4, int64(7), value.Int4(7)},
		{value.KindInt8, float64(42), value.Int8(42)},
		{value.KindOid, int64(1259), value.Oid(1259)},
		{value.KindFloat4, "1.5", value.Float4(1.5)},
		{value.KindFloat8, []byte("2.25"), value.Float8(2.25)},
		{value.KindDecimal, "10.50", value.Decimal(apd.New(105, -1))},
		{value.KindUUID, id.String(), value.UUID(id)},
		{value.KindUUID, id[:], value.UUID(id)},
		{value.KindTimestamp, "2024-03-01 12:30:00", value.Timestamp(ts)},
		{value.KindTimestamptz, "2024-03-01T12:30:00Z", value.Timestamptz(ts)},
		{value.KindDate, "2024-03-01", value.Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{value.KindTime, "12:30:00", value.Time(time.Date(0, 1, 1, 12, 30, 0, 0, time.UTC))},
		{value.KindJSON, []byte(`{"a": 1}`), value.JSON([]byte(`{"a":1}`))},
		{value.KindText, []byte("hello"), value.Text("hello")},
		{value.KindUnknown, []byte("(1,2)"), value.Unknown("(1,2)")},
	}
	for _, tc := range cases {
		got := Convert(tc.kind, tc.raw)
		assert.True(t, got.Equal(tc.want), "%s %v: got %v want %v", tc.kind, tc.raw, got, tc.want)
	}
}

func TestConvertFailedParseIsTypedNull(t *testing.T) {
	for _, kind := range []value.Kind{value.KindInt4, value.KindFloat8, value.KindDecimal, value.KindUUID, value.KindTimestamp, value.KindDate, value.KindBool} {
		got := Convert(kind, "definitely not valid")
		assert.Equal(t, kind, got.Kind())
		assert.True(t, got.IsNull(), kind.String())
	}
	overflow := Convert(value.KindInt2, int64(math.MaxInt32))
	assert.True(t, overflow.IsNull())
}

func TestConvertFloatSpecials(t *testing.T) {
	nan := Convert(value.KindFloat8, "NaN")
	f, ok := nan.Float8Value()
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))

	inf := Convert(value.KindFloat8, "-Infinity")
	f, _ = inf.Float8Value()
	assert.True(t, math.IsInf(f, -1))
}

func TestConvertNilKeepsKind(t *testing.T) {
	got := Convert(value.KindTimestamptz, nil)
	assert.Equal(t, value.KindTimestamptz, got.Kind())
	assert.True(t, got.IsNull())
}
