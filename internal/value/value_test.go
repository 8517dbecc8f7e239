package value

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleValues(t *testing.T) []Value {
	t.Helper()
	dec, _, err := apd.NewFromString("12345.6789")
	require.NoError(t, err)
	zoned := time.Date(2024, 3, 9, 18, 30, 15, 123456000, time.FixedZone("x", 2*3600))

	return []Value{
		Null(),
		Bool(true),
		Bytea([]byte{0x00, 0xff, 0x10}),
		Char("y"),
		Int2(-12),
		Int4(123456),
		Int8(math.MaxInt64),
		Text("hello"),
		Oid(4294967295),
		Float4(1.5),
		Float4(float32(math.NaN())),
		Float8(math.NaN()),
		Float8(math.Float64frombits(0x7ff8000000000000)),
		Float8(math.Float64frombits(0xfff8000000000000)),
		Float4(math.Float32frombits(0x7fc00000)),
		Float4(math.Float32frombits(0xffc00001)),
		Float8(math.Inf(-1)),
		Float8(math.Copysign(0, -1)),
		Float8(3.141592653589793),
		Decimal(dec),
		UUID(uuid.MustParse("8f0c1f44-2e0e-4c59-8d5e-3b9c1f9b2a11")),
		Timestamp(time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)),
		Timestamptz(zoned),
		Date(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
		Time(time.Date(0, 1, 1, 23, 59, 58, 500000000, time.UTC)),
		JSON([]byte(`{"a": [1, 2, {"b": null}]}`)),
		Unknown("unparseable-garbage"),
		NullOf(KindInt4),
		NullOf(KindFloat8),
		NullOf(KindTimestamptz),
	}
}

func TestValueJSONRoundTripEveryVariant(t *testing.T) {
	for _, original := range sampleValues(t) {
		encoded, err := json.Marshal(original)
		require.NoError(t, err, "marshal %s", original.Kind())

		var decoded Value
		require.NoError(t, json.Unmarshal(encoded, &decoded), "unmarshal %s", encoded)
		assert.True(t, original.Equal(decoded), "round trip %s: %s", original.Kind(), encoded)
		assert.Equal(t, original.Hash(), decoded.Hash(), "hash after round trip %s", encoded)
	}
}

func TestNaNPayloadsRoundTripToOnePattern(t *testing.T) {
	for _, bits := range []uint64{0x7ff8000000000000, 0x7ff8000000000001, 0xfff8000000000000, 0x7ff0000000000001} {
		original := Float8(math.Float64frombits(bits))
		encoded, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Value
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		got, ok := decoded.Float8Value()
		require.True(t, ok)
		assert.Equal(t, uint64(0x7ff8000000000000), math.Float64bits(got), "input %#x", bits)
		assert.True(t, original.Equal(decoded), "input %#x", bits)
	}

	f32, ok := Float4(math.Float32frombits(0xffc00001)).Float4Value()
	require.True(t, ok)
	assert.Equal(t, uint32(0x7fc00000), math.Float32bits(f32))
}

func TestFloatEqualityUsesBitPatterns(t *testing.T) {
	nan := Float8(math.NaN())
	assert.True(t, nan.Equal(nan))
	assert.Equal(t, nan.Hash(), Float8(math.NaN()).Hash())

	nan4 := Float4(float32(math.NaN()))
	assert.True(t, nan4.Equal(Float4(float32(math.NaN()))))

	assert.False(t, Float8(0).Equal(Float8(math.Copysign(0, -1))))
	assert.False(t, Float8(1).Equal(Float4(1)))
}

func TestTypedNullDiffersFromUntypedNull(t *testing.T) {
	assert.False(t, NullOf(KindInt4).Equal(Null()))
	assert.True(t, NullOf(KindInt4).Equal(NullOf(KindInt4)))
	assert.True(t, NullOf(KindInt4).IsNull())
}

func TestDecimalEqualityIgnoresTrailingZeros(t *testing.T) {
	a, _, err := apd.NewFromString("1.50")
	require.NoError(t, err)
	b, _, err := apd.NewFromString("1.5")
	require.NoError(t, err)

	assert.True(t, Decimal(a).Equal(Decimal(b)))
	assert.Equal(t, Decimal(a).Hash(), Decimal(b).Hash())
}

func TestTypeNamesAndSimpleTypes(t *testing.T) {
	cases := []struct {
		value      Value
		typeName   string
		simpleType string
	}{
		{Bool(true), "bool", "boolean"},
		{Oid(7), "int4", "string"},
		{Int8(1), "int8", "number"},
		{Float4(1), "float4", "number"},
		{NullOf(KindDecimal), "decimal", "number"},
		{Date(time.Now()), "date", "date"},
		{Time(time.Now()), "time", "date"},
		{JSON([]byte(`{}`)), "json", "string"},
		{Unknown("x"), "unknown", "string"},
		{Null(), "null", "null"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.typeName, tc.value.TypeName())
		assert.Equal(t, tc.simpleType, tc.value.SimpleType())
	}
}

func TestInvalidJSONDocumentBecomesTypedNull(t *testing.T) {
	v := JSON([]byte(`{not json`))
	assert.Equal(t, KindJSON, v.Kind())
	assert.True(t, v.IsNull())
}

func TestPlainPayloads(t *testing.T) {
	assert.Nil(t, NullOf(KindText).Plain())
	assert.Equal(t, int64(5), Int2(5).Plain())
	assert.Equal(t, "NaN", Float8(math.NaN()).Plain())
	assert.Equal(t, "2024-01-02", Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).Plain())
}

func TestTimestampDropsZone(t *testing.T) {
	local := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("plus5", 5*3600))
	v := Timestamp(local)
	assert.Equal(t, "2024-05-06T07:08:09", v.String())
}
