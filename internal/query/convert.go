package query

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"

	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var timestamptzLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700",
}

// Convert turns a scanned driver value into a value of kind. Values that do
// not parse as kind become the typed NULL of kind; only KindUnknown keeps
// the raw text.
func Convert(kind value.Kind, raw any) value.Value {
	if raw == nil {
		return value.NullOf(kind)
	}
	switch kind {
	case value.KindNull:
		return value.Null()
	case value.KindBool:
		if b, ok := toBool(raw); ok {
			return value.Bool(b)
		}
	case value.KindInt2:
		if n, ok := toInt(raw); ok && n >= math.MinInt16 && n <= math.MaxInt16 {
			return value.Int2(int16(n))
		}
	case value.KindInt4:
		if n, ok := toInt(raw); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return value.Int4(int32(n))
		}
	case value.KindInt8:
		if n, ok := toInt(raw); ok {
			return value.Int8(n)
		}
	case value.KindOid:
		if n, ok := toInt(raw); ok && n >= 0 && n <= math.MaxUint32 {
			return value.Oid(uint32(n))
		}
	case value.KindFloat4:
		if f, ok := toFloat(raw); ok {
			return value.Float4(float32(f))
		}
	case value.KindFloat8:
		if f, ok := toFloat(raw); ok {
			return value.Float8(f)
		}
	case value.KindDecimal:
		if d, ok := toDecimal(raw); ok {
			return value.Decimal(d)
		}
	case value.KindText:
		return value.Text(toText(raw))
	case value.KindChar:
		return value.Char(toText(raw))
	case value.KindUUID:
		if id, ok := toUUID(raw); ok {
			return value.UUID(id)
		}
	case value.KindBytea:
		switch typed := raw.(type) {
		case []byte:
			return value.Bytea(typed)
		case string:
			return value.Bytea([]byte(typed))
		}
	case value.KindTimestamp:
		if t, ok := toTime(raw, timestampLayouts); ok {
			return value.Timestamp(t)
		}
	case value.KindTimestamptz:
		if t, ok := toTime(raw, timestamptzLayouts); ok {
			return value.Timestamptz(t)
		}
		if t, ok := toTime(raw, timestampLayouts); ok {
			return value.Timestamptz(t)
		}
	case value.KindDate:
		if t, ok := toTime(raw, []string{value.DateLayout, "2006-01-02T15:04:05Z07:00"}); ok {
			return value.Date(t)
		}
	case value.KindTime:
		if t, ok := toTime(raw, []string{value.TimeLayout, "15:04:05", "15:04"}); ok {
			return value.Time(t)
		}
	case value.KindJSON:
		switch typed := raw.(type) {
		case []byte:
			return value.JSON(typed)
		case string:
			return value.JSON([]byte(typed))
		case json.RawMessage:
			return value.JSON(typed)
		default:
			encoded, err := json.Marshal(typed)
			if err == nil {
				return value.JSON(encoded)
			}
		}
	default:
		return value.Unknown(toText(raw))
	}
	return value.NullOf(kind)
}

func toBool(raw any) (bool, bool) {
	switch typed := raw.(type) {
	case bool:
		return typed, true
	case int64:
		return typed != 0, true
	case []byte:
		return parseBool(string(typed))
	case string:
		return parseBool(typed)
	}
	return false, false
}

func parseBool(text string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "t", "true", "1", "y", "yes":
		return true, true
	case "f", "false", "0", "n", "no":
		return false, true
	}
	return false, false
}

func toInt(raw any) (int64, bool) {
	switch typed := raw.(type) {
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int:
		return int64(typed), true
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case uint64:
		if typed > math.MaxInt64 {
			return 0, false
		}
		return int64(typed), true
	case float64:
		if typed != math.Trunc(typed) || typed > math.MaxInt64 || typed < math.MinInt64 {
			return 0, false
		}
		return int64(typed), true
	case *big.Int:
		if !typed.IsInt64() {
			return 0, false
		}
		return typed.Int64(), true
	case []byte:
		return parseInt(string(typed))
	case string:
		return parseInt(typed)
	}
	return 0, false
}

func parseInt(text string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func toFloat(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case []byte:
		return parseFloat(string(typed))
	case string:
		return parseFloat(typed)
	}
	return 0, false
}

func parseFloat(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	switch strings.ToLower(trimmed) {
	case "nan":
		return math.NaN(), true
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), true
	case "-inf", "-infinity":
		return math.Inf(-1), true
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func toDecimal(raw any) (*apd.Decimal, bool) {
	switch typed := raw.(type) {
	case *apd.Decimal:
		return typed, true
	case int64:
		return apd.New(typed, 0), true
	case uint64:
		return apd.NewWithBigInt(new(big.Int).SetUint64(typed), 0), true
	case *big.Int:
		return apd.NewWithBigInt(new(big.Int).Set(typed), 0), true
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil, false
		}
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(typed); err != nil {
			return nil, false
		}
		return d, true
	case *big.Rat:
		d, _, err := apd.NewFromString(typed.FloatString(18))
		return d, err == nil
	case []byte:
		return parseDecimal(string(typed))
	case string:
		return parseDecimal(typed)
	}
	return nil, false
}

func parseDecimal(text string) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(strings.TrimSpace(text))
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return d, true
}

func toUUID(raw any) (uuid.UUID, bool) {
	switch typed := raw.(type) {
	case uuid.UUID:
		return typed, true
	case [16]byte:
		return uuid.UUID(typed), true
	case []byte:
		if len(typed) == 16 {
			id, err := uuid.FromBytes(typed)
			return id, err == nil
		}
		id, err := uuid.ParseBytes(typed)
		return id, err == nil
	case string:
		id, err := uuid.Parse(strings.TrimSpace(typed))
		return id, err == nil
	}
	return uuid.UUID{}, false
}

func toTime(raw any, layouts []string) (time.Time, bool) {
	var text string
	switch typed := raw.(type) {
	case time.Time:
		return typed, true
	case []byte:
		text = string(typed)
	case string:
		text = typed
	default:
		return time.Time{}, false
	}
	text = strings.TrimSpace(text)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toText(raw any) string {
	switch typed := raw.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
