package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
)

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type": <tag>, "value": <payload|null>}.
func (v Value) MarshalJSON() ([]byte, error) {
	payload, err := v.marshalPayload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.kind.String(), Value: payload})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var wire wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	kind, err := ParseKind(wire.Type)
	if err != nil {
		return err
	}
	payload := bytes.TrimSpace(wire.Value)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		*v = NullOf(kind)
		return nil
	}
	decoded, err := decodePayload(kind, payload)
	if err != nil {
		return fmt.Errorf("decode %s value: %w", kind, err)
	}
	*v = decoded
	return nil
}

// Plain returns the bare payload used by chart-facing responses, with no
// type tag. NULLs of any kind become nil.
func (v Value) Plain() any {
	if !v.valid {
		return nil
	}
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt2, KindInt4, KindInt8, KindOid:
		return v.i
	case KindFloat4:
		return plainFloat(float64(v.f32))
	case KindFloat8:
		return plainFloat(v.f64)
	case KindJSON:
		return json.RawMessage(v.raw)
	case KindDecimal:
		if f, err := v.dec.Float64(); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
		return v.dec.Text('f')
	default:
		return v.String()
	}
}

func (v Value) marshalPayload() (json.RawMessage, error) {
	if !v.valid {
		return json.RawMessage("null"), nil
	}
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt2, KindInt4, KindInt8, KindOid:
		return json.Marshal(v.i)
	case KindFloat4:
		return marshalFloat(float64(v.f32), 32)
	case KindFloat8:
		return marshalFloat(v.f64, 64)
	case KindBytea:
		return json.Marshal(v.raw)
	case KindJSON:
		return json.RawMessage(v.raw), nil
	default:
		return json.Marshal(v.String())
	}
}

func decodePayload(kind Kind, payload []byte) (Value, error) {
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case KindInt2, KindInt4, KindInt8, KindOid:
		var n int64
		if err := json.Unmarshal(payload, &n); err != nil {
			return Value{}, err
		}
		return Value{kind: kind, valid: true, i: n}, nil
	case KindFloat4:
		f, err := unmarshalFloat(payload, 32)
		if err != nil {
			return Value{}, err
		}
		return Float4(float32(f)), nil
	case KindFloat8:
		f, err := unmarshalFloat(payload, 64)
		if err != nil {
			return Value{}, err
		}
		return Float8(f), nil
	case KindBytea:
		var raw []byte
		if err := json.Unmarshal(payload, &raw); err != nil {
			return Value{}, err
		}
		return Bytea(raw), nil
	case KindJSON:
		return JSON(payload), nil
	}

	var text string
	if err := json.Unmarshal(payload, &text); err != nil {
		return Value{}, err
	}
	switch kind {
	case KindChar:
		return Char(text), nil
	case KindText:
		return Text(text), nil
	case KindUnknown:
		return Unknown(text), nil
	case KindDecimal:
		d, _, err := apd.NewFromString(text)
		if err != nil {
			return Value{}, err
		}
		return Decimal(d), nil
	case KindUUID:
		id, err := uuid.Parse(text)
		if err != nil {
			return Value{}, err
		}
		return UUID(id), nil
	case KindTimestamp:
		t, err := time.Parse(TimestampLayout, text)
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t), nil
	case KindTimestamptz:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return Value{}, err
		}
		return Timestamptz(t), nil
	case KindDate:
		t, err := time.Parse(DateLayout, text)
		if err != nil {
			return Value{}, err
		}
		return Date(t), nil
	case KindTime:
		t, err := time.Parse(TimeLayout, text)
		if err != nil {
			return Value{}, err
		}
		return Time(t), nil
	}
	return Value{}, fmt.Errorf("unsupported kind %s", kind)
}

// Non-finite floats have no JSON number form and travel as strings.
func marshalFloat(f float64, bits int) (json.RawMessage, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return json.Marshal(formatFloat(f, bits))
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, bits)), nil
}

func unmarshalFloat(payload []byte, bits int) (float64, error) {
	if len(payload) > 0 && payload[0] == '"' {
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(text, bits)
	}
	return strconv.ParseFloat(string(payload), bits)
}

func plainFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return formatFloat(f, 64)
	}
	return f
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func encodeBytes(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
