package firestore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// restValue mirrors the JSON form of a Firestore Value.
type restValue struct {
	NullValue      *string         `json:"nullValue,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	IntegerValue   *json.Number    `json:"integerValue,omitempty"`
	DoubleValue    json.RawMessage `json:"doubleValue,omitempty"`
	TimestampValue *string         `json:"timestampValue,omitempty"`
	StringValue    *string         `json:"stringValue,omitempty"`
	BytesValue     *string         `json:"bytesValue,omitempty"`
	ReferenceValue *string         `json:"referenceValue,omitempty"`
	GeoPointValue  *restGeoPoint   `json:"geoPointValue,omitempty"`
	ArrayValue     *restArrayValue `json:"arrayValue,omitempty"`
	MapValue       *restMapValue   `json:"mapValue,omitempty"`
}

type restGeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type restArrayValue struct {
	Values []restValue `json:"values,omitempty"`
}

type restMapValue struct {
	Fields map[string]restValue `json:"fields,omitempty"`
}

type restDocument struct {
	Name       string               `json:"name"`
	Fields     map[string]restValue `json:"fields"`
	UpdateTime string               `json:"updateTime"`
}

// decode turns a Firestore value into plain Go: timestamps become
// time.Time, integers int64, doubles float64, maps and arrays recurse.
func (v restValue) decode() any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.TimestampValue != nil:
		if t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue); err == nil {
			return t
		}
		return *v.TimestampValue
	case v.IntegerValue != nil:
		if n, err := v.IntegerValue.Int64(); err == nil {
			return n
		}
		return v.IntegerValue.String()
	case len(v.DoubleValue) > 0:
		return decodeDouble(v.DoubleValue)
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.MapValue != nil:
		out := make(map[string]any, len(v.MapValue.Fields))
		for k, fv := range v.MapValue.Fields {
			out[k] = fv.decode()
		}
		return out
	case v.ArrayValue != nil:
		out := make([]any, len(v.ArrayValue.Values))
		for i, av := range v.ArrayValue.Values {
			out[i] = av.decode()
		}
		return out
	case v.ReferenceValue != nil:
		return *v.ReferenceValue
	case v.BytesValue != nil:
		if b, err := base64.StdEncoding.DecodeString(*v.BytesValue); err == nil {
			return b
		}
		return *v.BytesValue
	case v.GeoPointValue != nil:
		return map[string]any{"latitude": v.GeoPointValue.Latitude, "longitude": v.GeoPointValue.Longitude}
	}
	return nil
}

// doubles arrive as numbers, or as strings for NaN and the infinities
func decodeDouble(raw json.RawMessage) any {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	return nil
}

func decodeFields(fields map[string]restValue) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v.decode()
	}
	return out
}

// encodeValue is the inverse of decode for the types a caller may store.
func encodeValue(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{"nullValue": "NULL_VALUE"}, nil
	case string:
		return map[string]any{"stringValue": x}, nil
	case bool:
		return map[string]any{"booleanValue": x}, nil
	case int:
		return map[string]any{"integerValue": strconv.Itoa(x)}, nil
	case int32:
		return map[string]any{"integerValue": strconv.FormatInt(int64(x), 10)}, nil
	case int64:
		return map[string]any{"integerValue": strconv.FormatInt(x, 10)}, nil
	case float32:
		return encodeValue(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("unsupported double %v", x)
		}
		return map[string]any{"doubleValue": x}, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return encodeValue(n)
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return encodeValue(f)
	case time.Time:
		return map[string]any{"timestampValue": x.UTC().Format(time.RFC3339Nano)}, nil
	case []any:
		values := make([]map[string]any, 0, len(x))
		for _, item := range x {
			ev, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			values = append(values, ev)
		}
		return map[string]any{"arrayValue": map[string]any{"values": values}}, nil
	case map[string]any:
		fields, err := encodeFields(x)
		if err != nil {
			return nil, err
		}
		return map[string]any{"mapValue": map[string]any{"fields": fields}}, nil
	case fmt.Stringer:
		return map[string]any{"stringValue": x.String()}, nil
	}
	return nil, fmt.Errorf("unsupported field type %T", v)
}

func encodeFields(fields map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(fields))
	for _, k := range keys {
		ev, err := encodeValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}
