package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Stored record field names.
const (
	FieldDescripcion = "descripcion"
	FieldCategoria   = "categoria"
	FieldFecha       = "fecha"
	FieldMonto       = "monto"
	// FieldCantidad is the amount field used by older records.
	FieldCantidad = "cantidad"
)

// Normalizer turns raw stored records into canonical Expense values.
// It never fails: anything it cannot parse is replaced with a default.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a Normalizer that expresses dates as wall-clock
// time in loc. A nil loc means time.Local.
func NewNormalizer(loc *time.Location) Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return Normalizer{loc: loc}
}

// Location returns the location dates are expressed in.
func (n Normalizer) Location() *time.Location {
	if n.loc == nil {
		return time.Local
	}
	return n.loc
}

// Normalize maps one raw record to an Expense.
func (n Normalizer) Normalize(id string, fields map[string]any) Expense {
	rawCategory, _ := fields[FieldCategoria].(string)

	category := strings.TrimSpace(rawCategory)
	if !IsKnownCategory(category) {
		category = DefaultCategory
	}

	desc, _ := fields[FieldDescripcion].(string)

	// Color looks up the stored value untrimmed: " Hogar " is filed under
	// Hogar but keeps DefaultColor.
	e := Expense{
		ID:          id,
		Descripcion: strings.TrimSpace(desc),
		Categoria:   category,
		Color:       ColorFor(rawCategory),
	}

	if m, ok := CoerceAmount(fields[FieldMonto]); ok {
		e.Monto = m
	} else if c, ok := CoerceAmount(fields[FieldCantidad]); ok {
		e.Monto = c
	}

	if t, ok := ParseInstant(fields[FieldFecha]); ok {
		e.Fecha = n.WallClock(t)
	}

	return e
}

// WallClock subtracts the zone offset of the normalizer's location at t.
// Read in that location, the result shows the calendar fields t has in UTC.
func (n Normalizer) WallClock(t time.Time) time.Time {
	local := t.In(n.Location())
	_, offset := local.Zone()
	return local.Add(-time.Duration(offset) * time.Second)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant reads a stored date. It accepts the shapes a date may take
// once it leaves the database: time values, RFC 3339 strings, epoch
// milliseconds and {seconds, nanoseconds} maps.
func ParseInstant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range instantLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case map[string]any:
		secs, ok := toInt64(firstOf(t, "seconds", "_seconds"))
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := toInt64(firstOf(t, "nanoseconds", "_nanoseconds", "nanos"))
		return time.Unix(secs, nanos).UTC(), true
	default:
		ms, ok := toInt64(v)
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt64(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
