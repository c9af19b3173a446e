package feed

import (
	"fmt"
	"sort"

	"gastos/internal/core"
)

// SortDocuments returns a copy of docs ordered by q.OrderBy. Date-like values
// compare as instants and sort after documents lacking one; other values
// compare by their printed form. Ties keep their input order.
func SortDocuments(docs []Document, q Query) []Document {
	out := make([]Document, len(docs))
	copy(out, docs)
	if q.OrderBy == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Fields[q.OrderBy], out[j].Fields[q.OrderBy]
		if q.Descending {
			return lessValue(b, a)
		}
		return lessValue(a, b)
	})
	return out
}

func lessValue(a, b any) bool {
	ta, okA := core.ParseInstant(a)
	tb, okB := core.ParseInstant(b)
	switch {
	case okA && okB:
		return ta.Before(tb)
	case okA != okB:
		return okB
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
