package feed

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{80, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := Backoff(tt.attempt); got != tt.expected {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Fatal("Sleep should return false on a cancelled context")
	}
	if !Sleep(context.Background(), time.Millisecond) {
		t.Fatal("Sleep should return true once the duration elapses")
	}
}

func TestExpensesByDate(t *testing.T) {
	q := ExpensesByDate("")
	if q.Collection != DefaultCollection || q.OrderBy != "fecha" || !q.Descending {
		t.Fatalf("unexpected query %+v", q)
	}
	if got := q.String(); got != "gastos orderBy fecha desc" {
		t.Fatalf("String() = %q", got)
	}
	if got := ExpensesByDate("pruebas").Collection; got != "pruebas" {
		t.Fatalf("Collection = %q", got)
	}
}

func TestSortDocuments(t *testing.T) {
	docs := []Document{
		{ID: "none", Fields: map[string]any{}},
		{ID: "jan", Fields: map[string]any{"fecha": "2024-01-01"}},
		{ID: "mar", Fields: map[string]any{"fecha": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}},
		{ID: "feb", Fields: map[string]any{"fecha": map[string]any{"seconds": int64(1706745600)}}},
	}

	got := SortDocuments(docs, ExpensesByDate(""))
	want := []string{"mar", "feb", "jan", "none"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("desc position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	asc := SortDocuments(docs, Query{Collection: "gastos", OrderBy: "fecha"})
	if asc[0].ID != "none" || asc[3].ID != "mar" {
		t.Fatalf("ascending order wrong: first %s last %s", asc[0].ID, asc[3].ID)
	}

	if docs[0].ID != "none" {
		t.Fatal("SortDocuments must not reorder its input")
	}
	if got := SortDocuments(docs, Query{Collection: "gastos"}); got[1].ID != "jan" {
		t.Fatal("no OrderBy keeps input order")
	}
}
