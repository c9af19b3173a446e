package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentStore, Output: &buf})

	logger.With(FieldCollection, "gastos").WithComponent(ComponentFeed).Info("hola")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry[FieldComponent] != ComponentFeed {
		t.Errorf("component = %v", entry[FieldComponent])
	}
	if entry[FieldCollection] != "gastos" {
		t.Errorf("collection = %v", entry[FieldCollection])
	}
	if strings.Count(buf.String(), `"component"`) != 1 {
		t.Errorf("component should appear once: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	logger.LogError(context.Background(), "boom", errors.New("permission-denied"), OpSnapshot, nil)
	out := buf.String()
	if !strings.Contains(out, "permission-denied") || !strings.Contains(out, "operation=snapshot") {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestFieldsToSliceIsSorted(t *testing.T) {
	got := NewFields().WithOperation(OpList).WithComponent(ComponentHTTP).WithError(nil).ToSlice()
	want := []any{FieldComponent, ComponentHTTP, FieldOperation, OpList}
	if len(got) != len(want) {
		t.Fatalf("ToSlice() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ToSlice()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestContextLogger(t *testing.T) {
	logger := Discard().WithComponent(ComponentHTTP)
	var seen *Logger
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithLogger(req.Context(), logger)))
	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("expected the http logger in context, got %+v", seen)
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("missing logger should fall back to the default")
	}
}
