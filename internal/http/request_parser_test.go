package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gastos/internal/core"
)

func newParser(t *testing.T, contentType, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		key         string
		want        string
		wantJSON    bool
	}{
		{"form", "application/x-www-form-urlencoded", "descripcion=Caf%C3%A9&monto=1.5", "descripcion", "Café", false},
		{"json string", "application/json", `{"descripcion":"Pan"}`, "descripcion", "Pan", true},
		{"json number keeps precision", "application/json", `{"monto":12.10}`, "monto", "12.10", true},
		{"json without content type", "", `{"monto":"3"}`, "monto", "3", true},
		{"json bool", "application/json", `{"x":true}`, "x", "true", true},
		{"control characters stripped", "application/x-www-form-urlencoded", "descripcion=%20a%00b%09c%20", "descripcion", "ab\tc", false},
		{"missing key", "application/json", `{}`, "descripcion", "", true},
		{"empty body", "", "", "descripcion", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, tt.contentType, tt.body)
			if got := p.Get(tt.key); got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
		})
	}
}

func TestRequestBodyParserInvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":`))
	req.Header.Set("Content-Type", "application/json")
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err == nil {
		t.Fatal("expected parse error")
	}
	if p.IsJSON() {
		t.Error("IsJSON should be false after a failed parse")
	}
	if !p.WantsJSON() {
		t.Error("WantsJSON should follow the content type")
	}
}

func TestParseExpenseInput(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2024, time.May, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		body     string
		wantErr  error
		wantCat  string
		wantDate time.Time
		wantAmt  string
	}{
		{
			name:     "date only is midnight local",
			body:     `{"descripcion":"Pan","categoria":"Hogar","monto":"2,40","fecha":"2024-05-10"}`,
			wantCat:  core.CategoryHogar,
			wantDate: time.Date(2024, time.May, 10, 0, 0, 0, 0, madrid),
			wantAmt:  "2.40",
		},
		{
			name:     "rfc3339",
			body:     `{"descripcion":"Pan","monto":1,"fecha":"2024-05-10T08:00:00Z"}`,
			wantCat:  core.DefaultCategory,
			wantDate: time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC),
			wantAmt:  "1.00",
		},
		{
			name:     "missing date is now",
			body:     `{"descripcion":"Pan","monto":"7"}`,
			wantCat:  core.DefaultCategory,
			wantDate: now,
			wantAmt:  "7.00",
		},
		{name: "blank description", body: `{"descripcion":"  ","monto":"7"}`, wantErr: errMissingDescription},
		{name: "negative amount", body: `{"descripcion":"x","monto":"-7"}`, wantErr: errInvalidAmount},
		{name: "unknown category", body: `{"descripcion":"x","monto":"7","categoria":"Nope"}`, wantErr: errInvalidCategory},
		{name: "bad date", body: `{"descripcion":"x","monto":"7","fecha":"ayer"}`, wantErr: errInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := parseExpenseInput(newParser(t, "application/json", tt.body), now, madrid)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if in.Categoria != tt.wantCat {
				t.Errorf("categoria = %q, want %q", in.Categoria, tt.wantCat)
			}
			if !in.Fecha.Equal(tt.wantDate) {
				t.Errorf("fecha = %v, want %v", in.Fecha, tt.wantDate)
			}
			if got := in.Monto.StringFixed(2); got != tt.wantAmt {
				t.Errorf("monto = %s, want %s", got, tt.wantAmt)
			}
		})
	}
}

func TestParseExpenseInputTruncatesDescription(t *testing.T) {
	long := strings.Repeat("a", 250)
	in, err := parseExpenseInput(newParser(t, "application/json", `{"descripcion":"`+long+`","monto":"1"}`), time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in.Descripcion) != 200 {
		t.Fatalf("len = %d, want 200", len(in.Descripcion))
	}

	fields := in.fields()
	if fields[core.FieldMonto] != 1.0 {
		t.Errorf("stored monto = %v", fields[core.FieldMonto])
	}
	if fecha := fields[core.FieldFecha].(time.Time); fecha.Location() != time.UTC {
		t.Errorf("stored fecha should be UTC, got %v", fecha.Location())
	}
}
