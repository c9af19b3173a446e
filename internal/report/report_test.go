package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"

	"gastos/internal/core"
	"gastos/internal/store"
)

func sampleState() store.State {
	return store.State{Data: []core.Expense{
		{ID: "1", Descripcion: "Cena", Categoria: core.CategoryComidaBebida, Fecha: time.Date(2024, 5, 15, 20, 0, 0, 0, time.UTC), Monto: decimal.RequireFromString("23.5")},
		{ID: "2", Descripcion: "Cine", Categoria: core.CategoryOcio, Fecha: time.Date(2024, 5, 14, 18, 0, 0, 0, time.UTC), Monto: decimal.RequireFromString("9.9")},
		{ID: "3", Descripcion: "Luz", Categoria: core.CategoryHogar, Fecha: time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC), Monto: decimal.RequireFromString("60")},
	}}
}

var now = time.Date(2024, 5, 15, 22, 0, 0, 0, time.UTC)

func TestCurrencyFormat(t *testing.T) {
	tests := []struct {
		name string
		cur  Currency
		in   string
		want string
	}{
		{"euro spanish", GetCurrency("EUR"), "387.5", "387,50 €"},
		{"euro default", GetCurrency(""), "0", "0,00 €"},
		{"dollar english", GetCurrency("usd"), "9.9", "$9.90"},
		{"rounds", GetCurrencyWithLocale("EUR", language.Spanish), "1.005", "1,01 €"},
		{"unknown code", GetCurrency("QQQ"), "5", "5,00 QQQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cur.Format(decimal.RequireFromString(tt.in)); got != tt.want {
				t.Errorf("Format(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleState(), 1, 2, now, time.UTC, GetCurrency("EUR"))
	if r.Count != 3 || r.Total != "93.40" {
		t.Fatalf("count/total = %d/%s", r.Count, r.Total)
	}
	if r.Page.TotalPages != 2 || len(r.Page.Data) != 2 {
		t.Fatalf("unexpected page %+v", r.Page)
	}
	if !r.Totals.Daily.Equal(decimal.RequireFromString("23.5")) {
		t.Errorf("daily = %s", r.Totals.Daily)
	}
	if len(r.ByCategory) != 3 || r.ByCategory[0].Categoria != core.CategoryOcio {
		t.Errorf("unexpected categories %+v", r.ByCategory)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Build(sampleState(), 1, 10, now, time.UTC, GetCurrency("EUR"))); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	page, ok := decoded["page"].(map[string]any)
	if !ok {
		t.Fatalf("missing page in %s", buf.String())
	}
	if _, ok := page["paginatedData"]; !ok {
		t.Errorf("page should carry paginatedData: %v", page)
	}
	if decoded["currency"] != "EUR" {
		t.Errorf("currency = %v", decoded["currency"])
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, Build(sampleState(), 1, 10, now, time.UTC, GetCurrency("EUR")), GetCurrency("EUR"))
	out := buf.String()
	for _, want := range []string{"Cena", "23,50 €", "mayo", "Esta semana", "Hogar"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTableError(t *testing.T) {
	var buf bytes.Buffer
	st := store.State{Error: store.LoadErrorMessage}
	WriteTable(&buf, Build(st, 1, 10, now, time.UTC, GetCurrency("EUR")), GetCurrency("EUR"))
	if !strings.Contains(buf.String(), store.LoadErrorMessage) {
		t.Fatalf("error state should print the message, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "Fecha") {
		t.Fatal("error state should not print tables")
	}
}

func TestWriteXLSX(t *testing.T) {
	st := sampleState()
	path := filepath.Join(t.TempDir(), "gastos.xlsx")
	if err := WriteXLSX(path, Build(st, 1, 10, now, time.UTC, GetCurrency("EUR")), st.Data); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{"Gastos", "Mensual", "Anual", "Resumen"}
	if len(sheets) != len(want) {
		t.Fatalf("sheets = %v, want %v", sheets, want)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Fatalf("sheets = %v, want %v", sheets, want)
		}
	}

	rows, err := f.GetRows("Gastos")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 || rows[1][2] != "Cena" {
		t.Fatalf("unexpected Gastos rows %v", rows)
	}
	monthly, _ := f.GetRows("Mensual")
	if len(monthly) != 3 || monthly[1][1] != "mayo" {
		t.Fatalf("unexpected Mensual rows %v", monthly)
	}
}
