// Package report renders the store's views for the terminal, as JSON, or
// as an xlsx workbook.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"gastos/internal/core"
	"gastos/internal/store"
)

// Report is everything one run of the report shows.
type Report struct {
	GeneratedAt time.Time             `json:"generatedAt"`
	Error       string                `json:"error,omitempty"`
	Count       int                   `json:"count"`
	Total       string                `json:"total"`
	Currency    string                `json:"currency"`
	Page        store.PaginatedResult `json:"page"`
	Totals      store.Totals          `json:"totals"`
	ByCategory  []CategoryTotal       `json:"byCategory"`
}

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Categoria string `json:"categoria"`
	Color     string `json:"color"`
	Total     string `json:"total"`
}

// Build assembles a report from a store state.
func Build(st store.State, page, pageSize int, now time.Time, loc *time.Location, cur Currency) Report {
	return Report{
		GeneratedAt: now,
		Error:       st.Error,
		Count:       len(st.Data),
		Total:       core.Sum(st.Data).StringFixed(2),
		Currency:    cur.Code,
		Page:        store.Paginate(st, page, pageSize),
		Totals:      store.ComputeTotals(st, now, loc),
		ByCategory:  byCategory(st.Data),
	}
}

func byCategory(data []core.Expense) []CategoryTotal {
	sums := core.CategoryTotals(data)
	out := make([]CategoryTotal, 0, len(sums))
	for _, s := range sums {
		out = append(out, CategoryTotal{Categoria: s.Categoria, Color: core.ColorFor(s.Categoria), Total: s.Total.StringFixed(2)})
	}
	return out
}

// WriteJSON outputs r as indented JSON
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable outputs r as formatted tables
func WriteTable(w io.Writer, r Report, cur Currency) {
	if r.Error != "" {
		fmt.Fprintln(w, text.FgRed.Sprint(r.Error))
		return
	}

	fmt.Fprintf(w, "%d gastos, página %d de %d\n\n", r.Count, r.Page.Page, r.Page.TotalPages)

	t := newTable(w)
	t.AppendHeader(table.Row{"Fecha", "Descripción", "Categoría", "Monto"})
	for _, e := range r.Page.Data {
		fecha := ""
		if !e.Fecha.IsZero() {
			fecha = e.Fecha.Format("2006-01-02")
		}
		t.AppendRow(table.Row{fecha, e.Descripcion, e.Categoria, cur.Format(e.Monto)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	t.Render()
	fmt.Fprintln(w)

	m := newTable(w)
	m.AppendHeader(table.Row{"Año", "Mes", "Total"})
	for _, mt := range r.Totals.Monthly {
		m.AppendRow(table.Row{mt.Year, mt.MonthName, cur.Format(mt.Total)})
	}
	m.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	m.Render()
	fmt.Fprintln(w)

	y := newTable(w)
	y.AppendHeader(table.Row{"Año", "Total"})
	for _, yt := range r.Totals.Yearly {
		y.AppendRow(table.Row{yt.Year, cur.Format(yt.Total)})
	}
	y.AppendSeparator()
	y.AppendFooter(table.Row{text.Bold.Sprint("Hoy"), text.Bold.Sprint(cur.Format(r.Totals.Daily))})
	y.AppendFooter(table.Row{text.Bold.Sprint("Esta semana"), text.Bold.Sprint(cur.Format(r.Totals.Weekly))})
	y.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	y.Render()

	if len(r.ByCategory) == 0 {
		return
	}
	fmt.Fprintln(w)
	c := newTable(w)
	c.AppendHeader(table.Row{"Categoría", "Total"})
	for _, ct := range r.ByCategory {
		total, _ := decimal.NewFromString(ct.Total)
		c.AppendRow(table.Row{ct.Categoria, cur.Format(total)})
	}
	c.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	c.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// WriteXLSX saves r as a workbook with one sheet per view
func WriteXLSX(path string, r Report, data []core.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	gastos := f.GetSheetName(0)
	if err := f.SetSheetName(gastos, "Gastos"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	gastos = "Gastos"

	rows := [][]any{{"ID", "Fecha", "Descripción", "Categoría", "Monto", "Color"}}
	for _, e := range data {
		var fecha any = ""
		if !e.Fecha.IsZero() {
			fecha = e.Fecha.Format("2006-01-02 15:04")
		}
		monto, _ := e.Monto.Float64()
		rows = append(rows, []any{e.ID, fecha, e.Descripcion, e.Categoria, monto, e.Color})
	}
	if err := writeRows(f, gastos, rows); err != nil {
		return err
	}

	monthly := [][]any{{"Año", "Mes", "Total"}}
	for _, mt := range r.Totals.Monthly {
		total, _ := mt.Total.Float64()
		monthly = append(monthly, []any{mt.Year, mt.MonthName, total})
	}
	if err := addSheet(f, "Mensual", monthly); err != nil {
		return err
	}

	yearly := [][]any{{"Año", "Total"}}
	for _, yt := range r.Totals.Yearly {
		total, _ := yt.Total.Float64()
		yearly = append(yearly, []any{yt.Year, total})
	}
	if err := addSheet(f, "Anual", yearly); err != nil {
		return err
	}

	daily, _ := r.Totals.Daily.Float64()
	weekly, _ := r.Totals.Weekly.Float64()
	summary := [][]any{
		{"Gastos", r.Count},
		{"Total", r.Total},
		{"Hoy", daily},
		{"Esta semana", weekly},
		{"Generado", r.GeneratedAt.Format(time.RFC3339)},
	}
	if err := addSheet(f, "Resumen", summary); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
