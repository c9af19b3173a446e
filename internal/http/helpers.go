package http

import (
	"html/template"
	"strconv"
	"strings"

	"gastos/internal/core"
	"gastos/internal/report"
	"gastos/internal/store"
)

type (
	// dashboardView is what the page and the event stream render.
	dashboardView struct {
		Loading    bool         `json:"loading"`
		Error      string       `json:"error,omitempty"`
		Page       int          `json:"page"`
		TotalPages int          `json:"totalPages"`
		TotalItems int          `json:"totalItems"`
		HasPrev    bool         `json:"hasPrev"`
		HasNext    bool         `json:"hasNext"`
		Rows       []rowView    `json:"rows"`
		Monthly    []totalView  `json:"monthly"`
		Yearly     []totalView  `json:"yearly"`
		Categories []totalView  `json:"categories"`
		Daily      string       `json:"daily"`
		Weekly     string       `json:"weekly"`
		Totals     store.Totals `json:"-"`
		Version    int64        `json:"version"`
		Local      bool         `json:"local"`
	}

	rowView struct {
		ID          string `json:"id"`
		Fecha       string `json:"fecha"`
		Descripcion string `json:"descripcion"`
		Categoria   string `json:"categoria"`
		Color       string `json:"color"`
		Monto       string `json:"monto"`
	}

	totalView struct {
		Label string `json:"label"`
		Total string `json:"total"`
		Color string `json:"color,omitempty"`
	}
)

// view assembles the dashboard from the current pagination and totals.
func (s *Server) view() dashboardView {
	st := s.store.Current()
	return buildView(st, s.pagination.Current(), s.aggregates.Current(), s.currency)
}

func buildView(st store.State, page store.PaginatedResult, totals store.Totals, cur report.Currency) dashboardView {
	v := dashboardView{
		Loading:    page.Loading,
		Error:      page.Error,
		Page:       page.Page,
		TotalPages: page.TotalPages,
		TotalItems: page.TotalItems,
		HasPrev:    page.Page > 1,
		HasNext:    page.Page < page.TotalPages,
		Rows:       make([]rowView, 0, len(page.Data)),
		Monthly:    make([]totalView, 0, len(totals.Monthly)),
		Yearly:     make([]totalView, 0, len(totals.Yearly)),
		Daily:      cur.Format(totals.Daily),
		Weekly:     cur.Format(totals.Weekly),
		Totals:     totals,
		Version:    st.Version,
		Local:      st.Local,
	}
	for _, e := range page.Data {
		fecha := ""
		if !e.Fecha.IsZero() {
			fecha = e.Fecha.Format("02/01/2006")
		}
		v.Rows = append(v.Rows, rowView{
			ID:          e.ID,
			Fecha:       fecha,
			Descripcion: e.Descripcion,
			Categoria:   e.Categoria,
			Color:       e.Color,
			Monto:       cur.Format(e.Monto),
		})
	}
	for _, m := range totals.Monthly {
		v.Monthly = append(v.Monthly, totalView{Label: m.MonthName + " " + strconv.Itoa(m.Year), Total: cur.Format(m.Total)})
	}
	for _, y := range totals.Yearly {
		v.Yearly = append(v.Yearly, totalView{Label: strconv.Itoa(y.Year), Total: cur.Format(y.Total)})
	}
	for _, c := range core.CategoryTotals(st.Data) {
		v.Categories = append(v.Categories, totalView{Label: c.Categoria, Total: cur.Format(c.Total), Color: core.ColorFor(c.Categoria)})
	}
	return v
}

func categoryOptions() []string {
	return core.Categories()
}

var templateFuncs = template.FuncMap{
	// safeColor only lets hex colors through to style attributes.
	"safeColor": func(c string) template.CSS {
		if len(c) == 7 && c[0] == '#' && strings.Trim(c[1:], "0123456789abcdefABCDEF") == "" {
			return template.CSS(c)
		}
		return template.CSS(core.DefaultColor)
	},
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
