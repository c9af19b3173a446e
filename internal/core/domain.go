package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Known expense categories.
const (
	CategoryOcio             = "Ocio"
	CategoryComidaBebida     = "Comida/Bebida"
	CategoryHogar            = "Hogar"
	CategoryGastosPersonales = "Gastos Personales"
	CategoryOtros            = "Otros"

	// DefaultCategory replaces a missing or unknown categoria.
	DefaultCategory = CategoryOtros
	// DefaultColor is used for any category outside the color table.
	DefaultColor = "#C9CBCF"
)

type (
	// Expense is the canonical, normalized form of one stored record.
	Expense struct {
		ID          string          `json:"id"`
		Descripcion string          `json:"descripcion,omitempty"`
		Categoria   string          `json:"categoria"`
		Fecha       time.Time       `json:"fecha"`
		Monto       decimal.Decimal `json:"monto"`
		Color       string          `json:"color"`
	}

	// MonthlyTotal is the sum of Monto for one calendar month.
	MonthlyTotal struct {
		Year      int             `json:"year"`
		Month     time.Month      `json:"month"`
		MonthName string          `json:"monthName"`
		Total     decimal.Decimal `json:"total"`
	}

	// YearlyTotal is the sum of Monto for one calendar year.
	YearlyTotal struct {
		Year  int             `json:"year"`
		Total decimal.Decimal `json:"total"`
	}

	// CategoryTotal is the sum of Monto for one category.
	CategoryTotal struct {
		Categoria string          `json:"categoria"`
		Total     decimal.Decimal `json:"total"`
	}
)

// categoryColors maps each known category to its chart color.
var categoryColors = map[string]string{
	CategoryOcio:             "#FF6384",
	CategoryComidaBebida:     "#36A2EB",
	CategoryHogar:            "#FFCE56",
	CategoryGastosPersonales: "#4BC0C0",
	CategoryOtros:            "#9966FF",
}

// Categories returns the known categories in display order.
func Categories() []string {
	return []string{
		CategoryOcio,
		CategoryComidaBebida,
		CategoryHogar,
		CategoryGastosPersonales,
		CategoryOtros,
	}
}

// IsKnownCategory reports whether name is one of the known categories.
func IsKnownCategory(name string) bool {
	_, ok := categoryColors[name]
	return ok
}

// ColorFor returns the color for a category, or DefaultColor.
func ColorFor(category string) string {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	return DefaultColor
}

// monthNames is the fixed Spanish month table. Its index order is also
// the ordering used when sorting monthly totals.
var monthNames = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// MonthName returns the Spanish name of m, or "" for an invalid month.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

// monthRank returns the position of name in the month table, -1 if unknown.
func monthRank(name string) int {
	for i, n := range monthNames {
		if n == name {
			return i
		}
	}
	return -1
}
