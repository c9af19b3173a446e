package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type monthKey struct {
	year int
	name string
}

// MonthlyTotals groups data by (year, month name) of Fecha and sums Monto.
// Results are ordered by year descending, then by month descending using
// the month-name table. Empty input yields an empty slice.
func MonthlyTotals(data []Expense) []MonthlyTotal {
	sums := make(map[monthKey]decimal.Decimal)
	for _, e := range data {
		k := monthKey{year: e.Fecha.Year(), name: MonthName(e.Fecha.Month())}
		sums[k] = sums[k].Add(e.Monto)
	}

	out := make([]MonthlyTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, MonthlyTotal{
			Year:      k.year,
			Month:     time.Month(monthRank(k.name) + 1),
			MonthName: k.name,
			Total:     total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return monthRank(out[i].MonthName) > monthRank(out[j].MonthName)
	})
	return out
}

// YearlyTotals groups data by year of Fecha, ascending.
func YearlyTotals(data []Expense) []YearlyTotal {
	sums := make(map[int]decimal.Decimal)
	for _, e := range data {
		y := e.Fecha.Year()
		sums[y] = sums[y].Add(e.Monto)
	}

	out := make([]YearlyTotal, 0, len(sums))
	for y, total := range sums {
		out = append(out, YearlyTotal{Year: y, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// CategoryTotals sums Monto per category in the display order of
// Categories. Categories with no expenses are omitted.
func CategoryTotals(data []Expense) []CategoryTotal {
	sums := make(map[string]decimal.Decimal)
	for _, e := range data {
		sums[e.Categoria] = sums[e.Categoria].Add(e.Monto)
	}
	out := make([]CategoryTotal, 0, len(sums))
	for _, c := range Categories() {
		if total, ok := sums[c]; ok {
			out = append(out, CategoryTotal{Categoria: c, Total: total})
		}
	}
	return out
}

// DailyTotal sums Monto for expenses dated on the same calendar day as now,
// both read in loc.
func DailyTotal(data []Expense, now time.Time, loc *time.Location) decimal.Decimal {
	today := StartOfDay(now, loc)
	total := decimal.Zero
	for _, e := range data {
		if StartOfDay(e.Fecha, loc).Equal(today) {
			total = total.Add(e.Monto)
		}
	}
	return total
}

// WeeklyTotal sums Monto for expenses dated inside the week containing now.
// Weeks run from Sunday 00:00:00.000 to Saturday 23:59:59.999, both ends
// inclusive.
func WeeklyTotal(data []Expense, now time.Time, loc *time.Location) decimal.Decimal {
	start, end := WeekBounds(now, loc)
	total := decimal.Zero
	for _, e := range data {
		if !e.Fecha.Before(start) && !e.Fecha.After(end) {
			total = total.Add(e.Monto)
		}
	}
	return total
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WeekBounds returns the first and last millisecond of the Sunday-based
// week containing now.
func WeekBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	today := StartOfDay(now, loc)
	start := today.AddDate(0, 0, -int(today.Weekday()))
	end := start.AddDate(0, 0, 7).Add(-time.Millisecond)
	return start, end
}
