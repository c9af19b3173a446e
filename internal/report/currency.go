package report

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency formats amounts for one currency in one locale
type Currency struct {
	Code    string // "EUR", "USD", "MXN"
	unit    currency.Unit
	tag     language.Tag
	printer *message.Printer
}

// defaultLocaleForCurrency is the locale used when only a code is given
var defaultLocaleForCurrency = map[string]language.Tag{
	"EUR": language.Spanish,
	"USD": language.AmericanEnglish,
	"MXN": language.LatinAmericanSpanish,
	"ARS": language.MustParse("es-AR"),
	"CLP": language.MustParse("es-CL"),
	"COP": language.MustParse("es-CO"),
	"GBP": language.BritishEnglish,
}

// GetCurrency returns the Currency for code in its home locale. Unknown
// codes format as plain numbers followed by the code.
func GetCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "EUR"
	}
	tag, ok := defaultLocaleForCurrency[code]
	if !ok {
		tag = language.Spanish
	}
	return GetCurrencyWithLocale(code, tag)
}

// GetCurrencyWithLocale returns a Currency formatted with tag's conventions
func GetCurrencyWithLocale(code string, tag language.Tag) Currency {
	code = strings.ToUpper(code)
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.Unit{}
	}
	return Currency{
		Code:    code,
		unit:    unit,
		tag:     tag,
		printer: message.NewPrinter(tag),
	}
}

func (c Currency) known() bool {
	return c.unit != currency.Unit{}
}

func (c Currency) symbol() string {
	if !c.known() {
		return c.Code
	}
	return c.printer.Sprint(currency.NarrowSymbol(c.unit))
}

// isPrefix reports currencies whose symbol goes before the amount
func (c Currency) isPrefix() bool {
	switch c.Code {
	case "USD", "GBP", "MXN":
		return true
	}
	return false
}

// Number formats d with two decimals in the currency's locale
func (c Currency) Number(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return c.printer.Sprint(number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Format formats d with the currency symbol
func (c Currency) Format(d decimal.Decimal) string {
	formatted := c.Number(d)
	if c.isPrefix() {
		return c.symbol() + formatted
	}
	return formatted + " " + c.symbol()
}
