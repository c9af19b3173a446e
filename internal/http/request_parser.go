// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of the add-expense request.
// The dashboard form posts url-encoded data; API clients post JSON.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to 64 KiB.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.Contains(p.contentType, "application/json") {
		dec := json.NewDecoder(strings.NewReader(string(p.body)))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// WantsJSON reports whether the client sent JSON, even if it failed to parse.
func (p *RequestBodyParser) WantsJSON() bool {
	return p.IsJSON() || strings.Contains(p.contentType, "application/json")
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// expenseInput is a validated add-expense request.
type expenseInput struct {
	Descripcion string
	Categoria   string
	Monto       decimal.Decimal
	Fecha       time.Time
}

var (
	errMissingDescription = errors.New("la descripción es obligatoria")
	errInvalidAmount      = errors.New("monto no válido")
	errInvalidCategory    = errors.New("categoría no válida")
	errInvalidDate        = errors.New("fecha no válida")
)

// parseExpenseInput validates the request fields. A missing fecha means
// now; a date-only fecha is midnight in loc.
func parseExpenseInput(p *RequestBodyParser, now time.Time, loc *time.Location) (expenseInput, error) {
	in := expenseInput{
		Descripcion: p.Get(core.FieldDescripcion),
		Categoria:   p.Get(core.FieldCategoria),
		Fecha:       now,
	}
	if in.Descripcion == "" {
		return in, errMissingDescription
	}
	if len(in.Descripcion) > 200 {
		in.Descripcion = in.Descripcion[:200]
	}

	if in.Categoria == "" {
		in.Categoria = core.DefaultCategory
	} else if !core.IsKnownCategory(in.Categoria) {
		return in, errInvalidCategory
	}

	monto, err := core.ParseAmount(p.Get(core.FieldMonto))
	if err != nil {
		return in, errInvalidAmount
	}
	in.Monto = monto

	if v := p.Get(core.FieldFecha); v != "" {
		if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
			in.Fecha = t
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			in.Fecha = t
		} else {
			return in, errInvalidDate
		}
	}
	return in, nil
}

// fields renders the input the way records are stored.
func (in expenseInput) fields() map[string]any {
	return map[string]any{
		core.FieldDescripcion: in.Descripcion,
		core.FieldCategoria:   in.Categoria,
		core.FieldMonto:       in.Monto.InexactFloat64(),
		core.FieldFecha:       in.Fecha.UTC(),
	}
}
