package http

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strings"

	"gastos/internal/core"
	"gastos/internal/feed"
	"gastos/internal/log"
)

// handleCreateExpense stores a new expense through the feed writer and shows
// it at once with an optimistic update. The next snapshot replaces it.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		logger.WarnContext(ctx, "Parse body error", log.FieldError, err)
		s.fail(w, p, http.StatusBadRequest, "formato de solicitud no válido")
		return
	}

	if s.writer == nil {
		s.fail(w, p, http.StatusServiceUnavailable, "el origen de datos es de solo lectura")
		return
	}

	in, err := parseExpenseInput(p, s.now(), s.store.Location())
	if err != nil {
		s.fail(w, p, http.StatusUnprocessableEntity, err.Error())
		return
	}

	fields := in.fields()
	id, err := s.writer.Add(ctx, s.collection, fields)
	if err != nil {
		if errors.Is(err, feed.ErrReadOnly) {
			s.fail(w, p, http.StatusServiceUnavailable, "el origen de datos es de solo lectura")
			return
		}
		logger.LogError(ctx, "Failed to save expense", err, log.OpCreate,
			log.NewFields().WithExpense("", in.Descripcion, in.Monto.StringFixed(2), in.Categoria))
		s.fail(w, p, http.StatusInternalServerError, "error al guardar el gasto")
		return
	}

	expense := s.store.Normalize(id, fields)
	s.store.Update(func(data []core.Expense) []core.Expense {
		if slices.ContainsFunc(data, func(e core.Expense) bool { return e.ID == id }) {
			return data
		}
		return append([]core.Expense{expense}, data...)
	})

	s.http.LogExpenseCreated(ctx, id, in.Descripcion, in.Monto.StringFixed(2), in.Categoria)

	if p.IsJSON() {
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "expense": expense})
		return
	}

	msg := fmt.Sprintf("Gasto registrado: %s (%s)", in.Descripcion, s.currency.Format(in.Monto))
	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerExpenseCreated(id).
		TriggerFormReset().
		TriggerNotification(NotificationSuccess, msg, 3000).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

// handleDeleteExpense removes an expense through the feed and drops it from
// the local state until the next snapshot confirms it.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	id := strings.TrimSpace(r.PathValue("id"))
	p := NewRequestBodyParser(r)

	remover, ok := s.writer.(feed.Remover)
	if !ok {
		s.fail(w, p, http.StatusServiceUnavailable, "el origen de datos es de solo lectura")
		return
	}

	found, err := remover.Delete(ctx, s.collection, id)
	if err != nil {
		if errors.Is(err, feed.ErrReadOnly) {
			s.fail(w, p, http.StatusServiceUnavailable, "el origen de datos es de solo lectura")
			return
		}
		logger.LogError(ctx, "Failed to delete expense", err, log.OpDelete, log.NewFields().WithExpense(id, "", "", ""))
		s.fail(w, p, http.StatusInternalServerError, "error al eliminar el gasto")
		return
	}
	if !found {
		s.fail(w, p, http.StatusNotFound, "gasto no encontrado")
		return
	}

	s.store.Update(func(data []core.Expense) []core.Expense {
		return slices.DeleteFunc(data, func(e core.Expense) bool { return e.ID == id })
	})
	s.http.LogExpenseDeleted(ctx, id)

	if r.Header.Get("HX-Request") == "" {
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
		return
	}
	NewHTMXResponse().
		TriggerExpenseDeleted(id).
		TriggerNotification(NotificationSuccess, "Gasto eliminado", 3000).
		Write(w)
}

func (s *Server) fail(w http.ResponseWriter, p *RequestBodyParser, status int, msg string) {
	if p.WantsJSON() {
		writeJSONError(w, status, msg)
		return
	}
	ErrorResponse(status, msg).Write(w)
}
