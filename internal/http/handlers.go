package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gastos/internal/log"
	"gastos/internal/store"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports ready once the store has left the loading state
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	st := s.store.Current()
	switch {
	case st.Loading:
		checks["store"] = "loading"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	case st.Failed():
		checks["store"] = "error: " + st.Error
	default:
		checks["store"] = map[string]any{
			"status":    "ok",
			"documents": len(st.Data),
			"version":   st.Version,
		}
	}

	checks["writer"] = "read_only"
	if s.writer != nil {
		checks["writer"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"rejected":       s.limiter.Hits(),
	}
	checks["requests"] = s.tracer.GetMetrics().TotalRequests

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		View       dashboardView
		Categories []string
		Today      string
		CanWrite   bool
	}{
		View:       s.view(),
		Categories: categoryOptions(),
		Today:      s.now().In(s.store.Location()).Format("2006-01-02"),
		CanWrite:   s.writer != nil,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logger.LogError(r.Context(), "Index template execution failed", err, log.OpRender, log.NewFields().WithComponent(log.ComponentTemplate))
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

// handleExpenses returns the current page. A page query parameter reads
// another page without moving the shared one.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			writeJSONError(w, http.StatusBadRequest, "página no válida")
			return
		}
		writeJSON(w, http.StatusOK, store.Paginate(s.store.Current(), page, s.pagination.PageSize()))
		return
	}
	writeJSON(w, http.StatusOK, s.pagination.Current())
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregates.Current())
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	s.pagination.NextPage(s.pagination.Current().TotalPages)
	s.logPageChange(r.Context())
	writeJSON(w, http.StatusOK, s.pagination.Current())
}

func (s *Server) handlePrevPage(w http.ResponseWriter, r *http.Request) {
	s.pagination.PrevPage()
	s.logPageChange(r.Context())
	writeJSON(w, http.StatusOK, s.pagination.Current())
}

// handleSetPage moves the shared page to n. Values below 1 select the
// first page; pages past the end are kept and come back empty.
func (s *Server) handleSetPage(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "formato de solicitud no válido")
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(p.Get("n")))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "página no válida")
		return
	}
	s.pagination.SetPage(n)
	s.logPageChange(r.Context())
	writeJSON(w, http.StatusOK, s.pagination.Current())
}

func (s *Server) logPageChange(ctx context.Context) {
	log.FromContext(ctx).DebugContext(ctx, "Page changed", log.FieldPage, s.pagination.Page(), log.FieldOperation, log.OpPaginate)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
