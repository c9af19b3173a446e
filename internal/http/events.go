package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gastos/internal/log"
	"gastos/internal/store"
)

// handleEvents streams the dashboard view as server-sent events. A "state"
// event carries the whole view every time the page or the totals change;
// comment lines keep idle connections open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	changed := make(chan struct{}, 1)
	poke := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	unsubPage := s.pagination.Subscribe(func(store.PaginatedResult) { poke() })
	defer unsubPage()
	unsubTotals := s.aggregates.Subscribe(func(store.Totals) { poke() })
	defer unsubTotals()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	logger.DebugContext(ctx, "Event stream opened")
	defer logger.DebugContext(ctx, "Event stream closed")

	var sent int64 = -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-changed:
			sent++
			if err := writeEvent(w, "state", sent, s.view()); err != nil {
				logger.WarnContext(ctx, "Event stream write failed", log.FieldError, err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, name, data)
	return err
}
