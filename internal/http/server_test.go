package http

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/feed"
	"gastos/internal/feed/memory"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/store"
)

var may15 = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	feed  *memory.Feed
	store *store.Store
}

func seedDocs(n int) []feed.Document {
	docs := make([]feed.Document, n)
	for i := range docs {
		docs[i] = feed.Document{
			ID: "g" + string(rune('a'+i)),
			Fields: map[string]any{
				core.FieldDescripcion: "Gasto " + string(rune('A'+i)),
				core.FieldCategoria:   core.CategoryHogar,
				core.FieldMonto:       10.0,
				core.FieldFecha:       time.Date(2024, time.May, 1+i, 10, 0, 0, 0, time.UTC),
			},
		}
	}
	return docs
}

func newTestEnv(t *testing.T, docs []feed.Document, writable bool, mutate ...func(*Options)) *testEnv {
	t.Helper()
	f := memory.New()
	f.Set(feed.DefaultCollection, docs)

	st := store.New(context.Background(), f, store.Config{Location: time.UTC})
	opts := Options{
		Store:    st,
		PageSize: 2,
		Now:      func() time.Time { return may15 },
	}
	if writable {
		opts.Writer = f
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv := NewServer(":0", opts)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		st.UnsubscribeFromFeed()
	})
	return &testEnv{srv: srv, feed: f, store: st}
}

func (e *testEnv) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, seedDocs(1), false)

	rr := env.do(http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}
}

func TestReadyz(t *testing.T) {
	t.Run("loading", func(t *testing.T) {
		// a feed that never delivers
		st := store.New(context.Background(), silentFeed{}, store.Config{Location: time.UTC})
		srv := NewServer(":0", Options{Store: st})
		t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 while loading, got %d", rr.Code)
		}
	})

	t.Run("ready", func(t *testing.T) {
		env := newTestEnv(t, seedDocs(3), true)
		rr := env.do(http.MethodGet, "/readyz", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		body := decode[map[string]any](t, rr)
		checks := body["checks"].(map[string]any)
		if checks["writer"] != "ok" {
			t.Errorf("writer check = %v", checks["writer"])
		}
	})

	t.Run("failed feed stays ready", func(t *testing.T) {
		env := newTestEnv(t, seedDocs(1), false)
		env.feed.Fail(feed.DefaultCollection, context.DeadlineExceeded)
		rr := env.do(http.MethodGet, "/readyz", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		body := decode[map[string]any](t, rr)
		checks := body["checks"].(map[string]any)
		if !strings.HasPrefix(checks["store"].(string), "error:") {
			t.Errorf("store check = %v", checks["store"])
		}
	})
}

type silentFeed struct{}

func (silentFeed) Subscribe(context.Context, feed.Query, func([]feed.Document), func(error)) (feed.Unsubscribe, error) {
	return func() {}, nil
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, seedDocs(3), true)

	rr := env.do(http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Gasto C", "Página 1 de 2", `name="descripcion"`, "10,00 €", "2024-05-15"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}

	readOnly := newTestEnv(t, seedDocs(1), false)
	if strings.Contains(readOnly.do(http.MethodGet, "/", "", "").Body.String(), "expense-form") {
		t.Error("read-only dashboard should not render the form")
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil, false)
	if rr := env.do(http.MethodGet, "/nope", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, nil, false)
	rr := env.do(http.MethodGet, "/static/app.js", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestExpensesPages(t *testing.T) {
	env := newTestEnv(t, seedDocs(5), false)

	page := decode[store.PaginatedResult](t, env.do(http.MethodGet, "/api/expenses", "", ""))
	if page.Page != 1 || page.TotalPages != 3 || page.TotalItems != 5 || len(page.Data) != 2 {
		t.Fatalf("unexpected first page %+v", page)
	}
	if page.Data[0].Descripcion != "Gasto E" {
		t.Errorf("newest first, got %q", page.Data[0].Descripcion)
	}

	next := decode[store.PaginatedResult](t, env.do(http.MethodPost, "/api/page/next", "", ""))
	if next.Page != 2 {
		t.Fatalf("next page = %d", next.Page)
	}
	env.do(http.MethodPost, "/api/page/next", "", "")
	last := decode[store.PaginatedResult](t, env.do(http.MethodPost, "/api/page/next", "", ""))
	if last.Page != 3 || len(last.Data) != 1 {
		t.Fatalf("next past the end should stay on 3, got %+v", last)
	}

	for range 4 {
		env.do(http.MethodPost, "/api/page/prev", "", "")
	}
	if p := env.srv.pagination.Page(); p != 1 {
		t.Fatalf("prev should stop at 1, got %d", p)
	}

	other := decode[store.PaginatedResult](t, env.do(http.MethodGet, "/api/expenses?page=3", "", ""))
	if other.Page != 3 || env.srv.pagination.Page() != 1 {
		t.Fatalf("page query should not move the shared page: %+v", other)
	}
	beyond := decode[store.PaginatedResult](t, env.do(http.MethodGet, "/api/expenses?page=9", "", ""))
	if beyond.Page != 9 || len(beyond.Data) != 0 {
		t.Fatalf("page past the end should be empty, got %+v", beyond)
	}

	for _, bad := range []string{"0", "-1", "x"} {
		if rr := env.do(http.MethodGet, "/api/expenses?page="+bad, "", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("page=%s: expected 400, got %d", bad, rr.Code)
		}
	}
}

func TestSetPage(t *testing.T) {
	env := newTestEnv(t, seedDocs(5), false)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantPage    int
		wantItems   int
	}{
		{"json", "application/json", `{"n":2}`, http.StatusOK, 2, 2},
		{"form", "application/x-www-form-urlencoded", "n=3", http.StatusOK, 3, 1},
		{"past the end", "application/json", `{"n":7}`, http.StatusOK, 7, 0},
		{"max int", "application/json", `{"n":9223372036854775807}`, http.StatusOK, math.MaxInt, 0},
		{"below one", "application/json", `{"n":-3}`, http.StatusOK, 1, 2},
		{"not a number", "application/json", `{"n":"dos"}`, http.StatusBadRequest, 1, 0},
		{"missing", "application/json", `{}`, http.StatusBadRequest, 1, 0},
		{"malformed", "application/json", `{"n":`, http.StatusBadRequest, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/api/page", tt.contentType, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[store.PaginatedResult](t, rr)
			if got.Page != tt.wantPage || len(got.Data) != tt.wantItems {
				t.Fatalf("page %d with %d items, want page %d with %d", got.Page, len(got.Data), tt.wantPage, tt.wantItems)
			}
			if env.srv.pagination.Page() != tt.wantPage {
				t.Errorf("shared page = %d, want %d", env.srv.pagination.Page(), tt.wantPage)
			}
		})
	}
}

func TestDeleteExpense(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		env := newTestEnv(t, seedDocs(3), true)
		rr := env.do(http.MethodDelete, "/api/expenses/gb", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if body := decode[map[string]string](t, rr); body["id"] != "gb" {
			t.Fatalf("unexpected body %v", body)
		}
		st := env.store.Current()
		if len(st.Data) != 2 {
			t.Fatalf("expected 2 expenses left, got %d", len(st.Data))
		}
		for _, e := range st.Data {
			if e.ID == "gb" {
				t.Fatal("deleted expense still in the store")
			}
		}
	})

	t.Run("htmx", func(t *testing.T) {
		env := newTestEnv(t, seedDocs(1), true)
		req := httptest.NewRequest(http.MethodDelete, "/api/expenses/ga", nil)
		req.Header.Set("HX-Request", "true")
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, "expense:deleted") {
			t.Errorf("HX-Trigger missing expense:deleted: %s", trigger)
		}
	})

	tests := []struct {
		name       string
		target     string
		writable   bool
		wantStatus int
	}{
		{"unknown id", "/api/expenses/nope", true, http.StatusNotFound},
		{"read only", "/api/expenses/ga", false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, seedDocs(2), tt.writable)
			rr := env.do(http.MethodDelete, tt.target, "application/json", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if n := len(env.store.Current().Data); n != 2 {
				t.Errorf("store changed on failure: %d expenses", n)
			}
		})
	}
}

func TestTotals(t *testing.T) {
	env := newTestEnv(t, seedDocs(3), false)

	totals := decode[store.Totals](t, env.do(http.MethodGet, "/api/totals", "", ""))
	if len(totals.Monthly) != 1 || totals.Monthly[0].Total.StringFixed(2) != "30.00" {
		t.Fatalf("unexpected monthly totals %+v", totals.Monthly)
	}
	if len(totals.Yearly) != 1 || totals.Yearly[0].Year != 2024 {
		t.Fatalf("unexpected yearly totals %+v", totals.Yearly)
	}
	if !totals.Daily.IsZero() {
		t.Errorf("daily = %s, want 0", totals.Daily)
	}
}

func TestCreateExpense(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		env := newTestEnv(t, seedDocs(2), true)
		rr := env.do(http.MethodPost, "/api/expenses", "application/json",
			`{"descripcion":"Pan","categoria":"Comida/Bebida","monto":2.5,"fecha":"2024-05-15"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		body := decode[map[string]any](t, rr)
		if body["id"] == "" {
			t.Fatal("missing id")
		}

		st := env.store.Current()
		if len(st.Data) != 3 || st.Data[0].Descripcion != "Pan" {
			t.Fatalf("expense not stored once at the top: %+v", st.Data)
		}
		if !st.Data[0].Monto.Equal(decimal.RequireFromString("2.5")) {
			t.Errorf("monto = %s", st.Data[0].Monto)
		}
	})

	t.Run("form", func(t *testing.T) {
		env := newTestEnv(t, nil, true)
		form := url.Values{"descripcion": {"Luz"}, "categoria": {"Hogar"}, "monto": {"40,10"}}
		rr := env.do(http.MethodPost, "/api/expenses", "application/x-www-form-urlencoded", form.Encode())
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		trigger := rr.Header().Get("HX-Trigger")
		for _, want := range []string{"expense:created", "form:reset", "show-notification"} {
			if !strings.Contains(trigger, want) {
				t.Errorf("HX-Trigger missing %s: %s", want, trigger)
			}
		}
		if !strings.Contains(rr.Body.String(), "40,10 €") {
			t.Errorf("unexpected body %s", rr.Body.String())
		}
		if d := decode[store.Totals](t, env.do(http.MethodGet, "/api/totals", "", "")).Daily; d.StringFixed(2) != "40.10" {
			t.Errorf("daily total = %s", d)
		}
	})

	tests := []struct {
		name        string
		body        string
		contentType string
		writable    bool
		wantStatus  int
		wantText    string
	}{
		{"missing description", `{"monto":"3"}`, "application/json", true, http.StatusUnprocessableEntity, "descripción"},
		{"bad amount", `{"descripcion":"x","monto":"abc"}`, "application/json", true, http.StatusUnprocessableEntity, "monto no válido"},
		{"bad category", `{"descripcion":"x","monto":"1","categoria":"Viajes"}`, "application/json", true, http.StatusUnprocessableEntity, "categoría"},
		{"bad date", `{"descripcion":"x","monto":"1","fecha":"15/05/2024"}`, "application/json", true, http.StatusUnprocessableEntity, "fecha"},
		{"malformed json", `{"descripcion":`, "application/json", true, http.StatusBadRequest, "formato"},
		{"read only", `{"descripcion":"x","monto":"1"}`, "application/json", false, http.StatusServiceUnavailable, "solo lectura"},
		{"form error is html", "descripcion=&monto=1", "application/x-www-form-urlencoded", true, http.StatusUnprocessableEntity, `class="error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, seedDocs(1), tt.writable)
			rr := env.do(http.MethodPost, "/api/expenses", tt.contentType, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.wantText) {
				t.Errorf("body %q should contain %q", rr.Body.String(), tt.wantText)
			}
			if n := len(env.store.Current().Data); n != 1 {
				t.Errorf("store changed on failure: %d expenses", n)
			}
		})
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, nil, true, func(o *Options) {
		o.RateLimit = ratelimit.Config{Requests: 2, Window: time.Minute}
	})

	for i := range 2 {
		if rr := env.do(http.MethodPost, "/api/page/next", "", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	if rr := env.do(http.MethodPost, "/api/page/next", "", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/expenses", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rr.Code)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, seedDocs(1), true)
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()
	defer func() { _ = env.srv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := make(chan dashboardView, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				var v dashboardView
				if json.Unmarshal([]byte(data), &v) == nil {
					select {
					case events <- v:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		close(events)
	}()

	next := func() dashboardView {
		t.Helper()
		select {
		case v, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			return v
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
		return dashboardView{}
	}

	first := next()
	if first.TotalItems != 1 || len(first.Rows) != 1 || first.Rows[0].Monto != "10,00 €" {
		t.Fatalf("unexpected first event %+v", first)
	}

	env.feed.Set(feed.DefaultCollection, seedDocs(3))
	for {
		v := next()
		if v.TotalItems == 3 {
			if v.TotalPages != 2 || !v.HasNext {
				t.Fatalf("unexpected view %+v", v)
			}
			break
		}
	}
}
