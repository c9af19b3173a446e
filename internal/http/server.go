package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"gastos/internal/feed"
	"gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/report"
	"gastos/internal/store"
	appweb "gastos/web"
)

const (
	defaultKeepAlive       = 15 * time.Second
	defaultRecomputeTicker = time.Minute
)

// Options wires the server to the expense store.
type Options struct {
	Store      *store.Store
	Writer     feed.Writer // nil makes POST /api/expenses answer 503
	Collection string
	PageSize   int
	Currency   report.Currency
	Logger     *log.Logger
	Now        func() time.Time
	KeepAlive  time.Duration
	RateLimit  ratelimit.Config
}

type Server struct {
	http.Server

	store      *store.Store
	pagination *store.Pagination
	aggregates *store.Aggregates
	writer     feed.Writer
	collection string
	currency   report.Currency
	now        func() time.Time
	keepAlive  time.Duration

	templates *template.Template
	logger    *log.Logger
	http      *log.StructuredLogger
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	started   time.Time

	closing      chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.Collection == "" {
		opts.Collection = feed.DefaultCollection
	}
	if opts.Currency.Code == "" {
		opts.Currency = report.GetCurrency("EUR")
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		store:      opts.Store,
		pagination: store.NewPagination(opts.Store, opts.PageSize),
		aggregates: store.NewAggregates(opts.Store, store.WithClock(opts.Now)),
		writer:     opts.Writer,
		collection: opts.Collection,
		currency:   opts.Currency,
		now:        opts.Now,
		keepAlive:  opts.KeepAlive,
		logger:     logger,
		http:       log.NewStructuredLogger(opts.Logger),
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		started:    time.Now(),
		closing:    make(chan struct{}),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	clientIP, err := security.NewClientIP()
	if err != nil {
		logger.Warn("Failed to load trusted proxies", log.FieldError, err)
		clientIP = &security.ClientIP{}
	}
	s.tracer = trace.NewMiddleware(opts.Logger, clientIP.Extract)

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/expenses", s.handleExpenses)
	mux.HandleFunc("GET /api/totals", s.handleTotals)
	mux.HandleFunc("POST /api/page/next", s.handleNextPage)
	mux.HandleFunc("POST /api/page/prev", s.handlePrevPage)
	mux.HandleFunc("POST /api/page", s.handleSetPage)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /events", s.handleEvents)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(clientIP.Extract, ratelimit.WritesOnly)(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.recomputeLoop(defaultRecomputeTicker)

	return s
}

// recomputeLoop keeps the daily and weekly totals current as the clock
// moves past midnight.
func (s *Server) recomputeLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.aggregates.Recompute()
		case <-s.closing:
			return
		}
	}
}

// Shutdown ends open event streams, stops background work and shuts down
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		close(s.closing)
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.pagination.Close()
		s.aggregates.Close()
	})

	return shutdownErr
}
