package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"storico/internal/cache"
	"storico/internal/core"
	"storico/internal/lockout"
	applog "storico/internal/log"
	"storico/internal/middleware/ratelimit"
	"storico/internal/middleware/security"
	"storico/internal/middleware/trace"
	"storico/internal/services"
	appweb "storico/web"
)

// HistoryProvider computes client purchase histories.
type HistoryProvider interface {
	History(ctx context.Context, clientID string, opts services.HistoryOptions) (core.History, bool, error)
	Empty(clientID string, opts services.HistoryOptions) core.History
	Invalidate(clientID string) int
}

// Publisher announces that a client's sales changed.
type Publisher interface {
	PublishSaleRecorded(ctx context.Context, clientID, saleID string) error
}

// CheckFunc is a named readiness probe.
type CheckFunc func(ctx context.Context) error

// Options wires the server dependencies. Only History is required.
type Options struct {
	History HistoryProvider
	// Syncer refetches a client snapshot synchronously on admin refresh.
	Syncer services.Syncer
	// Publisher queues the refresh instead; it wins over Syncer when both are set.
	Publisher Publisher

	// AdminToken enables the admin endpoints. Empty disables them.
	AdminToken string
	Lockout    *lockout.Guard

	RateLimit       ratelimit.Config
	BlockSuspicious bool

	// CacheStats reports history cache counters for /metrics.
	CacheStats  func() cache.Stats
	ReadyChecks map[string]CheckFunc

	Logger *applog.Logger
}

type Server struct {
	http.Server
	templates *template.Template

	history    HistoryProvider
	syncer     services.Syncer
	publisher  Publisher
	adminToken string
	lockout    *lockout.Guard
	cacheStats func() cache.Stats
	checks     map[string]CheckFunc

	detector        *security.Detector
	rateLimiter     *ratelimit.Limiter
	traceMiddleware *trace.Middleware
	logger          *applog.Logger

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	guard := opts.Lockout
	if guard == nil {
		guard = lockout.New(lockout.DefaultConfig(), nil)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		history:     opts.History,
		syncer:      opts.Syncer,
		publisher:   opts.Publisher,
		adminToken:  opts.AdminToken,
		lockout:     guard,
		cacheStats:  opts.CacheStats,
		checks:      opts.ReadyChecks,
		detector:    security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		logger:      logger,
		startedAt:   time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/clients/{id}/history", s.handleHistoryAPI)
	// UI partials
	mux.HandleFunc("GET /ui/clients/{id}/history", s.handleHistoryPartial)

	mux.HandleFunc("POST /admin/clients/{id}/refresh", s.handleAdminRefresh)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.writeRateLimited)(handler)
	handler = s.detector.Middleware(opts.BlockSuspicious)(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
}
