// Package http serves the reconciliation form: an HTMX page whose fragments
// are re-rendered after every command, plus health, metrics and lookup
// endpoints.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cuadre/internal/cache"
	applog "cuadre/internal/log"
	"cuadre/internal/middleware/ratelimit"
	"cuadre/internal/middleware/security"
	"cuadre/internal/middleware/trace"
	"cuadre/internal/services"
	"cuadre/internal/session"
	appweb "cuadre/web"
)

const configCacheKey = "config-lists"

// Pinger reports backend reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerConfig struct {
	Addr     string
	Service  *services.ReconciliationService
	Sessions *session.Manager
	// Backend is pinged by /readyz when set.
	Backend Pinger
	Logger  *applog.Logger

	// Location is the zone of "today" in the date inputs (default UTC).
	Location *time.Location
	Now      func() time.Time

	// ConfigCacheTTL is how long store and bank lists are reused (default 5m).
	ConfigCacheTTL time.Duration
	RateLimit      ratelimit.Config
	Headers        security.HeadersConfig
}

type appMetrics struct {
	started       time.Time
	saves         atomic.Int64
	duplicates    atomic.Int64
	mismatches    atomic.Int64
	invalidHeader atomic.Int64
	gatewayErrors atomic.Int64
	itemsAdded    atomic.Int64
	itemsRejected atomic.Int64
	invalidInput  atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
}

type Server struct {
	http.Server
	templates *template.Template
	service   *services.ReconciliationService
	sessions  *session.Manager
	backend   Pinger
	location  *time.Location
	now       func() time.Time

	configCache  *cache.LRUCache[services.ConfigLists]
	cacheManager *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	logger  *applog.Logger
	events  *applog.StructuredLogger
	metrics *appMetrics

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates, mounts the routes and wraps them
// in tracing, detection, security headers and POST rate limiting.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = applog.New(applog.DefaultConfig())
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ConfigCacheTTL <= 0 {
		cfg.ConfigCacheTTL = 5 * time.Minute
	}
	if cfg.Headers.CSP == "" {
		cfg.Headers = security.DefaultHeadersConfig()
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.WithComponent(applog.ComponentHTTP)
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		templates:    t,
		service:      cfg.Service,
		sessions:     cfg.Sessions,
		backend:      cfg.Backend,
		location:     cfg.Location,
		now:          cfg.Now,
		configCache:  cache.NewLRUCache[services.ConfigLists](1, cfg.ConfigCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(cfg.RateLimit),
		detector:     security.NewDetector(),
		logger:       logger,
		events:       applog.NewStructuredLogger(cfg.Logger),
		metrics:      &appMetrics{started: cfg.Now()},
	}
	s.tracer = trace.NewMiddleware(cfg.Logger, s.detector.ExtractClientIP)
	s.cacheManager.Register(s.configCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /ui/cuadre", s.handleStatePartial)
	mux.HandleFunc("GET /api/cuadre", s.handleStateJSON)
	mux.HandleFunc("/cuadre/encabezado", s.handleSetHeader)
	mux.HandleFunc("/cuadre/tarjetas", s.handleAddCardPayment)
	mux.HandleFunc("/cuadre/consignaciones", s.handleAddBankDeposit)
	mux.HandleFunc("/cuadre/gastos", s.handleAddExpense)
	mux.HandleFunc("/cuadre/efectivo", s.handleAddCashMovement)
	mux.HandleFunc("/cuadre/guardar", s.handleSave)
	mux.HandleFunc("/cuadre/limpiar", s.handleReset)
	mux.HandleFunc("GET /registros", s.handleRecords)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = security.NewHeadersMiddleware(cfg.Headers).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	s.Handler = handler

	return s, nil
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Demasiadas solicitudes, intente de nuevo en un minuto.").Write(w)
}

// configLists returns the store and bank lists, cached while both loaded.
func (s *Server) configLists(ctx context.Context) services.ConfigLists {
	if lists, ok := s.configCache.Get(configCacheKey); ok {
		s.metrics.cacheHits.Add(1)
		return lists
	}
	s.metrics.cacheMisses.Add(1)

	lists, err := s.service.LoadConfig(ctx)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Configuration list unavailable", applog.FieldError, err.Error())
		return lists
	}
	s.configCache.Set(configCacheKey, lists)
	return lists
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
