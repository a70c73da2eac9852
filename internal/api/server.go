// Package api provides the HTTP API server and handlers for the category mapping server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shopzz/catmap/internal/ratelimit"
	"github.com/shopzz/catmap/internal/sse"
	"github.com/shopzz/catmap/internal/store"
	"github.com/shopzz/catmap/internal/validation"
)

// Options configures the HTTP layer.
type Options struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.SessionStore
	services   *Services
	validator  *validation.Validator
	sseManager *sse.Manager
	sseHandler *sse.Handler
	limiter    *RateLimiter
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	st store.SessionStore,
	services *Services,
	sseManager *sse.Manager,
	v *validation.Validator,
	opts Options,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	humaConfig := huma.DefaultConfig("Category Mapping API", "1.0.0")
	humaConfig.Info.Description = "Maps marketplace category trees onto the canonical catalog"
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s := &Server{
		store:      st,
		services:   services,
		validator:  v,
		sseManager: sseManager,
		router:     router,
		logger:     logger,
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}
	if opts.RateLimitRPS > 0 && opts.RateLimitBurst > 0 {
		s.limiter = ratelimit.New(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	s.setupMiddleware(opts)

	RegisterErrorHandler()
	s.api = humachi.New(router, humaConfig)

	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerMappingRoutes()
	s.registerAutoMapRoutes()
	s.registerSearchRoutes()

	if s.sseHandler != nil {
		router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}
}

// requestLogger logs each request with its status and latency.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("latency", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
