package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/id/uuid"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/middleware"
	"github.com/JakeFAU/catalog-scraper/internal/notify"
)

// Runner triggers one scrape run.
type Runner interface {
	RunOnce(ctx context.Context) (int, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context) (int, error)

// RunOnce calls f(ctx).
func (f RunnerFunc) RunOnce(ctx context.Context) (int, error) {
	return f(ctx)
}

// Notifier is the subscriber registry behind the WebSocket channel.
type Notifier interface {
	catalog.Broadcaster
	Subscribe(sub notify.Subscriber) notify.Handle
	Unsubscribe(h notify.Handle)
}

// Options tunes the server.
type Options struct {
	// RequestTimeout bounds CRUD handlers; the scrape trigger and WebSocket are exempt.
	RequestTimeout time.Duration
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// Ready reports downstream readiness for /readyz; nil means always ready.
	Ready func(ctx context.Context) error
	// RequestIDs generates request correlation IDs.
	RequestIDs middleware.RequestIDGenerator
}

// Server wires HTTP handlers to the store, scheduler and notifier.
type Server struct {
	router   chi.Router
	store    catalog.Store
	notifier Notifier
	runner   Runner
	ready    func(ctx context.Context) error
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store catalog.Store, notifier Notifier, runner Runner, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestIDs == nil {
		opts.RequestIDs = uuid.New()
	}
	s := &Server{
		store:    store,
		notifier: notifier,
		runner:   runner,
		ready:    opts.Ready,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(opts.RequestIDs))
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	// Long-lived routes: http.TimeoutHandler cannot hijack and would cut a
	// full scrape short.
	r.Get("/websocket", s.websocket)
	r.Post("/api/products/run_parser_once", s.runParserOnce)
	r.Post("/api/run_parser_once", s.runParserOnce)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Handle("/metrics", metrics.Handler())

		r.Get("/api/products", s.listProducts)
		r.Post("/api/products/add_product", s.addProduct)
		r.Get("/api/products/by-code/{code}", s.getProductByCode)
		r.Get("/api/products/{id}", s.getProduct)
		r.Put("/api/products/{id}", s.updateProduct)
		r.Delete("/api/products/{id}", s.deleteProduct)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) broadcast(ctx context.Context, evt notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Broadcast(context.WithoutCancel(ctx), evt.Encode())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Product not found"})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
