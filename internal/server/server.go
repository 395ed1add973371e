// Package server provides the HTTP server and routing for the macro
// stress score pipeline: two public read endpoints, an authenticated
// scheduler trigger, and health/readiness probes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/macrostress/internal/archive"
	"github.com/aristath/macrostress/internal/orchestrator"
	"github.com/aristath/macrostress/internal/readapi"
	"github.com/aristath/macrostress/internal/storage"
)

// Config holds server configuration.
type Config struct {
	Log                   zerolog.Logger
	Port                  int
	DevMode               bool
	DB                    *storage.DB
	Composer              *readapi.Composer
	Orchestrator          *orchestrator.Orchestrator
	Archiver              *archive.Archiver // nil if archiving is not configured
	SchedulerSharedSecret string
}

// Server is the pipeline's HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	db             *storage.DB
	composer       *readapi.Composer
	orchestrator   *orchestrator.Orchestrator
	archiver       *archive.Archiver
	sharedSecret   string
	startedAt      time.Time
	systemHandlers *SystemHandlers
}

// New constructs a Server with routes and middleware wired.
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		db:           cfg.DB,
		composer:     cfg.Composer,
		orchestrator: cfg.Orchestrator,
		archiver:     cfg.Archiver,
		sharedSecret: cfg.SchedulerSharedSecret,
		startedAt:    time.Now().UTC(),
	}
	s.systemHandlers = NewSystemHandlers(s.log, s.db, s.startedAt)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.systemHandlers.HandleHealthz)
	s.router.Get("/readyz", s.systemHandlers.HandleReadyz)

	s.router.Route("/api/public/stress", func(r chi.Router) {
		r.Get("/", s.handleScoreboard)
		r.Get("/{code}/history", s.handleHistory)
	})

	s.router.Get("/api/scheduler/trigger", s.handleSchedulerTrigger)
}

// Start begins serving HTTP requests; blocks until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Int("port", portFromAddr(s.server.Addr)).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func portFromAddr(addr string) int {
	var port int
	fmt.Sscanf(addr, ":%d", &port)
	return port
}

// requestIDMiddleware tags each request with a UUIDv4, propagated via
// chi's request-ID context key so middleware.GetReqID keeps working.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs one structured line per HTTP request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
