package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sujalmh/vector-loader-automation/internal/session"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultKeepAlive      = 15 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithRequestTimeout bounds non-streaming requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithKeepAlive sets how often idle event streams receive a comment frame.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		s.keepAlive = d
	}
}

type Server struct {
	Router *chi.Mux
	Port   int

	logger         *slog.Logger
	session        *session.Session
	requestTimeout time.Duration
	keepAlive      time.Duration
	httpServer     *http.Server
	stop           context.CancelFunc
}

func New(port int, logger *slog.Logger, sess *session.Session, opts ...Option) *Server {
	s := &Server{
		Port:           port,
		logger:         logger,
		session:        sess,
		requestTimeout: defaultRequestTimeout,
		keepAlive:      defaultKeepAlive,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "vector-loader")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		// Event streams are long-lived and are not subject to the timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(s.requestTimeout))

			r.Post("/passes", s.handleStart)
			r.Post("/passes/retry", s.handleRetry)
			r.Post("/passes/cancel", s.handleCancel)
			r.Get("/passes/current", s.handleCurrent)
			r.Get("/passes/{passID}/journal", s.handleJournal)

			r.Get("/entities", s.handleEntities)
			r.Get("/entities/{id}", s.handleEntity)
		})
	})

	s.Router = r

	baseCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open event streams, stops accepting requests and waits for
// in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.httpServer.Shutdown(ctx)
}
