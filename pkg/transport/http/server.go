package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/observability"
	"github.com/buhlergroup/chatengine/pkg/transport"
)

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	// HealthCheck is probed by GET /healthz when set.
	HealthCheck func(ctx context.Context) error
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// Server wraps an http.Server around the chat endpoint and manages the
// full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	runner     transport.TurnRunner
	inflight   *transport.InFlightRegistry
	config     ServerConfig
	logger     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithHealthCheck sets the health probe backing GET /healthz.
func WithHealthCheck(fn func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.config.HealthCheck = fn }
}

// NewServer creates a transport server around the given turn runner.
// Default middleware (recovery, request ID, logging) is applied
// automatically.
func NewServer(runner transport.TurnRunner, opts ...ServerOption) *Server {
	s := &Server{
		config:   DefaultServerConfig(),
		inflight: transport.NewInFlightRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.runner = transport.Chain(
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)(runner)

	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("DELETE /v1/chat/{threadID}", s.handleStop)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observability.MetricsMiddleware(mux)
}

// handleChat runs one conversation turn, streaming outward events as SSE.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChatRequest(r)
	if err != nil {
		var engineErr *api.EngineError
		if !errors.As(err, &engineErr) {
			engineErr = api.NewInvalidRequestError("", err.Error())
		}
		transport.WriteEngineError(w, engineErr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		ctx = transport.ContextWithRequestID(ctx, reqID)
	}

	// A stop request for the thread aborts this turn.
	s.inflight.Register(req.ThreadID, cancel)
	defer s.inflight.Remove(req.ThreadID)

	writer := newSSEEventWriter(w)
	if err := s.runner.RunTurn(ctx, req, writer); err != nil {
		if writer.hasStartedStreaming() {
			// The stream already carried a terminal event (or the
			// client is gone); nothing sensible left to write.
			s.logger.Debug("turn ended with error after streaming started",
				"thread_id", req.ThreadID, "error", err)
			return
		}
		var engineErr *api.EngineError
		if !errors.As(err, &engineErr) {
			engineErr = api.NewServerError("the conversation could not be started")
		}
		transport.WriteEngineError(w, engineErr)
	}
}

// handleStop cancels the in-flight turn of a thread.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadID")
	if s.inflight.Cancel(threadID) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	transport.WriteEngineError(w, api.NewNotFoundError("no turn in flight for thread"))
}

// handleHealth probes the configured health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.config.HealthCheck != nil {
		if err := s.config.HealthCheck(r.Context()); err != nil {
			transport.WriteErrorResponse(w,
				api.NewServerError("unhealthy"), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// decodeChatRequest validates and parses the chat request body.
func (s *Server) decodeChatRequest(r *http.Request) (*transport.ChatRequest, error) {
	ct := r.Header.Get("Content-Type")
	if ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return nil, api.NewInvalidRequestError("content-type", "expected application/json")
		}
	}

	body := http.MaxBytesReader(nil, r.Body, s.config.MaxBodySize)
	defer body.Close()

	var req transport.ChatRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, api.NewInvalidRequestError("body", "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return nil, api.NewInvalidRequestError("body", "request body is required")
		}
		return nil, api.NewInvalidRequestError("body", "malformed JSON: "+err.Error())
	}

	if strings.TrimSpace(req.ThreadID) == "" {
		return nil, api.NewInvalidRequestError("threadId", "threadId is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, api.NewInvalidRequestError("message", "message is required")
	}
	return &req, nil
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received, then shuts down gracefully, waiting
// for in-flight turns within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx, nil)
}

// ServeOn starts the server on the given listener. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		var err error
		if ln != nil {
			err = s.httpServer.Serve(ln)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
