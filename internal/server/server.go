package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/protocol"
)

// Server is the sync authority's HTTP front: registration, push, the
// pull streams, state and metrics.
type Server struct {
	config    Config
	registry  *Registry
	authority *Authority
	signer    *CookieSigner
	limiter   *pushLimiter

	metrics      *Metrics
	promRegistry *prometheus.Registry

	httpServer *http.Server
	logger     log.Log

	running int32 // atomic bool
	closed  int32 // atomic bool
}

// NewServer wires a server around registry, which the caller owns and
// must Init before serving.
func NewServer(config Config, registry *Registry, logger log.Log) (*Server, error) {
	if registry == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = log.NewNop()
	}

	signer, err := NewCookieSigner(config.CookieSecret, config.CookieTTL)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(promRegistry)

	s := &Server{
		config:       config,
		registry:     registry,
		signer:       signer,
		limiter:      newPushLimiter(config.PushRate, config.PushBurst),
		metrics:      metrics,
		promRegistry: promRegistry,
		logger:       logger.With(log.String("component", "server")),
	}
	s.authority = NewAuthority(registry, metrics, logger)

	if config.CookieSecret == "" {
		s.logger.Warn("No cookie secret configured, using a random one")
	}
	s.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.Int("allowed_origins", len(config.AllowedOrigins)))
	return s, nil
}

// Authority returns the canonical state owner.
func (s *Server) Authority() *Authority {
	return s.authority
}

// Handler returns the HTTP routes wrapped in the CORS layer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+protocol.PathClient, s.handleClient)
	mux.HandleFunc("POST "+protocol.PathPush, s.handlePush)
	mux.HandleFunc("GET "+protocol.PathPull, s.handlePull)
	mux.HandleFunc("GET "+protocol.PathWS, s.handleWebSocket)
	mux.HandleFunc("GET "+protocol.PathState, s.handleState)
	mux.Handle("GET "+protocol.PathMetrics, promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	return withCORS(s.config.AllowedOrigins, mux)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.httpServer = &http.Server{Handler: s.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening",
			log.String("addr", listener.Addr().String()),
			log.Bool("tls", s.tlsEnabled()))
		var err error
		if s.tlsEnabled() {
			err = s.httpServer.ServeTLS(listener, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil && !errors.Is(err, ErrServerNotRunning) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) tlsEnabled() bool {
	return s.config.TLSCertFile != "" && s.config.TLSKeyFile != ""
}

// Stop closes every stream and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	// Streams never go idle on their own; closing the sessions ends them.
	s.registry.Shutdown()
	err := s.httpServer.Shutdown(ctx)

	s.logger.Info("Server stopped")
	return err
}

// Close stops the server if running and prevents further use.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}
	if atomic.LoadInt32(&s.running) == 1 {
		return s.Stop(context.Background())
	}
	return nil
}
