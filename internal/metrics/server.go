package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"virtual-router/internal/config"
)

// Server is the status HTTP server: Prometheus metrics, a health check
// and any JSON views registered with HandleJSON.
type Server struct {
	addr   string
	path   string
	router *mux.Router
	server *http.Server
	ln     net.Listener
	logger *log.Entry
}

func NewServer(addr, path string, m *Metrics, logger *log.Entry) *Server {
	if path == "" {
		path = config.DefaultMetricsPath
	}
	r := mux.NewRouter()
	r.Handle(path, promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &Server{addr: addr, path: path, router: r, logger: logger}
}

// HandleJSON serves the value returned by fn as JSON on path.
func (s *Server) HandleJSON(path string, fn func() any) {
	s.router.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(fn()); err != nil {
			s.logger.WithError(err).Warn("failed to encode status response")
		}
	}).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return handlers.CompressHandler(s.router)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.WithFields(log.Fields{"addr": ln.Addr().String(), "path": s.path}).Info("starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	s.logger.Info("metrics server stopped")
	return nil
}
