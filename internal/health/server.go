// Package health exposes a lightweight HTTP health endpoint for container probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/logging"
)

const (
	pingTimeout        = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// Pinger is the connectivity check a dependency exposes for health probing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server *http.Server
	logger *logrus.Entry
	mongo  Pinger
	redis  Pinger
}

type response struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
	Redis  string `json:"redis,omitempty"`
}

// NewServer constructs a health server that exposes GET /healthz on the
// provided port. The redis pinger is optional; a nil mongo pinger reports the
// endpoint degraded.
func NewServer(port int, mongo, redis Pinger, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger: logger,
		mongo:  mongo,
		redis:  redis,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}

	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.check(ctx, "mongo", s.mongo) {
		resp.Status = "degraded"
		resp.Mongo = "error"
	}

	// Redis is a cache; its outage degrades the report without being treated
	// as a missing dependency when unconfigured.
	if s.redis != nil && !s.check(ctx, "redis", s.redis) {
		resp.Status = "degraded"
		resp.Redis = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

func (s *Server) check(ctx context.Context, name string, pinger Pinger) bool {
	if pinger == nil {
		s.logger.WithField("event", "health_"+name+"_missing").Warn(name + " checker is not configured for health endpoint")
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pinger.Ping(pingCtx); err != nil {
		s.logger.WithField("event", "health_"+name+"_error").WithError(err).Warn(name + " ping failed during health check")
		return false
	}
	return true
}
