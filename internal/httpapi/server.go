// Package httpapi implements the management HTTP surface of spec §4.I:
// CRUD over instances, platforms, rules, and listeners; read-only
// endpoints for messages and system resources; and push channels for live
// message and status tailing. It follows the teacher's serve.Server shape
// (a struct of collaborators, Go 1.22+ pattern-matched mux, writeJSON
// helper, goroutine-plus-graceful-shutdown Run loop).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/config"
	"github.com/zj591227045/wxauto-mgt/internal/listener"
	"github.com/zj591227045/wxauto-mgt/internal/metrics"
	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/rules"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// Config holds the listener address and shutdown grace period.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	TLSCertFile     string // both empty disables TLS
	TLSKeyFile      string
}

// Server is the management HTTP API of §4.I.
type Server struct {
	store     store.Store
	rules     *rules.Engine
	platforms *platform.Registry
	agents    *agentpool.Pool
	configs   *config.Registry
	events    *listener.Broker
	metrics   *metrics.Metrics

	cfg       Config
	startedAt time.Time
}

// New builds a Server over its collaborators. events and configs may be
// nil (disables /ws/messages tailing and config-change notifications,
// respectively).
func New(st store.Store, re *rules.Engine, pr *platform.Registry, pool *agentpool.Pool, cfgReg *config.Registry, events *listener.Broker, m *metrics.Metrics, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		store:     st,
		rules:     re,
		platforms: pr,
		agents:    pool,
		configs:   cfgReg,
		events:    events,
		metrics:   m,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// drains in-flight requests within the configured shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			slog.Info("management http api started", "addr", s.cfg.Addr, "tls", true)
			err = srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			slog.Info("management http api started", "addr", s.cfg.Addr, "tls", false)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down management http api")
	case err := <-errCh:
		return err
	}

	if s.events != nil {
		s.events.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/instances", s.handleListInstances)
	mux.HandleFunc("POST /api/instances", s.handleCreateInstance)
	mux.HandleFunc("GET /api/instances/{id}", s.handleGetInstance)
	mux.HandleFunc("PUT /api/instances/{id}", s.handleUpdateInstance)
	mux.HandleFunc("DELETE /api/instances/{id}", s.handleDeleteInstance)
	mux.HandleFunc("POST /api/instances/{id}/enable", s.handleEnableInstance)
	mux.HandleFunc("POST /api/instances/{id}/disable", s.handleDisableInstance)

	mux.HandleFunc("GET /api/platforms", s.handleListPlatforms)
	mux.HandleFunc("POST /api/platforms", s.handleCreatePlatform)
	mux.HandleFunc("GET /api/platforms/{id}", s.handleGetPlatform)
	mux.HandleFunc("PUT /api/platforms/{id}", s.handleUpdatePlatform)
	mux.HandleFunc("DELETE /api/platforms/{id}", s.handleDeletePlatform)
	mux.HandleFunc("POST /api/platforms/{id}/test", s.handleTestPlatform)

	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	mux.HandleFunc("GET /api/rules/conflicts", s.handleRuleConflicts)
	mux.HandleFunc("GET /api/rules/{id}", s.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)

	mux.HandleFunc("GET /api/listeners", s.handleListListeners)
	mux.HandleFunc("POST /api/listeners", s.handleAddListener)
	mux.HandleFunc("DELETE /api/listeners/{instance_id}/{chat_name}", s.handleRemoveListener)

	mux.HandleFunc("GET /api/messages", s.handleListMessages)
	mux.HandleFunc("GET /api/system/resources", s.handleSystemResources)
	mux.HandleFunc("GET /api/instances/{id}/status", s.handleInstanceStatus)

	mux.HandleFunc("GET /ws/messages", s.handleMessagesSSE)
	mux.HandleFunc("GET /ws/status", s.handleStatusWS)

	mux.Handle("GET /metrics", promhttp.Handler())
}
