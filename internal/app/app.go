// Package app wires the collaborators described across spec §4 into one
// lifecycle-managed process: the store, the listener engine (L1/L2/L3),
// the delivery dispatcher, the maintenance scheduler, and the management
// HTTP API. It follows the teacher's cmd/vega/serve.go shape (build once,
// run every component under one cancellation context, wait for them all to
// return) generalized with golang.org/x/sync/errgroup so a fatal error in
// any one component brings the rest down cleanly.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/config"
	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
	"github.com/zj591227045/wxauto-mgt/internal/dispatch"
	"github.com/zj591227045/wxauto-mgt/internal/httpapi"
	"github.com/zj591227045/wxauto-mgt/internal/listener"
	"github.com/zj591227045/wxauto-mgt/internal/metrics"
	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/rules"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// Config holds everything needed to assemble an App, matching the env/config
// surface of spec §6: data dir, bind address, TLS material, master key, and
// the tunables each component already defaults sensibly without.
type Config struct {
	DataDir         string
	BindAddr        string
	TLSCertFile     string
	TLSKeyFile      string
	MasterKeyBase64 string // empty disables at-rest encryption of secrets
	ShutdownTimeout time.Duration
	HealthCheckCron string // default "@every 5s" — sweep resolution; per-instance health_check_interval_s governs actual cadence
	DispatchWorkers int    // 0 uses dispatch.DefaultConfig
}

// App is the assembled, not-yet-running process. Build with New, run with
// Run.
type App struct {
	cfg   Config
	store *store.SQLiteStore
	box   *cryptobox.Box

	configs *config.Registry
	rules   *rules.Engine
	plats   *platform.Registry
	pool    *agentpool.Pool
	events  *listener.Broker
	metr    *metrics.Metrics

	engine      *listener.Engine
	maintenance *listener.MaintenanceScheduler
	dispatcher  *dispatch.Dispatcher
	httpServer  *httpapi.Server
}

// New opens the store and wires every collaborator together. It does not
// start any goroutines; call Run for that.
func New(cfg Config) (*App, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.HealthCheckCron == "" {
		cfg.HealthCheckCron = "@every 5s"
	}

	var box *cryptobox.Box
	if cfg.MasterKeyBase64 != "" {
		b, err := cryptobox.NewFromBase64(cfg.MasterKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("master key: %w", err)
		}
		box = b
	}

	dbPath := cfg.DataDir
	if dbPath != ":memory:" {
		dbPath = cfg.DataDir + "/wxauto-mgt.db"
	}
	st, err := store.Open(dbPath, box)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Init(); err != nil {
		st.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	configs := config.New(st, box)
	rulesEngine := rules.New(st, configs)
	plats := platform.New(st, configs)
	pool := agentpool.NewPool()
	events := listener.NewBroker()
	reg := prometheus.DefaultRegisterer
	metr := metrics.New(reg)

	instances, err := st.ListInstances()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("list instances: %w", err)
	}
	for _, inst := range instances {
		if !inst.Enabled {
			continue
		}
		client := agentpool.New(inst.InstanceID, inst.BaseURL, inst.APIKey)
		client.Configure(inst.Config)
		pool.Put(inst.InstanceID, client)
	}

	ingester := &listener.Ingester{Store: st, Events: events, Metrics: metr}
	engine := &listener.Engine{
		Store:    st,
		Pool:     pool,
		Ingester: ingester,
		Config:   configs,
		Logger:   slog.Default(),
		Metrics:  metr,
	}

	maint := listener.NewMaintenanceScheduler(pool, st)

	dcfg := dispatch.DefaultConfig()
	if cfg.DispatchWorkers > 0 {
		dcfg.Workers = cfg.DispatchWorkers
	}
	dispatcher := dispatch.New(st, rulesEngine, plats, pool, events, dcfg)
	dispatcher.SetMetrics(metr)

	httpServer := httpapi.New(st, rulesEngine, plats, pool, configs, events, metr, httpapi.Config{
		Addr:            cfg.BindAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TLSCertFile:     cfg.TLSCertFile,
		TLSKeyFile:      cfg.TLSKeyFile,
	})

	return &App{
		cfg:         cfg,
		store:       st,
		box:         box,
		configs:     configs,
		rules:       rulesEngine,
		plats:       plats,
		pool:        pool,
		events:      events,
		metr:        metr,
		engine:      engine,
		maintenance: maint,
		dispatcher:  dispatcher,
		httpServer:  httpServer,
	}, nil
}

// Store exposes the underlying store; serve uses it to apply a seed file
// before the rest of the app starts.
func (a *App) Store() *store.SQLiteStore { return a.store }

// Run starts the listener engine, the dispatcher, the maintenance
// scheduler, and the HTTP server concurrently, and blocks until ctx is
// cancelled or one of them returns a fatal error, at which point the rest
// are cancelled too.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.engine.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.dispatcher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.maintenance.Start(ctx, a.cfg.HealthCheckCron)
	})
	g.Go(func() error {
		return a.httpServer.Run(ctx)
	})

	err := g.Wait()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close store: %w", cerr)
	}
	return err
}
