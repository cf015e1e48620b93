package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// MaintenanceScheduler runs the health-check sweep over pooled agent
// clients on a cron cadence, generalizing the teacher's cron-driven job
// scheduler (serve.Scheduler, which fired DSL-defined agent messages on
// user-configured schedules) into a fixed internal maintenance job. It
// runs independently of L1/L2/L3, which keep their own interval timers
// per §4.D. The cron cadence is the sweep's resolution, not the per-instance
// check period: each instance is only actually probed once its own
// `health_check_interval_s` has elapsed since its last probe.
type MaintenanceScheduler struct {
	c     *cron.Cron
	pool  *agentpool.Pool
	store store.Store

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewMaintenanceScheduler builds a scheduler over pool and st.
func NewMaintenanceScheduler(pool *agentpool.Pool, st store.Store) *MaintenanceScheduler {
	return &MaintenanceScheduler{c: cron.New(), pool: pool, store: st, lastRun: make(map[string]time.Time)}
}

// Start registers the health-check job on a cron spec, either standard
// 5-field (e.g. "*/1 * * * *" for once a minute) or a descriptor such as
// "@every 5s", and blocks until ctx is done.
func (m *MaintenanceScheduler) Start(ctx context.Context, healthCheckCron string) error {
	if _, err := m.c.AddFunc(healthCheckCron, func() { m.runHealthCheck(ctx) }); err != nil {
		return err
	}
	m.c.Start()
	slog.Info("listener: maintenance scheduler started", "cron", healthCheckCron)
	<-ctx.Done()
	m.c.Stop()
	slog.Info("listener: maintenance scheduler stopped")
	return nil
}

func (m *MaintenanceScheduler) runHealthCheck(ctx context.Context) {
	insts, err := m.store.ListInstances()
	if err != nil {
		slog.Warn("listener: maintenance list instances failed", "error", err)
		return
	}

	now := time.Now()
	for _, inst := range insts {
		if !inst.Enabled || inst.Status == store.StatusDisabled {
			continue
		}
		if !m.due(inst, now) {
			continue
		}
		client, err := m.pool.Get(inst.InstanceID)
		if err != nil {
			continue
		}

		if err := client.HealthCheck(ctx); err != nil {
			slog.Warn("listener: maintenance health check failed", "instance_id", inst.InstanceID, "error", err)
			if serr := m.store.SetInstanceStatus(inst.InstanceID, store.StatusError, err.Error()); serr != nil {
				slog.Warn("listener: maintenance status update failed", "instance_id", inst.InstanceID, "error", serr)
			}
			continue
		}
		if err := m.store.TouchInstance(inst.InstanceID, now); err != nil {
			slog.Warn("listener: maintenance touch instance failed", "instance_id", inst.InstanceID, "error", err)
		}
		if inst.Status != store.StatusOnline {
			if serr := m.store.SetInstanceStatus(inst.InstanceID, store.StatusOnline, ""); serr != nil {
				slog.Warn("listener: maintenance status update failed", "instance_id", inst.InstanceID, "error", serr)
			}
		}
	}
}

// due reports whether inst's own health_check_interval_s has elapsed since
// its last probe, and records now as its last-probed time if so.
func (m *MaintenanceScheduler) due(inst store.Instance, now time.Time) bool {
	interval := time.Duration(inst.Config.HealthCheckIntervalS) * time.Second
	if interval <= 0 {
		interval = time.Duration(store.DefaultInstanceConfig().HealthCheckIntervalS) * time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastRun[inst.InstanceID]; ok && now.Sub(last) < interval {
		return false
	}
	m.lastRun[inst.InstanceID] = now
	return true
}
