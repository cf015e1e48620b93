package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/config"
	"github.com/zj591227045/wxauto-mgt/internal/errs"
	"github.com/zj591227045/wxauto-mgt/internal/metrics"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// maxFanout bounds per-tick instance concurrency per §5: "spawn sub-tasks
// bounded by a semaphore of size min(N_instances, 16)".
const maxFanout = 16

// highWatermark is the pending-queue depth at which L1/L2 slow their tick
// rate, per §5's backpressure rule.
const highWatermark = 1000

// Engine runs loops L1 (main-window scan), L2 (per-listener poll), and L3
// (idle cleanup) described in spec §4.D. Each loop owns its own goroutine
// and in-memory consecutive-error counter; all three share the ingest
// pipeline and the persistent store.
type Engine struct {
	Store    store.Store
	Pool     *agentpool.Pool
	Ingester *Ingester
	Config   *config.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	errL1 errorCounter
	errL2 errorCounter
	errL3 errorCounter

	// pollL1/pollL2/cleanupL3 gate each instance's own poll_interval_s and
	// cleanup_interval_s against the engine's fixed sweep resolution: the
	// sweep runs on a fixed short tick, but an instance is only actually
	// ticked once its own configured interval has elapsed.
	pollL1    tickGate
	pollL2    tickGate
	cleanupL3 tickGate
}

type errorCounter struct {
	consecutive int
}

// tickGate tracks, per key (instance_id), when it was last allowed through.
// Zero value is ready to use.
type tickGate struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (g *tickGate) due(key string, interval time.Duration, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = make(map[string]time.Time)
	}
	if t, ok := g.last[key]; ok && now.Sub(t) < interval {
		return false
	}
	g.last[key] = now
	return true
}

// pollInterval returns cfg's poll_interval_s, falling back to the documented
// default when unset.
func pollInterval(cfg store.InstanceConfig) time.Duration {
	s := cfg.PollIntervalS
	if s <= 0 {
		s = store.DefaultInstanceConfig().PollIntervalS
	}
	return time.Duration(s) * time.Second
}

// cleanupInterval returns cfg's cleanup_interval_s, falling back to the
// documented default when unset.
func cleanupInterval(cfg store.InstanceConfig) time.Duration {
	s := cfg.CleanupIntervalS
	if s <= 0 {
		s = store.DefaultInstanceConfig().CleanupIntervalS
	}
	return time.Duration(s) * time.Second
}

// multiplier returns 3 once the counter reaches threshold, per
// §4.D's "next wait is multiplied by 3" fault-tolerance rule.
func (c *errorCounter) multiplier(threshold int) int {
	if c.consecutive >= threshold {
		return 3
	}
	return 1
}

func (c *errorCounter) recordErr() { c.consecutive++ }
func (c *errorCounter) recordOK()  { c.consecutive = 0 }

// Run starts all three loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	go func() { e.runL1(ctx); done <- struct{}{} }()
	go func() { e.runL2(ctx); done <- struct{}{} }()
	go func() { e.runL3(ctx); done <- struct{}{} }()
	<-ctx.Done()
	<-done
	<-done
	<-done
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// enabledInstances returns the instances eligible for a tick: enabled and
// not DISABLED.
func (e *Engine) enabledInstances() ([]store.Instance, error) {
	all, err := e.Store.ListInstances()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, inst := range all {
		if inst.Enabled && inst.Status != store.StatusDisabled {
			out = append(out, inst)
		}
	}
	return out, nil
}

// backpressureFactor returns the tick-rate slowdown factor per §5: pending
// depth at or above highWatermark linearly stretches the tick interval.
func (e *Engine) backpressureFactor() int {
	counts, err := e.Store.PendingCounts()
	if err != nil {
		return 1
	}
	factor := 1
	if counts.Pending >= highWatermark {
		factor = 1 + counts.Pending/highWatermark
	}
	if e.Metrics != nil {
		e.Metrics.PendingQueueDepth.Set(float64(counts.Pending))
		e.Metrics.BackpressureLevel.Set(float64(factor))
	}
	return factor
}

// forEachInstance runs fn(inst) over insts concurrently, bounded by
// min(len(insts), 16), per §5.
func forEachInstance(ctx context.Context, insts []store.Instance, fn func(store.Instance)) {
	n := int64(len(insts))
	if n == 0 {
		return
	}
	limit := n
	if limit > maxFanout {
		limit = maxFanout
	}
	sem := semaphore.NewWeighted(limit)
	for _, inst := range insts {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(inst store.Instance) {
			defer sem.Release(1)
			fn(inst)
		}(inst)
	}
	sem.Acquire(ctx, limit)
}

func isCancelled(err error) bool {
	return err != nil && errs.KindOf(err) == errs.KindCancelled
}
