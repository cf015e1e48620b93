// Package dispatch implements the delivery dispatcher of spec §4.H: a
// bounded worker pool that drains PENDING messages, resolves a rule and a
// platform for each, invokes the platform, and relays any reply back
// through the originating agent. It generalizes the teacher's supervision
// loop (error counters, exponential backoff, periodic reconciliation
// sweep) from process restarts to message delivery attempts.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/backoff"
	"github.com/zj591227045/wxauto-mgt/internal/listener"
	"github.com/zj591227045/wxauto-mgt/internal/metrics"
	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/rules"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// Config holds the dispatcher's tunables, all with the defaults named in
// spec §4.H and §4.E.
type Config struct {
	Workers         int           // default 4
	PlatformTimeout time.Duration // default 60s
	MaxAttempts     int           // default 3
	ReclaimLease    time.Duration // default 5 minutes
	ScanInterval    time.Duration // default 2s
	ReclaimInterval time.Duration // default 1 minute
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		PlatformTimeout: 60 * time.Second,
		MaxAttempts:     3,
		ReclaimLease:    5 * time.Minute,
		ScanInterval:    2 * time.Second,
		ReclaimInterval: time.Minute,
	}
}

// Dispatcher drains the message store's PENDING backlog and resolves each
// message to a reply through the rule engine and platform registry.
type Dispatcher struct {
	store     store.Store
	rules     *rules.Engine
	platforms *platform.Registry
	agents    *agentpool.Pool
	events    *listener.Broker
	cfg       Config
	metrics   *metrics.Metrics

	jobs chan store.Message

	leaseMu sync.Mutex
	leased  map[string]struct{} // instance_id|chat_name currently in flight

	retryMu  sync.Mutex
	notBefore map[string]time.Time // message_id -> earliest next attempt, backoff between MarkFailed(retryable) and re-pickup
}

// New builds a Dispatcher. events may be nil if no broker-driven wakeups
// are wanted (the periodic scan alone still drains the backlog).
func New(st store.Store, re *rules.Engine, pr *platform.Registry, pool *agentpool.Pool, events *listener.Broker, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PlatformTimeout <= 0 {
		cfg.PlatformTimeout = DefaultConfig().PlatformTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.ReclaimLease <= 0 {
		cfg.ReclaimLease = DefaultConfig().ReclaimLease
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultConfig().ScanInterval
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = DefaultConfig().ReclaimInterval
	}
	return &Dispatcher{
		store:     st,
		rules:     re,
		platforms: pr,
		agents:    pool,
		events:    events,
		cfg:       cfg,
		jobs:      make(chan store.Message, cfg.Workers*4),
		leased:    make(map[string]struct{}),
		notBefore: make(map[string]time.Time),
	}
}

// SetMetrics wires a metrics sink. Safe to call before Run; nil by
// default (no-op).
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Run starts the worker pool, the backlog scanner, and the reclaim sweep,
// and blocks until ctx is cancelled (spec §5: "shutdown raises cancellation
// on all loops and workers").
func (d *Dispatcher) Run(ctx context.Context) {
	logger := slog.With("component", "dispatch")

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, id)
		}(i)
	}

	// Reclaim stale DELIVERING rows at startup, per §4.E.
	if n, err := d.store.ReclaimStaleDelivering(time.Now().Add(-d.cfg.ReclaimLease)); err != nil {
		logger.Error("reclaim at startup failed", "error", err)
	} else if n > 0 {
		logger.Info("reclaimed stale deliveries at startup", "count", n)
	}

	var events <-chan listener.IngestedEvent
	if d.events != nil {
		ch := d.events.Subscribe()
		events = ch
		defer d.events.Unsubscribe(ch)
	}

	scanTicker := time.NewTicker(d.cfg.ScanInterval)
	defer scanTicker.Stop()
	reclaimTicker := time.NewTicker(d.cfg.ReclaimInterval)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(d.jobs)
			wg.Wait()
			return
		case <-events:
			d.scan(ctx, logger)
		case <-scanTicker.C:
			d.scan(ctx, logger)
		case <-reclaimTicker.C:
			if n, err := d.store.ReclaimStaleDelivering(time.Now().Add(-d.cfg.ReclaimLease)); err != nil {
				logger.Error("reclaim sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("reclaimed stale deliveries", "count", n)
			}
		}
	}
}

// scan pulls the pending backlog and enqueues every message whose
// (instance, chat) pair isn't already claimed by an in-flight worker,
// preserving per-chat ordering (spec §5: "claiming at most one in-flight
// message per (instance, chat) at a time").
func (d *Dispatcher) scan(ctx context.Context, logger *slog.Logger) {
	pending, err := d.store.ListPending(d.cfg.Workers*8, time.Now())
	if err != nil {
		logger.Error("list_pending failed", "error", err)
		return
	}
	// Only the oldest pending message of each (instance, chat) is considered
	// per scan, so a message that is backing off or could not be queued
	// holds back the later messages of its chat.
	seen := make(map[string]bool)
	for _, m := range pending {
		key := leaseKey(m.InstanceID, m.ChatName)
		if seen[key] {
			continue
		}
		seen[key] = true
		if d.isBackingOff(m.MessageID) {
			continue
		}
		if !d.tryLease(key) {
			continue
		}
		select {
		case d.jobs <- m:
		case <-ctx.Done():
			d.releaseLease(key)
			return
		default:
			// worker pool saturated; release the lease and leave the message
			// PENDING for the next scan tick rather than blocking the scanner.
			d.releaseLease(key)
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for m := range d.jobs {
		d.process(ctx, m)
		d.releaseLease(leaseKey(m.InstanceID, m.ChatName))
	}
}

func leaseKey(instanceID, chatName string) string {
	return instanceID + "|" + chatName
}

func (d *Dispatcher) tryLease(key string) bool {
	d.leaseMu.Lock()
	defer d.leaseMu.Unlock()
	if _, ok := d.leased[key]; ok {
		return false
	}
	d.leased[key] = struct{}{}
	return true
}

func (d *Dispatcher) releaseLease(key string) {
	d.leaseMu.Lock()
	defer d.leaseMu.Unlock()
	delete(d.leased, key)
}

func (d *Dispatcher) isBackingOff(messageID string) bool {
	d.retryMu.Lock()
	defer d.retryMu.Unlock()
	until, ok := d.notBefore[messageID]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(d.notBefore, messageID)
		return false
	}
	return true
}

func (d *Dispatcher) scheduleRetry(messageID string, attempt int) {
	d.retryMu.Lock()
	defer d.retryMu.Unlock()
	d.notBefore[messageID] = time.Now().Add(backoff.Delivery.Delay(attempt))
}
