package listener

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/errs"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

const (
	maxConsecutiveErrorsL1L2 = 5
	maxConsecutiveErrorsL3   = 3
)

// sweepResolution is how often L1/L2 wake up to check which instances are
// actually due for a poll. It is finer than the default poll_interval_s so
// an instance configured with a shorter interval than another is honored
// instead of both ticking in lockstep.
const sweepResolution = 1 * time.Second

// cleanupSweepResolution is L3's equivalent wake-up resolution, checked
// against each instance's own cleanup_interval_s.
const cleanupSweepResolution = 5 * time.Second

// runL1 is the main-window scan loop: discovers new chats and sweeps
// unread messages (spec §4.D Loop L1).
func (e *Engine) runL1(ctx context.Context) {
	tick := func() {
		insts, err := e.enabledInstances()
		if err != nil {
			e.logger().Warn("listener: L1 list instances failed", "error", err)
			return
		}
		now := time.Now()
		due := make([]store.Instance, 0, len(insts))
		for _, inst := range insts {
			if e.pollL1.due(inst.InstanceID, pollInterval(inst.Config), now) {
				due = append(due, inst)
			}
		}
		forEachInstance(ctx, due, func(inst store.Instance) {
			if err := e.tickL1(ctx, inst); err != nil {
				if isCancelled(err) {
					return
				}
				e.errL1.recordErr()
				e.logger().Warn("listener: L1 tick failed", "instance_id", inst.InstanceID, "error", err)
				return
			}
			e.errL1.recordOK()
		})
	}
	e.runTicker(ctx, sweepResolution, &e.errL1, maxConsecutiveErrorsL1L2, tick)
}

func (e *Engine) tickL1(ctx context.Context, inst store.Instance) error {
	client, err := e.Pool.Get(inst.InstanceID)
	if err != nil {
		return nil // no client yet; instance still initializing
	}
	if err := client.EnsureHealthy(ctx); err != nil {
		return nil // unhealthy instance is skipped this tick, not an L1 error
	}

	batches, err := client.GetUnreadMainWindowMessages(ctx)
	if err != nil {
		return err
	}

	count, err := e.Store.CountListeners(inst.InstanceID)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		_, err := e.Store.GetListener(inst.InstanceID, batch.ChatName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		listened := err == nil
		if !listened && count >= inst.Config.MaxListeners {
			e.logger().Info("listener: at capacity, deferring chat", "instance_id", inst.InstanceID, "chat", batch.ChatName)
		} else if !listened {
			if err := client.AddListener(ctx, batch.ChatName, agentpool.AddListenerOptions{}); err != nil {
				e.logger().Warn("listener: add_listener failed", "instance_id", inst.InstanceID, "chat", batch.ChatName, "error", err)
				continue
			}
			now := time.Now()
			if err := e.Store.UpsertListener(store.Listener{
				InstanceID:    inst.InstanceID,
				ChatName:      batch.ChatName,
				AddedTS:       now,
				LastMessageTS: now,
				State:         store.ListenerInactive,
			}); err != nil {
				return err
			}
			count++
			listened = true
		}

		for _, raw := range batch.Messages {
			if _, err := e.Ingester.Ingest(RawIngest{
				InstanceID:   inst.InstanceID,
				ChatName:     batch.ChatName,
				Sender:       raw.Sender,
				SenderRemark: raw.SenderRemark,
				Content:      raw.Content,
				MType:        store.MessageType(raw.MType),
				ReceivedTS:   time.Now(),
				Self:         raw.Self,
			}); err != nil {
				return err
			}
		}
		if listened && len(batch.Messages) > 0 {
			if err := e.touchAndActivate(inst.InstanceID, batch.ChatName); err != nil {
				return err
			}
		}
	}
	return nil
}

// runL2 is the per-listener poll loop (spec §4.D Loop L2).
func (e *Engine) runL2(ctx context.Context) {
	tick := func() {
		listeners, err := e.Store.ListAllListeners()
		if err != nil {
			e.logger().Warn("listener: L2 list listeners failed", "error", err)
			return
		}
		insts, err := e.enabledInstances()
		if err != nil {
			e.logger().Warn("listener: L2 list instances failed", "error", err)
			return
		}
		healthy := make(map[string]store.Instance, len(insts))
		now := time.Now()
		due := make(map[string]bool, len(insts))
		for _, inst := range insts {
			healthy[inst.InstanceID] = inst
			due[inst.InstanceID] = e.pollL2.due(inst.InstanceID, pollInterval(inst.Config), now)
		}

		for _, l := range listeners {
			if l.MarkedForRemoval {
				continue
			}
			inst, ok := healthy[l.InstanceID]
			if !ok || !due[l.InstanceID] {
				continue
			}
			if err := e.tickL2(ctx, inst, l); err != nil {
				if isCancelled(err) {
					return
				}
				e.errL2.recordErr()
				e.logger().Warn("listener: L2 tick failed", "instance_id", l.InstanceID, "chat", l.ChatName, "error", err)
				continue
			}
			e.errL2.recordOK()
		}
	}
	e.runTicker(ctx, sweepResolution, &e.errL2, maxConsecutiveErrorsL1L2, tick)
}

func (e *Engine) tickL2(ctx context.Context, inst store.Instance, l store.Listener) error {
	client, err := e.Pool.Get(inst.InstanceID)
	if err != nil {
		return nil
	}
	if !client.Initialized() {
		return nil
	}

	msgs, err := client.GetListenerMessages(ctx, l.ChatName)
	if err != nil {
		return err
	}
	for _, raw := range msgs {
		if _, err := e.Ingester.Ingest(RawIngest{
			InstanceID:   inst.InstanceID,
			ChatName:     l.ChatName,
			Sender:       raw.Sender,
			SenderRemark: raw.SenderRemark,
			Content:      raw.Content,
			MType:        store.MessageType(raw.MType),
			ReceivedTS:   time.Now(),
			Self:         raw.Self,
		}); err != nil {
			return err
		}
	}
	if len(msgs) > 0 {
		return e.touchAndActivate(inst.InstanceID, l.ChatName)
	}
	return nil
}

// runL3 is the idle cleanup loop (spec §4.D Loop L3).
func (e *Engine) runL3(ctx context.Context) {
	e.runTicker(ctx, cleanupSweepResolution, &e.errL3, maxConsecutiveErrorsL3, func() { e.tickL3(ctx) })
}

// tickL3 is one sweep of the idle cleanup loop: for every listener not
// manual/fixed/already-marked, due for its instance's cleanup_interval_s,
// and past listener_idle_timeout_s, walk it through the §4.D state machine
// (ACTIVE/INACTIVE -> IDLE, then IDLE -> reclaimed) one step per tick.
func (e *Engine) tickL3(ctx context.Context) {
	listeners, err := e.Store.ListAllListeners()
	if err != nil {
		e.logger().Warn("listener: L3 list listeners failed", "error", err)
		return
	}
	insts, err := e.Store.ListInstances()
	if err != nil {
		e.logger().Warn("listener: L3 list instances failed", "error", err)
		return
	}
	cfgByInstance := make(map[string]store.InstanceConfig, len(insts))
	now0 := time.Now()
	dueCleanup := make(map[string]bool, len(insts))
	for _, inst := range insts {
		cfgByInstance[inst.InstanceID] = inst.Config
		dueCleanup[inst.InstanceID] = e.cleanupL3.due(inst.InstanceID, cleanupInterval(inst.Config), now0)
	}
	if e.Metrics != nil {
		active := make(map[string]int, len(insts))
		for _, l := range listeners {
			if l.State == store.ListenerActive || l.State == store.ListenerIdle {
				active[l.InstanceID]++
			}
		}
		for _, inst := range insts {
			e.Metrics.SetActiveListeners(inst.InstanceID, active[inst.InstanceID])
		}
	}

	now := time.Now()
	for _, l := range listeners {
		if l.Manual || l.Fixed || l.MarkedForRemoval {
			continue
		}
		// A listener whose instance no longer exists (deleted underneath
		// it) has no cleanup_interval_s to honor — always eligible so
		// orphaned rows don't linger forever.
		if due, known := dueCleanup[l.InstanceID]; known && !due {
			continue
		}
		cfg, ok := cfgByInstance[l.InstanceID]
		if !ok {
			cfg = store.DefaultInstanceConfig()
		}
		idle := time.Duration(cfg.ListenerIdleTimeoutS) * time.Second
		if now.Sub(l.LastMessageTS) <= idle {
			continue
		}

		// First crossing of the idle timeout: ACTIVE -> IDLE. The listener
		// is parked, not yet reclaimed — it gets at least one more L3 tick
		// to receive a fresh message and go back ACTIVE before cleanup
		// picks it, per the §4.D state diagram. A listener that never left
		// INACTIVE (added but never saw a message) parks the same way —
		// it has no ACTIVE state to fall from, but is just as eligible for
		// eventual cleanup once it has sat idle past the timeout.
		switch l.State {
		case store.ListenerActive:
			l.State = NextOnIdleTimeout(l.State)
		case store.ListenerInactive:
			l.State = store.ListenerIdle
		case store.ListenerIdle:
			if err := e.reclaimListener(ctx, l); err != nil {
				if isCancelled(err) {
					return
				}
				e.errL3.recordErr()
				e.logger().Warn("listener: L3 cleanup failed", "instance_id", l.InstanceID, "chat", l.ChatName, "error", err)
				continue
			}
			e.errL3.recordOK()
			continue
		default:
			continue
		}
		if err := e.Store.UpsertListener(l); err != nil {
			if isCancelled(err) {
				return
			}
			e.errL3.recordErr()
			e.logger().Warn("listener: L3 idle transition failed", "instance_id", l.InstanceID, "chat", l.ChatName, "error", err)
			continue
		}
		e.errL3.recordOK()
	}
}

// reclaimListener drives a listener already in IDLE through the remaining
// §4.D cleanup states: IDLE -> MARKED_FOR_REMOVAL immediately, then
// MARKED_FOR_REMOVAL -> REMOVED once the agent confirms remove_listener, at
// which point the row is dropped.
func (e *Engine) reclaimListener(ctx context.Context, l store.Listener) error {
	l.State = NextOnCleanupPick(l.State)
	if err := e.Store.MarkListenerForRemoval(l.InstanceID, l.ChatName); err != nil {
		return err
	}
	client, err := e.Pool.Get(l.InstanceID)
	if err != nil {
		// Agent client gone (instance disabled/deleted) — drop the row anyway.
		return e.Store.DeleteListener(l.InstanceID, l.ChatName)
	}
	if err := client.RemoveListener(ctx, l.ChatName); err != nil {
		if errs.KindOf(err) == errs.KindCancelled {
			return err
		}
		e.logger().Warn("listener: agent remove_listener failed, row stays marked", "instance_id", l.InstanceID, "chat", l.ChatName, "error", err)
		return nil
	}
	l.State = NextOnAgentRemoveConfirmed(l.State)
	return e.Store.DeleteListener(l.InstanceID, l.ChatName)
}

func (e *Engine) touchAndActivate(instanceID, chatName string) error {
	l, err := e.Store.GetListener(instanceID, chatName)
	if err != nil {
		return err
	}
	l.LastMessageTS = time.Now()
	l.State = NextOnMessage(l.State)
	return e.Store.UpsertListener(l)
}

// runTicker drives tick at interval, multiplying the interval by the error
// counter's backoff multiplier, until ctx is cancelled.
func (e *Engine) runTicker(ctx context.Context, interval time.Duration, counter *errorCounter, threshold int, tick func()) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			factor := counter.multiplier(threshold) * e.backpressureFactor()
			tick()
			timer.Reset(interval * time.Duration(factor))
		}
	}
}
