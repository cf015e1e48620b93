package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/errs"
	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// process runs the seven steps of spec §4.H for one message, logging and
// recording a delivery_attempts ledger row for every outcome.
func (d *Dispatcher) process(ctx context.Context, m store.Message) {
	logger := slog.With("component", "dispatch", "message_id", m.MessageID, "instance_id", m.InstanceID, "chat_name", m.ChatName)
	start := time.Now()

	if err := d.store.MarkDelivering(m.MessageID, start); err != nil {
		logger.Error("mark_delivering failed", "error", err)
		return
	}

	rule, ok, err := d.rules.Resolve(m.InstanceID, m.ChatName)
	if err != nil {
		logger.Error("rule resolution failed", "error", err)
		d.fail(m, "", "", 0, "rule resolution error: "+err.Error(), true, start)
		return
	}
	if !ok {
		if err := d.store.SkipMessage(m.MessageID, "no_rule"); err != nil {
			logger.Error("skip failed", "error", err)
		}
		d.record(m.MessageID, "", "", m.DeliveryAttempts, "skipped", "no_rule", start)
		return
	}
	logger = logger.With("rule_id", rule.RuleID, "platform_id", rule.PlatformID)

	platformImpl, err := d.platforms.Get(rule.PlatformID)
	if err != nil {
		d.fail(m, rule.RuleID, rule.PlatformID, m.DeliveryAttempts, "platform unavailable: "+err.Error(), false, start)
		return
	}

	env := platform.Envelope{
		Content:    m.Content,
		Sender:     m.Sender,
		ChatName:   m.ChatName,
		InstanceID: m.InstanceID,
		MType:      string(m.MType),
	}
	if m.LocalFilePath != "" {
		env.Attachments = []string{m.LocalFilePath}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.PlatformTimeout)
	reply, err := platformImpl.ProcessMessage(callCtx, env)
	cancel()

	if err != nil {
		d.fail(m, rule.RuleID, rule.PlatformID, m.DeliveryAttempts, err.Error(), isRetryable(err), start)
		return
	}

	if reply.NoReply {
		if err := d.store.MarkDelivered(m.MessageID, ""); err != nil {
			logger.Error("mark_delivered failed", "error", err)
		}
		d.record(m.MessageID, rule.RuleID, rule.PlatformID, m.DeliveryAttempts, "delivered", "", start)
		return
	}

	if err := d.relay(ctx, m, reply); err != nil {
		d.fail(m, rule.RuleID, rule.PlatformID, m.DeliveryAttempts, "relay failed: "+err.Error(), true, start)
		return
	}

	if err := d.store.MarkDelivered(m.MessageID, reply.Content); err != nil {
		logger.Error("mark_delivered failed", "error", err)
	}
	d.record(m.MessageID, rule.RuleID, rule.PlatformID, m.DeliveryAttempts, "delivered", "", start)
}

// relay sends the platform's reply back to chat_name through the
// originating agent, per §4.H step 5.
func (d *Dispatcher) relay(ctx context.Context, m store.Message, reply platform.Reply) error {
	client, err := d.agents.Get(m.InstanceID)
	if err != nil {
		return err
	}
	if err := client.SendText(ctx, m.ChatName, reply.Content, agentpool.SendOptions{AtList: reply.AtList}); err != nil {
		return err
	}
	if len(reply.Attachments) > 0 {
		if err := client.SendFile(ctx, m.ChatName, reply.Attachments); err != nil {
			return err
		}
	}
	return nil
}

// fail applies the retry/terminal decision of §4.H steps 5-7: a retryable
// failure goes back to PENDING (subject to the backoff window and the
// max-attempts ceiling); anything else is terminal.
func (d *Dispatcher) fail(m store.Message, ruleID, platformID string, attempt int, errMsg string, retryable bool, start time.Time) {
	if retryable && attempt+1 >= d.cfg.MaxAttempts {
		retryable = false
	}
	if err := d.store.MarkFailed(m.MessageID, errMsg, retryable); err != nil {
		slog.Error("mark_failed failed", "message_id", m.MessageID, "error", err)
	}
	if retryable {
		d.scheduleRetry(m.MessageID, attempt+1)
	}
	outcome := "failed"
	d.record(m.MessageID, ruleID, platformID, attempt, outcome, errMsg, start)
}

func (d *Dispatcher) record(messageID, ruleID, platformID string, attempt int, outcome, errMsg string, start time.Time) {
	a := store.DeliveryAttempt{
		MessageID:  messageID,
		PlatformID: platformID,
		RuleID:     ruleID,
		Attempt:    attempt + 1,
		Outcome:    outcome,
		Error:      errMsg,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if err := d.store.InsertDeliveryAttempt(a); err != nil {
		slog.Error("insert delivery attempt failed", "message_id", messageID, "error", err)
	}
	if d.metrics != nil {
		d.metrics.ObserveDelivery(platformID, outcome, time.Since(start))
	}
}

// isRetryable classifies a platform error as retryable (transport/5xx/
// timeout) or terminal (4xx/config), per §4.H step 7.
func isRetryable(err error) bool {
	var classified *errs.Classified
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	return true
}
