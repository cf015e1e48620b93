// Package listener implements the message listening engine of spec §4.D:
// three cooperating loops (main-window scan, per-listener poll, idle
// cleanup) sharing an ingest pipeline and a per-listener state machine.
package listener

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zj591227045/wxauto-mgt/internal/metrics"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// dedupWindow is the ingest dedup bucket named in spec §3 and §4.D.
const dedupWindow = 60 * time.Second

// NormalizeContent collapses surrounding whitespace so trivially
// reformatted duplicates hash identically.
func NormalizeContent(content string) string {
	return strings.TrimSpace(content)
}

// ContentHash computes H(sender || normalized_content) for the dedup key.
func ContentHash(sender, content string) string {
	sum := sha256.Sum256([]byte(sender + "\x00" + NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// RawIngest is one message as reported by the agent, before it becomes a
// store.Message.
type RawIngest struct {
	InstanceID    string
	ChatName      string
	Sender        string
	SenderRemark  string
	Content       string
	MType         store.MessageType
	LocalFilePath string
	ReceivedTS    time.Time
	// Self marks system/self/outbound messages, stored as SKIPPED rather
	// than queued for delivery (spec §4.D ingest rule).
	Self bool
}

// Ingester implements the ingest pipeline shared by loops L1 and L2.
type Ingester struct {
	Store   store.Store
	Events  *Broker
	Metrics *metrics.Metrics

	mu sync.Mutex // serializes the dedup check with the insert that follows it
}

// IngestResult reports what Ingest did with one raw message.
type IngestResult struct {
	MessageID string
	Duplicate bool
	Skipped   bool
}

// Ingest dedups, persists, and (for non-skipped messages) announces one raw
// message. L1 and L2 run in separate goroutines and may report the same
// message at the same time, so FindRecentByHash and the InsertMessage that
// follows it run under one mutex: an identical message seen twice within
// the dedup window is stored once. It is safe for concurrent use.
func (in *Ingester) Ingest(raw RawIngest) (IngestResult, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	hash := ContentHash(raw.Sender, raw.Content)
	since := raw.ReceivedTS.Add(-dedupWindow)

	dup, err := in.Store.FindRecentByHash(raw.InstanceID, raw.ChatName, raw.Sender, hash, since)
	if err != nil {
		return IngestResult{}, err
	}
	if dup {
		return IngestResult{Duplicate: true}, nil
	}

	status := store.DeliveryPending
	if raw.Self || raw.MType == store.MsgSystem {
		status = store.DeliverySkipped
	}

	msg := store.Message{
		MessageID:      uuid.NewString(),
		InstanceID:     raw.InstanceID,
		ChatName:       raw.ChatName,
		Sender:         raw.Sender,
		SenderRemark:   raw.SenderRemark,
		Content:        raw.Content,
		MType:          raw.MType,
		ContentHash:    hash,
		LocalFilePath:  raw.LocalFilePath,
		ReceivedTS:     raw.ReceivedTS,
		DeliveryStatus: status,
	}
	if msg.MType == "" {
		msg.MType = store.MsgText
	}

	if err := in.Store.InsertMessage(msg); err != nil {
		return IngestResult{}, err
	}
	if in.Metrics != nil {
		in.Metrics.ObserveIngest(msg.InstanceID)
	}

	if status == store.DeliveryPending && in.Events != nil {
		in.Events.Publish(IngestedEvent{MessageID: msg.MessageID, InstanceID: msg.InstanceID, ChatName: msg.ChatName})
	}

	return IngestResult{MessageID: msg.MessageID, Skipped: status == store.DeliverySkipped}, nil
}
