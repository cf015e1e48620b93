package listener

import (
	"testing"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func newIngestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIngestPersistsAndPublishes(t *testing.T) {
	st := newIngestStore(t)
	broker := NewBroker()
	ch := broker.Subscribe()
	in := &Ingester{Store: st, Events: broker}

	result, err := in.Ingest(RawIngest{
		InstanceID: "inst-1",
		ChatName:   "file-helper",
		Sender:     "alice",
		Content:    "hello",
		ReceivedTS: time.Now(),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Duplicate || result.Skipped {
		t.Fatalf("unexpected result: %+v", result)
	}

	select {
	case event := <-ch:
		if event.MessageID != result.MessageID {
			t.Fatalf("event.MessageID = %q, want %q", event.MessageID, result.MessageID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an ingest event to be published")
	}

	msg, err := st.GetMessage(result.MessageID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.DeliveryStatus != store.DeliveryPending {
		t.Fatalf("delivery_status = %v, want PENDING", msg.DeliveryStatus)
	}
}

func TestIngestDedupsWithinWindow(t *testing.T) {
	st := newIngestStore(t)
	in := &Ingester{Store: st}
	raw := RawIngest{InstanceID: "inst-1", ChatName: "file-helper", Sender: "alice", Content: "hello", ReceivedTS: time.Now()}

	first, err := in.Ingest(raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first ingest should not be a duplicate")
	}

	second, err := in.Ingest(raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("second identical ingest should dedup")
	}
}

func TestIngestSkipsSelfMessages(t *testing.T) {
	st := newIngestStore(t)
	in := &Ingester{Store: st}

	result, err := in.Ingest(RawIngest{
		InstanceID: "inst-1",
		ChatName:   "file-helper",
		Sender:     "self",
		Content:    "outbound reply",
		ReceivedTS: time.Now(),
		Self:       true,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.Skipped {
		t.Fatal("self messages should be stored as SKIPPED")
	}

	msg, err := st.GetMessage(result.MessageID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.DeliveryStatus != store.DeliverySkipped {
		t.Fatalf("delivery_status = %v, want SKIPPED", msg.DeliveryStatus)
	}
}
