package listener

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func TestEnabledInstancesFiltersDisabledAndDisabledStatus(t *testing.T) {
	st := newIngestStore(t)
	e := &Engine{Store: st}

	mustUpsert(t, st, store.Instance{InstanceID: "a", Name: "a", BaseURL: "http://a", Enabled: true, Status: store.StatusOnline, Config: store.DefaultInstanceConfig()})
	mustUpsert(t, st, store.Instance{InstanceID: "b", Name: "b", BaseURL: "http://b", Enabled: false, Status: store.StatusOnline, Config: store.DefaultInstanceConfig()})
	mustUpsert(t, st, store.Instance{InstanceID: "c", Name: "c", BaseURL: "http://c", Enabled: true, Status: store.StatusDisabled, Config: store.DefaultInstanceConfig()})

	insts, err := e.enabledInstances()
	if err != nil {
		t.Fatalf("enabledInstances: %v", err)
	}
	if len(insts) != 1 || insts[0].InstanceID != "a" {
		t.Fatalf("got %+v, want only instance a", insts)
	}
}

func mustUpsert(t *testing.T, st *store.SQLiteStore, inst store.Instance) {
	t.Helper()
	if err := st.UpsertInstance(inst); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}
}

func TestBackpressureFactorScalesWithPendingDepth(t *testing.T) {
	st := newIngestStore(t)
	e := &Engine{Store: st}

	if got := e.backpressureFactor(); got != 1 {
		t.Fatalf("empty backlog factor = %d, want 1", got)
	}

	for i := 0; i < highWatermark+1; i++ {
		msg := store.Message{
			MessageID:      uniqueID(i),
			InstanceID:     "inst-1",
			ChatName:       "chat",
			Sender:         "alice",
			Content:        "hi",
			ContentHash:    uniqueID(i),
			MType:          store.MsgText,
			DeliveryStatus: store.DeliveryPending,
		}
		if err := st.InsertMessage(msg); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	if got := e.backpressureFactor(); got <= 1 {
		t.Fatalf("backlogged factor = %d, want > 1", got)
	}
}

func uniqueID(i int) string {
	const hex = "0123456789abcdef"
	b := []byte("0000000000000000000000000000000000")
	s := i
	for p := len(b) - 1; p >= 0 && s > 0; p-- {
		b[p] = hex[s%16]
		s /= 16
	}
	return string(b)
}

func TestForEachInstanceVisitsAllBoundedByFanout(t *testing.T) {
	insts := make([]store.Instance, 40)
	for i := range insts {
		insts[i] = store.Instance{InstanceID: uniqueID(i)}
	}

	var visited, inFlight, peak int64
	forEachInstance(context.Background(), insts, func(store.Instance) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		atomic.AddInt64(&visited, 1)
		atomic.AddInt64(&inFlight, -1)
	})

	if got := atomic.LoadInt64(&visited); got != int64(len(insts)) {
		t.Fatalf("visited %d instances, want %d", got, len(insts))
	}
	if got := atomic.LoadInt64(&peak); got > maxFanout {
		t.Fatalf("peak concurrency %d, want <= %d", got, maxFanout)
	}
}
