package listener

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func newMaintenanceStore(t *testing.T) *store.SQLiteStore {
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

func TestMaintenanceHealthCheckMarksErrorOnFailure(t *testing.T) {
	st := newMaintenanceStore(t)
	inst := store.Instance{InstanceID: "inst-1", Name: "a", BaseURL: "http://x", APIKey: "k", Enabled: true, Status: store.StatusOnline, Config: store.DefaultInstanceConfig()}
	if err := st.UpsertInstance(inst); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	pool := agentpool.NewPool()
	pool.Put("inst-1", agentpool.New("inst-1", srv.URL, "k"))

	sched := NewMaintenanceScheduler(pool, st)
	sched.runHealthCheck(t.Context())

	got, err := st.GetInstance("inst-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Status != store.StatusError {
		t.Fatalf("status = %v, want ERROR", got.Status)
	}
	if got.LastError == "" {
		t.Fatal("expected last_error to be set")
	}
}

func TestMaintenanceHealthCheckTouchesOnSuccess(t *testing.T) {
	st := newMaintenanceStore(t)
	inst := store.Instance{InstanceID: "inst-1", Name: "a", BaseURL: "http://x", APIKey: "k", Enabled: true, Status: store.StatusOnline, Config: store.DefaultInstanceConfig()}
	if err := st.UpsertInstance(inst); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "ok"})
	}))
	t.Cleanup(srv.Close)

	pool := agentpool.NewPool()
	pool.Put("inst-1", agentpool.New("inst-1", srv.URL, "k"))

	sched := NewMaintenanceScheduler(pool, st)
	before := time.Now()
	sched.runHealthCheck(t.Context())

	got, err := st.GetInstance("inst-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.LastActiveTS.Before(before) {
		t.Fatalf("expected last_active_ts to advance, got %v before %v", got.LastActiveTS, before)
	}
}
