package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func TestListMessagesRejectsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodGet, "/api/messages?limit=not-a-number", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListMessagesRejectsBadSince(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodGet, "/api/messages?since=not-a-time", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSystemResourcesReportsCounts(t *testing.T) {
	s, st := newTestServer(t)
	mux := newTestMux(s)

	inst := store.Instance{InstanceID: "inst-1", Name: "a", BaseURL: "http://x", APIKey: "k", Enabled: true, Status: store.StatusOnline, Config: store.DefaultInstanceConfig()}
	if err := st.UpsertInstance(inst); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}
	if err := st.InsertMessage(store.Message{
		MessageID: "m1", InstanceID: "inst-1", ChatName: "chat", Sender: "alice",
		Content: "hi", MType: store.MsgText, ContentHash: "h1", DeliveryStatus: store.DeliveryPending,
	}); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/system/resources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp SystemResourcesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.InstanceCount != 1 {
		t.Fatalf("instance_count = %d, want 1", resp.InstanceCount)
	}
	if resp.PendingMessages != 1 {
		t.Fatalf("pending_messages = %d, want 1", resp.PendingMessages)
	}
	if resp.DBSizeBytes != 0 {
		t.Fatalf("db_size_bytes = %d, want 0 for an in-memory database", resp.DBSizeBytes)
	}
}
