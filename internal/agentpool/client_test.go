package agentpool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/errs"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, New("inst-1", srv.URL, "test-key")
}

func TestInitializeSuccess(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != "/api/wechat/initialize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(envelope{Code: 0, Message: "ok"})
	})

	if err := client.Initialize(t.Context()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !client.Initialized() {
		t.Fatal("expected initialized=true")
	}
}

func TestInitializeAgentFailureNotRetried(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(envelope{Code: 3001, Message: "boom"})
	})

	err := client.Initialize(t.Context())
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.KindOf(err) != errs.KindAgentFailure {
		t.Fatalf("expected AgentFailure, got %v", errs.KindOf(err))
	}
	if calls != 1 {
		t.Fatalf("mutating call must not retry, got %d calls", calls)
	}
}

func TestNotInitializedCode(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope{Code: 2001, Message: "not ready"})
	})

	err := client.HealthCheck(t.Context())
	if errs.KindOf(err) != errs.KindNotInitialized {
		t.Fatalf("expected NotInitialized, got %v", errs.KindOf(err))
	}
}

func TestGetUnreadMainWindowMessagesRetriesOnAgentFailure(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			// answer 500 (classified AgentFailure, retryable) twice, then succeed
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		batches := []ChatBatch{{ChatName: "g1", Messages: []RawMessage{{Sender: "alice", Content: "hi"}}}}
		data, _ := json.Marshal(batches)
		json.NewEncoder(w).Encode(envelope{Code: 0, Data: data})
	})

	batches, err := client.GetUnreadMainWindowMessages(t.Context())
	if err != nil {
		t.Fatalf("GetUnreadMainWindowMessages: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + success), got %d", calls)
	}
	if len(batches) != 1 || batches[0].ChatName != "g1" {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

func TestInvalidRequestOn4xx(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	err := client.HealthCheck(t.Context())
	if errs.KindOf(err) != errs.KindInvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", errs.KindOf(err))
	}
}

func TestAddListenerSendsExpectedBody(t *testing.T) {
	var captured map[string]any
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		if !strings.HasSuffix(r.URL.Path, "/api/message/listen/add") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(envelope{Code: 0})
	})

	if err := client.AddListener(t.Context(), "g1", AddListenerOptions{Manual: true}); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	if captured["who"] != "g1" || captured["manual"] != true {
		t.Fatalf("unexpected body: %+v", captured)
	}
}
