package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/config"
	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/rules"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	configs := config.New(st, nil)
	re := rules.New(st, configs)
	pr := platform.New(st, configs)
	pool := agentpool.NewPool()

	return New(st, re, pr, pool, configs, nil, nil, Config{}), st
}

func newTestMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetInstance(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodPost, "/api/instances", instanceRequest{
		Name: "agent-1", BaseURL: "http://localhost:9001", APIKey: "secret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created store.Instance
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.APIKeyRedacted == "secret" {
		t.Fatal("api_key should never be echoed back in plaintext")
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/instances/"+created.InstanceID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateInstanceRequiresFields(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodPost, "/api/instances", instanceRequest{Name: "incomplete"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetInstanceNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodGet, "/api/instances/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestDisableInstanceRemovesFromPool(t *testing.T) {
	s, st := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodPost, "/api/instances", instanceRequest{
		Name: "agent-1", BaseURL: "http://localhost:9001", APIKey: "secret",
	})
	var created store.Instance
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, mux, http.MethodPost, "/api/instances/"+created.InstanceID+"/disable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got, err := st.GetInstance(created.InstanceID)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Status != store.StatusDisabled || got.Enabled {
		t.Fatalf("instance not disabled: %+v", got)
	}
	if _, err := s.agents.Get(created.InstanceID); err == nil {
		t.Fatal("disabled instance should be removed from the agent pool")
	}
}
