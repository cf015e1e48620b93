package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/rules"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func TestCreateRuleDefaultsInstanceScopeToWildcard(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodPost, "/api/rules", ruleRequest{
		Name: "keyword-rule", ChatPattern: "file-helper", PlatformID: "platform-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created store.Rule
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.InstanceID != "*" {
		t.Fatalf("instance_id = %q, want wildcard default", created.InstanceID)
	}
}

func TestRuleConflictsFlagsIdenticalPatterns(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	doJSON(t, mux, http.MethodPost, "/api/rules", ruleRequest{Name: "a", ChatPattern: "file-helper", PlatformID: "p1"})
	doJSON(t, mux, http.MethodPost, "/api/rules", ruleRequest{Name: "b", ChatPattern: "file-helper", PlatformID: "p2"})

	rec := doJSON(t, mux, http.MethodGet, "/api/rules/conflicts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var conflicts []rules.Conflict
	if err := json.Unmarshal(rec.Body.Bytes(), &conflicts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %+v", len(conflicts), conflicts)
	}
}

func TestRuleConflictsEmptyIsEmptyArrayNotNull(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodGet, "/api/rules/conflicts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "[]\n" && rec.Body.String() != "[]" {
		t.Fatalf("body = %q, want empty JSON array", rec.Body.String())
	}
}
