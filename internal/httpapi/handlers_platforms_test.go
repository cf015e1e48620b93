package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func TestCreatePlatformRequiresNameAndKind(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodPost, "/api/platforms", platformRequest{Name: "incomplete"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTestPlatformRunsKeywordPlatformInline(t *testing.T) {
	s, _ := newTestServer(t)
	mux := newTestMux(s)

	rec := doJSON(t, mux, http.MethodPost, "/api/platforms", platformRequest{
		Name: "keyword-bot",
		Kind: store.PlatformKeyword,
		Config: map[string]any{
			"keywords": []any{
				map[string]any{"keyword": "hello", "response": "hi there"},
			},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created store.Platform
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, mux, http.MethodPost, "/api/platforms/"+created.PlatformID+"/test", testPlatformRequest{
		Content: "hello there",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("test status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var reply platform.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reply.Content != "hi there" {
		t.Fatalf("reply content = %q, want %q", reply.Content, "hi there")
	}
}
