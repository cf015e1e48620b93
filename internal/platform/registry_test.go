package platform

import (
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func TestRegistryBuildsKeywordPlatform(t *testing.T) {
	r, st := newTestRegistry(t)
	if err := st.UpsertPlatform(store.Platform{
		PlatformID: "kw-1",
		Name:       "faq",
		Kind:       store.PlatformKeyword,
		Enabled:    true,
		Config: map[string]any{
			"keywords": []any{map[string]any{"keyword": "hi", "response": "hello!"}},
		},
	}); err != nil {
		t.Fatalf("UpsertPlatform: %v", err)
	}

	p, err := r.Get("kw-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	reply, err := p.ProcessMessage(t.Context(), Envelope{Content: "hi there"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if reply.Content != "hello!" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestRegistryRejectsDisabledPlatform(t *testing.T) {
	r, st := newTestRegistry(t)
	if err := st.UpsertPlatform(store.Platform{PlatformID: "p1", Kind: store.PlatformKeyword, Enabled: false}); err != nil {
		t.Fatalf("UpsertPlatform: %v", err)
	}
	if _, err := r.Get("p1"); err == nil {
		t.Fatal("expected error for disabled platform")
	}
}

func TestRegistryCachesUntilConfigChanges(t *testing.T) {
	r, st := newTestRegistry(t)
	if err := st.UpsertPlatform(store.Platform{
		PlatformID: "p1", Kind: store.PlatformKeyword, Enabled: true,
		Config: map[string]any{"keywords": []any{}},
	}); err != nil {
		t.Fatalf("UpsertPlatform: %v", err)
	}

	first, err := r.Get("p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := r.Get("p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Fatal("expected cached instance to be reused")
	}

	if err := st.UpsertPlatform(store.Platform{
		PlatformID: "p1", Kind: store.PlatformKeyword, Enabled: true,
		Config: map[string]any{"keywords": []any{map[string]any{"keyword": "x", "response": "y"}}},
	}); err != nil {
		t.Fatalf("UpsertPlatform: %v", err)
	}
	third, err := r.Get("p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if third == second {
		t.Fatal("expected rebuild after config change")
	}
}
