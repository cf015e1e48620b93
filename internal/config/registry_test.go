package config

import (
	"testing"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	box, err := cryptobox.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("cryptobox.New: %v", err)
	}
	return New(st, box)
}

func TestSetGetPlaintext(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Set("delivery.max_retry", "3", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := r.Get("delivery.max_retry")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "3" {
		t.Fatalf("expected 3, got %q", got)
	}
}

func TestSetGetEncryptedRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Set("platform.dify.api_key", "sk-secret", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := r.Get("platform.dify.api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-secret" {
		t.Fatalf("expected decrypted value, got %q", got)
	}
}

func TestSubscribersNotifiedOnSet(t *testing.T) {
	r := newTestRegistry(t)
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	if err := r.Set("k", "v", false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case c := <-ch:
		if c.Key != "k" {
			t.Fatalf("expected key k, got %q", c.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := newTestRegistry(t)
	ch := r.Subscribe()
	r.Unsubscribe(ch)

	if err := r.Set("k", "v", false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestAllDecryptsMixedEntries(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Set("plain", "p", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Set("secret", "s", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	all, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all["plain"] != "p" || all["secret"] != "s" {
		t.Fatalf("unexpected values: %+v", all)
	}
}
