package listener

import (
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func TestNextOnMessageActivatesFromInactiveOrIdle(t *testing.T) {
	if got := NextOnMessage(store.ListenerInactive); got != store.ListenerActive {
		t.Fatalf("got %v, want ACTIVE", got)
	}
	if got := NextOnMessage(store.ListenerIdle); got != store.ListenerActive {
		t.Fatalf("got %v, want ACTIVE", got)
	}
	if got := NextOnMessage(store.ListenerMarkedForRemoval); got != store.ListenerMarkedForRemoval {
		t.Fatalf("marked-for-removal listener should not reactivate, got %v", got)
	}
}

func TestNextOnIdleTimeoutOnlyAffectsActive(t *testing.T) {
	if got := NextOnIdleTimeout(store.ListenerActive); got != store.ListenerIdle {
		t.Fatalf("got %v, want IDLE", got)
	}
	if got := NextOnIdleTimeout(store.ListenerInactive); got != store.ListenerInactive {
		t.Fatalf("got %v, want unchanged", got)
	}
}

func TestNextOnCleanupPickOnlyAffectsIdle(t *testing.T) {
	if got := NextOnCleanupPick(store.ListenerIdle); got != store.ListenerMarkedForRemoval {
		t.Fatalf("got %v, want MARKED_FOR_REMOVAL", got)
	}
	if got := NextOnCleanupPick(store.ListenerActive); got != store.ListenerActive {
		t.Fatalf("got %v, want unchanged", got)
	}
}

func TestNextOnAgentRemoveConfirmedOnlyAffectsMarked(t *testing.T) {
	if got := NextOnAgentRemoveConfirmed(store.ListenerMarkedForRemoval); got != store.ListenerRemoved {
		t.Fatalf("got %v, want REMOVED", got)
	}
	if got := NextOnAgentRemoveConfirmed(store.ListenerActive); got != store.ListenerActive {
		t.Fatalf("got %v, want unchanged", got)
	}
}
