package listener

import "github.com/zj591227045/wxauto-mgt/internal/store"

// NextOnMessage returns the state after a new message arrives (spec §4.D
// state machine: INACTIVE/IDLE → ACTIVE on any message).
func NextOnMessage(current store.ListenerState) store.ListenerState {
	switch current {
	case store.ListenerInactive, store.ListenerIdle:
		return store.ListenerActive
	default:
		return current
	}
}

// NextOnIdleTimeout returns the state after the idle timeout threshold is
// crossed (ACTIVE → IDLE). Other states are unaffected.
func NextOnIdleTimeout(current store.ListenerState) store.ListenerState {
	if current == store.ListenerActive {
		return store.ListenerIdle
	}
	return current
}

// NextOnCleanupPick returns the state after cleanup selects a listener for
// removal (IDLE → MARKED_FOR_REMOVAL).
func NextOnCleanupPick(current store.ListenerState) store.ListenerState {
	if current == store.ListenerIdle {
		return store.ListenerMarkedForRemoval
	}
	return current
}

// NextOnAgentRemoveConfirmed returns the state after the agent confirms
// remove_listener (MARKED_FOR_REMOVAL → REMOVED).
func NextOnAgentRemoveConfirmed(current store.ListenerState) store.ListenerState {
	if current == store.ListenerMarkedForRemoval {
		return store.ListenerRemoved
	}
	return current
}
