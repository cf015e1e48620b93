// Package config implements the process-wide key/value registry of spec §4.B:
// a singleton view over the store's config_entries table, with transparent
// encryption for secret fields and a change-notification broker so the
// rule engine and platform registry can drop their caches without polling. The broker is the teacher's serve.EventBroker pattern
// (buffered per-subscriber channel, drop-on-full) generalized from SSE
// events to config-change signals.
package config

import (
	"sync"

	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// Change describes one mutated key, delivered to subscribers after a
// successful write.
type Change struct {
	Key string
}

const subscriberBuffer = 32

// Registry is the singleton config/secret store described in spec §4.B.
// It is safe for concurrent use.
type Registry struct {
	st  store.Store
	box *cryptobox.Box

	mu          sync.RWMutex
	subscribers map[chan Change]struct{}
}

// New builds a Registry backed by st, using box to seal/open values marked
// encrypted. box may be nil if no encrypted keys will ever be set.
func New(st store.Store, box *cryptobox.Box) *Registry {
	return &Registry{
		st:          st,
		box:         box,
		subscribers: make(map[chan Change]struct{}),
	}
}

// Set stores value under key, encrypting it first when encrypted is true,
// then notifies subscribers.
func (r *Registry) Set(key, value string, encrypted bool) error {
	stored := value
	if encrypted {
		if r.box == nil {
			return cryptobox.ErrInvalidKey
		}
		sealed, err := r.box.Seal(value)
		if err != nil {
			return err
		}
		stored = sealed
	}
	if err := r.st.SetConfig(key, stored, encrypted); err != nil {
		return err
	}
	r.publish(Change{Key: key})
	return nil
}

// Get returns the plaintext value for key, transparently decrypting it if
// it was stored encrypted.
func (r *Registry) Get(key string) (string, error) {
	entry, err := r.st.GetConfig(key)
	if err != nil {
		return "", err
	}
	if !entry.Encrypted {
		return entry.Value, nil
	}
	if r.box == nil {
		return "", cryptobox.ErrInvalidKey
	}
	return r.box.Open(entry.Value)
}

// All returns every key with its plaintext value.
func (r *Registry) All() (map[string]string, error) {
	entries, err := r.st.ListConfig()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		v := e.Value
		if e.Encrypted {
			if r.box == nil {
				continue
			}
			v, err = r.box.Open(e.Value)
			if err != nil {
				return nil, err
			}
		}
		out[e.Key] = v
	}
	return out, nil
}

// Subscribe returns a channel that receives a Change after every Set call
// and every Notify call (the HTTP handlers call Notify after writing
// instances, platforms, and rules). The caller must call Unsubscribe when
// done.
func (r *Registry) Subscribe() chan Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Change, subscriberBuffer)
	r.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (r *Registry) Unsubscribe(ch chan Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[ch]; ok {
		delete(r.subscribers, ch)
		close(ch)
	}
}

// Notify publishes a change signal for a key outside the config table
// itself — instances, platforms, rules, and listener configs all mutate
// through the store directly (§4.A), but still need to wake up C, G, and H
// per §4.B's "Publishes a change signal when any entity in (A, platforms,
// rules, listener configs) is mutated" contract.
func (r *Registry) Notify(key string) {
	r.publish(Change{Key: key})
}

func (r *Registry) publish(c Change) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.subscribers {
		select {
		case ch <- c:
		default:
		}
	}
}
