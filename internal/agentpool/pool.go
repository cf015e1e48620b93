package agentpool

import (
	"sync"

	"github.com/zj591227045/wxauto-mgt/internal/errs"
)

// Pool owns one Client per enabled instance (spec §3's "exactly one agent
// client instance per instance_id while enabled" invariant).
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewPool builds an empty pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Put installs or replaces the client for instanceID — called on instance
// creation/update, including API key rotation.
func (p *Pool) Put(instanceID string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[instanceID] = c
}

// Remove drops the client for instanceID — called on instance deletion or
// disable.
func (p *Pool) Remove(instanceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, instanceID)
}

// Get returns the client for instanceID, or ErrInstanceNotFound.
func (p *Pool) Get(instanceID string) (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[instanceID]
	if !ok {
		return nil, errs.ErrInstanceNotFound
	}
	return c, nil
}

// InstanceIDs returns a snapshot of the currently pooled instance ids.
func (p *Pool) InstanceIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	return ids
}
