package platform

import (
	"fmt"
	"sync"

	"github.com/zj591227045/wxauto-mgt/internal/config"
	"github.com/zj591227045/wxauto-mgt/internal/errs"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// factories maps each recognized kind to its constructor, mirroring
// mcp.DefaultRegistry's name→entry map but for platform variants instead
// of MCP servers. New variants are added here, not loaded at runtime
// (spec §9's "extending the enum and registry, not loading code").
var factories = map[store.PlatformKind]Factory{
	store.PlatformDify:    func() Platform { return &DifyPlatform{} },
	store.PlatformOpenAI:  func() Platform { return &OpenAIPlatform{} },
	store.PlatformKeyword: func() Platform { return &KeywordPlatform{} },
}

// Registry caches initialized Platform instances keyed by platform_id and
// rebuilds an entry when its config changes, per §4.G.
type Registry struct {
	store store.Store

	mu    sync.RWMutex
	cache map[string]cachedPlatform
}

type cachedPlatform struct {
	instance Platform
	kind     store.PlatformKind
	version  string // config fingerprint; mismatch triggers rebuild
}

// New builds a Registry over st. If reg is non-nil, it subscribes to
// config-change signals and drops its cache so the next lookup rebuilds
// from the store.
func New(st store.Store, reg *config.Registry) *Registry {
	r := &Registry{store: st, cache: make(map[string]cachedPlatform)}
	if reg != nil {
		ch := reg.Subscribe()
		go func() {
			for range ch {
				r.InvalidateAll()
			}
		}()
	}
	return r
}

// InvalidateAll drops every cached instance.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cachedPlatform)
}

// Get returns the initialized Platform for platformID, building or
// rebuilding it if necessary.
func (r *Registry) Get(platformID string) (Platform, error) {
	p, err := r.store.GetPlatform(platformID)
	if err != nil {
		return nil, errs.Classify(errs.KindStoreError, platformID, err)
	}
	if !p.Enabled {
		return nil, errs.ErrPlatformDisabled
	}

	fingerprint := fmt.Sprintf("%v", p.Config)

	r.mu.RLock()
	cached, ok := r.cache[platformID]
	r.mu.RUnlock()
	if ok && cached.kind == p.Kind && cached.version == fingerprint {
		return cached.instance, nil
	}

	factory, ok := factories[p.Kind]
	if !ok {
		return nil, errs.Classify(errs.KindConfigError, platformID, fmt.Errorf("unknown platform kind %q", p.Kind))
	}
	instance := factory()
	if err := instance.Initialize(p.Config); err != nil {
		return nil, errs.Classify(errs.KindConfigError, platformID, err)
	}

	r.mu.Lock()
	r.cache[platformID] = cachedPlatform{instance: instance, kind: p.Kind, version: fingerprint}
	r.mu.Unlock()

	return instance, nil
}
