// Package rules implements the rule engine of spec §4.F: given
// (instance_id, chat_name), return the highest-priority matching rule.
package rules

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zj591227045/wxauto-mgt/internal/config"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// specificity ranks match kinds for the priority-tie rule (literal >
// regex > wildcard), per §4.F step 4.
type specificity int

const (
	specWildcard specificity = iota
	specRegex
	specLiteral
)

// Engine caches the enabled rule set and invalidates it on a config-change
// signal, per §4.F's "cached; invalidated on change signal".
type Engine struct {
	store store.Store

	mu      sync.RWMutex
	rules   []compiledRule
	primed  bool
}

type compiledRule struct {
	store.Rule
	regex *regexp.Regexp
}

// New builds an Engine over st. If reg is non-nil, the engine subscribes to
// its change broker and invalidates its cache on every signal; callers
// that don't wire a registry must call Invalidate manually after rule
// mutations.
func New(st store.Store, reg *config.Registry) *Engine {
	e := &Engine{store: st}
	if reg != nil {
		ch := reg.Subscribe()
		go func() {
			for range ch {
				e.Invalidate()
			}
		}()
	}
	return e
}

// Invalidate drops the cached rule set; the next Resolve call reloads it.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primed = false
	e.rules = nil
}

func (e *Engine) load() ([]compiledRule, error) {
	e.mu.RLock()
	if e.primed {
		defer e.mu.RUnlock()
		return e.rules, nil
	}
	e.mu.RUnlock()

	enabled, err := e.store.ListEnabledRules()
	if err != nil {
		return nil, err
	}
	compiled := make([]compiledRule, 0, len(enabled))
	for _, r := range enabled {
		cr := compiledRule{Rule: r}
		if expr, ok := strings.CutPrefix(r.ChatPattern, "regex:"); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				continue // invalid pattern: rule never matches rather than failing resolution
			}
			cr.regex = re
		}
		compiled = append(compiled, cr)
	}

	e.mu.Lock()
	e.rules = compiled
	e.primed = true
	e.mu.Unlock()
	return compiled, nil
}

// Resolve returns the highest-priority rule matching (instanceID,
// chatName), or (Rule{}, false) if none match.
func (e *Engine) Resolve(instanceID, chatName string) (store.Rule, bool, error) {
	all, err := e.load()
	if err != nil {
		return store.Rule{}, false, err
	}

	var candidates []compiledRule
	for _, r := range all {
		if r.InstanceID != "*" && r.InstanceID != instanceID {
			continue
		}
		if matchSpecificity(r, chatName) < 0 {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return store.Rule{}, false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		si, sj := matchSpecificity(candidates[i], chatName), matchSpecificity(candidates[j], chatName)
		if si != sj {
			return si > sj
		}
		return candidates[i].RuleID < candidates[j].RuleID
	})

	return candidates[0].Rule, true, nil
}

// matchSpecificity returns the specificity of a match, or -1 if the rule's
// chat_pattern does not match chatName.
func matchSpecificity(r compiledRule, chatName string) specificity {
	switch {
	case r.ChatPattern == "*":
		return specWildcard
	case r.regex != nil:
		if r.regex.MatchString(chatName) && isFullMatch(r.regex, chatName) {
			return specRegex
		}
		return -1
	case r.ChatPattern == chatName:
		return specLiteral
	default:
		return -1
	}
}

// isFullMatch requires the regex to match the whole string, per §4.F's
// "matches iff the regex fully matches".
func isFullMatch(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}
