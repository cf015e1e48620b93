package rules

import (
	"testing"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func newTestEngine(t *testing.T, rs ...store.Rule) (*Engine, *store.SQLiteStore) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	for _, r := range rs {
		if err := st.UpsertRule(r); err != nil {
			t.Fatalf("UpsertRule: %v", err)
		}
	}
	return New(st, nil), st
}

func TestResolvePriorityTiebreakBySpecificity(t *testing.T) {
	e, _ := newTestEngine(t,
		store.Rule{RuleID: "R1", InstanceID: "*", ChatPattern: "*", PlatformID: "p1", Priority: 50, Enabled: true},
		store.Rule{RuleID: "R2", InstanceID: "*", ChatPattern: "vip", PlatformID: "p2", Priority: 50, Enabled: true},
	)

	r, ok, err := e.Resolve("inst-1", "vip")
	if err != nil || !ok {
		t.Fatalf("Resolve(vip): ok=%v err=%v", ok, err)
	}
	if r.RuleID != "R2" {
		t.Fatalf("expected R2 for vip (more specific), got %s", r.RuleID)
	}

	r, ok, err = e.Resolve("inst-1", "other")
	if err != nil || !ok {
		t.Fatalf("Resolve(other): ok=%v err=%v", ok, err)
	}
	if r.RuleID != "R1" {
		t.Fatalf("expected R1 for other, got %s", r.RuleID)
	}
}

func TestResolveScopesToInstance(t *testing.T) {
	e, _ := newTestEngine(t,
		store.Rule{RuleID: "R1", InstanceID: "inst-a", ChatPattern: "*", PlatformID: "p1", Priority: 0, Enabled: true},
	)

	if _, ok, err := e.Resolve("inst-b", "any"); err != nil || ok {
		t.Fatalf("expected no match for different instance, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := e.Resolve("inst-a", "any"); err != nil || !ok {
		t.Fatalf("expected match for scoped instance, got ok=%v err=%v", ok, err)
	}
}

func TestResolveRegexFullMatch(t *testing.T) {
	e, _ := newTestEngine(t,
		store.Rule{RuleID: "R1", InstanceID: "*", ChatPattern: "regex:^group-[0-9]+$", PlatformID: "p1", Priority: 0, Enabled: true},
	)

	if _, ok, err := e.Resolve("inst-1", "group-42"); err != nil || !ok {
		t.Fatalf("expected regex match, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := e.Resolve("inst-1", "group-42x"); err != nil || ok {
		t.Fatalf("expected no match for partial overlap, got ok=%v err=%v", ok, err)
	}
}

func TestResolveDeterministicTiebreakByRuleID(t *testing.T) {
	e, _ := newTestEngine(t,
		store.Rule{RuleID: "R-b", InstanceID: "*", ChatPattern: "*", PlatformID: "p1", Priority: 0, Enabled: true},
		store.Rule{RuleID: "R-a", InstanceID: "*", ChatPattern: "*", PlatformID: "p1", Priority: 0, Enabled: true},
	)

	r, ok, err := e.Resolve("inst-1", "x")
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if r.RuleID != "R-a" {
		t.Fatalf("expected lexicographically first rule_id, got %s", r.RuleID)
	}
}

func TestFindConflictsFlagsWildcardAndRegex(t *testing.T) {
	rs := []store.Rule{
		{RuleID: "R1", InstanceID: "*", ChatPattern: "*", Priority: 0},
		{RuleID: "R2", InstanceID: "*", ChatPattern: "vip", Priority: 10},
		{RuleID: "R3", InstanceID: "*", ChatPattern: "regex:^g.*$", Priority: 5},
	}
	conflicts := FindConflicts(rs)
	if len(conflicts) != 3 {
		t.Fatalf("expected 3 pairwise conflicts (all overlap via wildcard/regex), got %d: %+v", len(conflicts), conflicts)
	}
}

func TestFindConflictsIgnoresDisjointInstances(t *testing.T) {
	rs := []store.Rule{
		{RuleID: "R1", InstanceID: "inst-a", ChatPattern: "vip"},
		{RuleID: "R2", InstanceID: "inst-b", ChatPattern: "vip"},
	}
	if conflicts := FindConflicts(rs); len(conflicts) != 0 {
		t.Fatalf("expected no conflicts across disjoint instances, got %+v", conflicts)
	}
}
