package rules

import (
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// Conflict flags two rules whose chat_pattern scopes may overlap for some
// chat name, per the supplemented /api/rules/conflicts advisory (§C.7).
// The check is deliberately conservative, matching the source's own
// conflict detector noted in spec §9's open question: any two rules
// involving a regex are flagged as a potential conflict without computing
// true regex-language overlap, and any literal equal to a wildcard's scope
// is flagged too. False positives are acceptable; false negatives are not.
type Conflict struct {
	RuleA  string `json:"rule_a"`
	RuleB  string `json:"rule_b"`
	Reason string `json:"reason"`
}

// FindConflicts reports advisory overlaps across all enabled rules sharing
// an instance scope.
func FindConflicts(rs []store.Rule) []Conflict {
	var out []Conflict
	for i := 0; i < len(rs); i++ {
		for j := i + 1; j < len(rs); j++ {
			a, b := rs[i], rs[j]
			if !scopesOverlap(a.InstanceID, b.InstanceID) {
				continue
			}
			if reason, overlap := patternsOverlap(a, b); overlap {
				out = append(out, Conflict{RuleA: a.RuleID, RuleB: b.RuleID, Reason: reason})
			}
		}
	}
	return out
}

func scopesOverlap(a, b string) bool {
	return a == "*" || b == "*" || a == b
}

func patternsOverlap(a, b store.Rule) (string, bool) {
	ap, bp := a.ChatPattern, b.ChatPattern
	switch {
	case ap == "*" || bp == "*":
		return "wildcard overlaps any pattern", true
	case isRegexPattern(ap) || isRegexPattern(bp):
		return "regex pattern may overlap another rule's scope", true
	case ap == bp:
		return "identical chat_pattern", true
	default:
		return "", false
	}
}

func isRegexPattern(p string) bool {
	return len(p) > 6 && p[:6] == "regex:"
}
