package gateway

import (
	"sort"
	"strings"
)

// RewriteRule replaces a declared path prefix before forwarding. An empty
// Replacement strips the prefix.
type RewriteRule struct {
	Prefix      string
	Replacement string
}

// Rewriter applies prefix rewrite rules as a pure string transform. When
// several rules could apply, the longest declared prefix wins.
type Rewriter struct {
	rules []RewriteRule
}

func NewRewriter(rules []RewriteRule) *Rewriter {
	ordered := make([]RewriteRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})
	return &Rewriter{rules: ordered}
}

// Rewrite returns the downstream path for an inbound path. Paths no rule
// covers pass through unchanged; a rewrite that empties the path yields
// "/".
func (r *Rewriter) Rewrite(path string) string {
	for _, rule := range r.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			rewritten := rule.Replacement + strings.TrimPrefix(path, rule.Prefix)
			if rewritten == "" {
				return "/"
			}
			return rewritten
		}
	}
	return path
}
