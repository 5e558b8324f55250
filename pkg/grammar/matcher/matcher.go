// Package matcher finds known grammar mistakes in free text by whole-word,
// case-insensitive matching of rule originals.
package matcher

import (
	"regexp"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cognicore/grammar/pkg/grammar/rules"
)

const (
	patternTTL      = 30 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Issues maps an error type to its de-duplicated suggestions.
type Issues map[string][]string

// Count returns the number of suggestions across all types.
func (is Issues) Count() int {
	n := 0
	for _, s := range is {
		n += len(s)
	}
	return n
}

// Matcher compiles and caches one pattern per rule original.
type Matcher struct {
	patterns *gocache.Cache
}

// New returns a Matcher with an empty pattern cache.
func New() *Matcher {
	return &Matcher{
		patterns: gocache.New(patternTTL, cleanupInterval),
	}
}

// Pattern returns the compiled whole-word pattern for expression.
func (m *Matcher) Pattern(expression string) *regexp.Regexp {
	if v, ok := m.patterns.Get(expression); ok {
		return v.(*regexp.Regexp)
	}
	// QuoteMeta output always compiles.
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(expression) + `\b`)
	m.patterns.SetDefault(expression, re)
	return re
}

// Matches reports whether expression occurs in text as a whole word.
func (m *Matcher) Matches(expression, text string) bool {
	if expression == "" {
		return false
	}
	return m.Pattern(expression).MatchString(text)
}

// FindIssues scans text against every active rule in rs. Only types with at
// least one suggestion are present in the result.
func (m *Matcher) FindIssues(rs *rules.RuleSet, text string) Issues {
	issues := make(Issues)
	if rs == nil || text == "" {
		return issues
	}

	for _, errType := range rs.Types() {
		var found []string
		seen := make(map[string]struct{})
		for _, r := range rs.Rules[errType] {
			if r.Removed || !m.Matches(r.Original, text) {
				continue
			}
			s := Suggestion(r)
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			found = append(found, s)
		}
		if len(found) > 0 {
			issues[errType] = found
		}
	}
	return issues
}

// Suggestion renders the user facing hint for r.
func Suggestion(r rules.Rule) string {
	return "'" + r.Original + "' should probably be '" + r.Correction() + "'"
}
