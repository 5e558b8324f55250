// Package rules holds the learned grammar rule collection: the mapping from
// erroneous expressions to their corrections, bucketed by error type.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
)

// SchemaVersion is the persisted format version understood by this package.
const SchemaVersion = 1

// UnknownType is the bucket used when no error type is given.
const UnknownType = "unknown"

// Rule maps an erroneous expression to its correction.
type Rule struct {
	Original  string   `yaml:"original" json:"original"`
	Corrected []string `yaml:"corrected" json:"corrected"`
	Count     int      `yaml:"count" json:"count"`
	Examples  []string `yaml:"examples" json:"examples"`
	// Removed rules stay in the collection but are ignored by matching.
	Removed bool `yaml:"removed,omitempty" json:"removed,omitempty"`
}

// Correction returns the first correction, or "" when none is recorded.
func (r Rule) Correction() string {
	if len(r.Corrected) == 0 {
		return ""
	}
	return r.Corrected[0]
}

// Words returns the number of whitespace separated tokens in Original.
func (r Rule) Words() int {
	return WordCount(r.Original)
}

// RuleSet is the whole persisted collection.
type RuleSet struct {
	SchemaVersion int               `yaml:"schema_version" json:"schema_version"`
	Descriptions  map[string]string `yaml:"descriptions" json:"descriptions"`
	Rules         map[string][]Rule `yaml:"rules" json:"rules"`
}

// AddResult reports what Add did.
type AddResult struct {
	Type     string
	Original string
	Count    int
	Created  bool
}

// WordCount splits s on whitespace and counts the non-empty tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// New returns an empty rule set carrying the default descriptions.
func New() *RuleSet {
	return &RuleSet{
		SchemaVersion: SchemaVersion,
		Descriptions:  DefaultDescriptions(),
		Rules:         make(map[string][]Rule),
	}
}

// Add records a correction for wrong under errorType. An existing rule with
// the same original has its correction replaced and its count incremented;
// otherwise a new rule with count 1 is appended.
func (rs *RuleSet) Add(errorType, wrong, correct string) (AddResult, error) {
	if wrong == "" || correct == "" {
		return AddResult{}, fmt.Errorf("add rule: wrong and correct expressions required: %w", internalerr.ErrInvalidInput)
	}
	if errorType == "" {
		errorType = UnknownType
	}
	rs.normalize()

	bucket := rs.Rules[errorType]
	for i := range bucket {
		if bucket[i].Original != wrong {
			continue
		}
		// Overwrite, not accumulate: only the latest correction is kept.
		bucket[i].Corrected = []string{correct}
		bucket[i].Count++
		return AddResult{Type: errorType, Original: wrong, Count: bucket[i].Count}, nil
	}

	rs.Rules[errorType] = append(bucket, Rule{
		Original:  wrong,
		Corrected: []string{correct},
		Count:     1,
		Examples:  []string{},
	})
	return AddResult{Type: errorType, Original: wrong, Count: 1, Created: true}, nil
}

// Demote lowers the count of every rule whose original equals expression by
// two (never below zero) and marks it removed once the count drops to one or
// less. It returns the number of rules touched.
func (rs *RuleSet) Demote(expression string) int {
	touched := 0
	for errType, bucket := range rs.Rules {
		for i := range bucket {
			if bucket[i].Original != expression {
				continue
			}
			bucket[i].Count -= 2
			if bucket[i].Count < 0 {
				bucket[i].Count = 0
			}
			if bucket[i].Count <= 1 {
				bucket[i].Removed = true
			}
			touched++
		}
		rs.Rules[errType] = bucket
	}
	return touched
}

// SortByCount orders each bucket by count, highest first. Equal counts keep
// their relative order.
func (rs *RuleSet) SortByCount() {
	for _, bucket := range rs.Rules {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Count > bucket[j].Count
		})
	}
}

// Types returns the error types present in the collection, sorted.
func (rs *RuleSet) Types() []string {
	types := make([]string, 0, len(rs.Rules))
	for t := range rs.Rules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Total counts all rules across all types.
func (rs *RuleSet) Total() int {
	n := 0
	for _, bucket := range rs.Rules {
		n += len(bucket)
	}
	return n
}

// Describe returns the human readable label for errorType, falling back to
// the key itself.
func (rs *RuleSet) Describe(errorType string) string {
	if d, ok := rs.Descriptions[errorType]; ok && d != "" {
		return d
	}
	return errorType
}

func (rs *RuleSet) normalize() {
	if rs.Rules == nil {
		rs.Rules = make(map[string][]Rule)
	}
	if rs.Descriptions == nil {
		rs.Descriptions = DefaultDescriptions()
	}
	if rs.SchemaVersion == 0 {
		rs.SchemaVersion = SchemaVersion
	}
}
