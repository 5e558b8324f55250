package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
)

// Decode parses a persisted rule set. Malformed documents, unknown schema
// versions and documents without a rules section are reported as
// internalerr.ErrParseFailure.
func Decode(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrParseFailure, err)
	}
	if rs.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", internalerr.ErrParseFailure, rs.SchemaVersion)
	}
	if rs.Rules == nil {
		return nil, fmt.Errorf("%w: missing rules section", internalerr.ErrParseFailure)
	}
	if rs.Descriptions == nil {
		rs.Descriptions = make(map[string]string)
	}
	return &rs, nil
}

// Encode renders rs in the persisted format.
func Encode(rs *RuleSet) ([]byte, error) {
	rs.normalize()
	for errType, bucket := range rs.Rules {
		for i := range bucket {
			if bucket[i].Corrected == nil {
				bucket[i].Corrected = []string{}
			}
			if bucket[i].Examples == nil {
				bucket[i].Examples = []string{}
			}
		}
		rs.Rules[errType] = bucket
	}
	return yaml.Marshal(rs)
}
