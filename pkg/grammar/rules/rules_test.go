package rules

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
)

func TestAddIsIdempotentOnOriginal(t *testing.T) {
	rs := New()

	first, err := rs.Add("grammar", "buyed", "bought")
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := rs.Add("grammar", "buyed", "bought")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, 2, second.Count)

	require.Len(t, rs.Rules["grammar"], 1)
	rule := rs.Rules["grammar"][0]
	assert.Equal(t, 2, rule.Count)
	assert.Equal(t, []string{"bought"}, rule.Corrected)
}

func TestAddOverwritesCorrection(t *testing.T) {
	rs := New()
	_, err := rs.Add("grammar", "X", "Y")
	require.NoError(t, err)
	_, err = rs.Add("grammar", "X", "Z")
	require.NoError(t, err)

	require.Len(t, rs.Rules["grammar"], 1)
	assert.Equal(t, []string{"Z"}, rs.Rules["grammar"][0].Corrected)
	assert.Equal(t, 2, rs.Rules["grammar"][0].Count)
}

func TestAddMatchesCaseSensitively(t *testing.T) {
	rs := New()
	_, _ = rs.Add("tense", "Buyed", "Bought")
	_, _ = rs.Add("tense", "buyed", "bought")

	assert.Len(t, rs.Rules["tense"], 2)
}

func TestAddDefaultsTypeAndRejectsEmpty(t *testing.T) {
	rs := &RuleSet{}

	res, err := rs.Add("", "teh", "the")
	require.NoError(t, err)
	assert.Equal(t, UnknownType, res.Type)
	assert.Len(t, rs.Rules[UnknownType], 1)
	assert.NotNil(t, rs.Rules[UnknownType][0].Examples)

	_, err = rs.Add("spelling", "", "the")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
	_, err = rs.Add("spelling", "teh", "")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestWordCount(t *testing.T) {
	cases := map[string]int{
		"":                0,
		"   ":             0,
		"is":              1,
		"  is ":           1,
		"I has":           2,
		"My  brother\tme": 3,
	}
	for in, want := range cases {
		assert.Equal(t, want, WordCount(in), "WordCount(%q)", in)
	}
}

func TestDemoteMarksRemoved(t *testing.T) {
	rs := New()
	rs.Rules["grammar"] = []Rule{{Original: "a lot", Corrected: []string{"many"}, Count: 5}}
	rs.Rules["word_choice"] = []Rule{{Original: "a lot", Corrected: []string{"much"}, Count: 2}}

	touched := rs.Demote("a lot")
	assert.Equal(t, 2, touched)
	assert.Equal(t, 3, rs.Rules["grammar"][0].Count)
	assert.False(t, rs.Rules["grammar"][0].Removed)
	assert.Equal(t, 0, rs.Rules["word_choice"][0].Count)
	assert.True(t, rs.Rules["word_choice"][0].Removed)

	assert.Zero(t, rs.Demote("absent"))
}

func TestSortByCountIsStable(t *testing.T) {
	rs := New()
	rs.Rules["tense"] = []Rule{
		{Original: "a", Count: 1},
		{Original: "b", Count: 3},
		{Original: "c", Count: 1},
	}
	rs.SortByCount()

	var got []string
	for _, r := range rs.Rules["tense"] {
		got = append(got, r.Original)
	}
	assert.Equal(t, []string{"b", "a", "c"}, got)
}

func TestDescribeFallsBackToKey(t *testing.T) {
	rs := New()
	assert.Equal(t, "Spelling error", rs.Describe("spelling"))
	assert.Equal(t, "idiom", rs.Describe("idiom"))
}

func TestCorrection(t *testing.T) {
	assert.Equal(t, "", Rule{Original: "x"}.Correction())
	assert.Equal(t, "y", Rule{Original: "x", Corrected: []string{"y", "z"}}.Correction())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Defaults()
	_, err := in.Add("punctuation", "however ,", "however,")
	require.NoError(t, err)

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)

	if diff := cmp.Diff(in.Rules, out.Rules, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in.Descriptions, out.Descriptions); diff != "" {
		t.Fatalf("descriptions mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"malformed":       "rules: [unclosed\n",
		"empty":           "",
		"wrong version":   "schema_version: 7\nrules: {}\n",
		"missing version": "rules: {}\n",
		"missing rules":   "schema_version: 1\ndescriptions: {}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, internalerr.ErrParseFailure), "got %v", err)
		})
	}
}

func TestDecodeAcceptsEmptyRules(t *testing.T) {
	rs, err := Decode([]byte("schema_version: 1\nrules: {}\n"))
	require.NoError(t, err)
	assert.Zero(t, rs.Total())
	assert.NotNil(t, rs.Descriptions)
}
