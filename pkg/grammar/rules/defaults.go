package rules

// DefaultDescriptions returns the fixed error type vocabulary.
func DefaultDescriptions() map[string]string {
	return map[string]string{
		"spelling":               "Spelling error",
		"grammar":                "Grammar error",
		"punctuation":            "Punctuation error",
		"word_choice":            "Inappropriate word choice",
		"structure":              "Sentence structure problem",
		"article":                "Article usage error",
		"tense":                  "Tense usage error",
		"subject_verb_agreement": "Subject-verb agreement problem",
		"preposition":            "Preposition usage error",
		"plurals":                "Plural form error",
		UnknownType:              "Other error",
	}
}

// Defaults returns the seed collection used to bootstrap or repair a store.
func Defaults() *RuleSet {
	return &RuleSet{
		SchemaVersion: SchemaVersion,
		Descriptions:  DefaultDescriptions(),
		Rules: map[string][]Rule{
			"tense": {
				seed("buyed", "bought"),
				seed("I plan to ate", "I plan to eat"),
			},
			"subject_verb_agreement": {
				seed("I has", "I have"),
				seed("She write", "She writes"),
				seed("This essay express", "This essay expresses"),
			},
			"plurals": {
				seed("childrens", "children"),
			},
			"grammar": {
				seed("My brother and me went", "My brother and I went"),
			},
		},
	}
}

func seed(original, corrected string) Rule {
	return Rule{
		Original:  original,
		Corrected: []string{corrected},
		Count:     1,
		Examples:  []string{},
	}
}
