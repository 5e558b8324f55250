package feedback

import (
	"regexp"
	"strings"
)

var subjectVerbPatterns = []string{
	"they is", "they was",
	"he are", "she are", "it are", "he were", "she were", "it were",
	"you is", "you has",
	"i is", "i has",
	"we is", "we was",
	"who is",
}

var (
	anBeforeVowel    = regexp.MustCompile(`(?i)\ba\s+[aeiou]`)
	aBeforeConsonant = regexp.MustCompile(`(?i)\ban\s+[^aeiou]`)
)

var prepositions = []string{"in", "on", "at", "for", "with", "by", "to", "from"}

// Classify guesses the error type of a correction from its surface form.
// Checks run in order: subject-verb agreement, article, small edits
// (spelling), is/was and go/went (tense), a preposition present on only
// one side, and finally word_choice. Matching is by substring, ignoring
// case.
func Classify(wrong, correct string) string {
	w := strings.ToLower(wrong)
	c := strings.ToLower(correct)

	for _, p := range subjectVerbPatterns {
		if strings.Contains(w, p) {
			return "subject_verb_agreement"
		}
	}
	if anBeforeVowel.MatchString(wrong) || aBeforeConsonant.MatchString(wrong) {
		return "article"
	}
	if diff := len(wrong) - len(correct); diff >= -3 && diff <= 3 {
		return "spelling"
	}
	if (strings.Contains(w, "is") && strings.Contains(c, "was")) ||
		(strings.Contains(w, "go") && strings.Contains(c, "went")) {
		return "tense"
	}
	for _, p := range prepositions {
		if strings.Contains(w, p) != strings.Contains(c, p) {
			return "preposition"
		}
	}
	return "word_choice"
}
