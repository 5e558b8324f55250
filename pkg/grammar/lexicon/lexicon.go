// Package lexicon holds the list of common single words whose learned rules
// are considered noise by targeted cleanup.
package lexicon

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is a case-insensitive word set.
type Lexicon struct {
	words map[string]struct{}
}

// New creates a lexicon from words. Entries are lowercased and trimmed.
func New(words []string) *Lexicon {
	l := &Lexicon{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		l.Add(w)
	}
	return l
}

// Default returns the built-in lexicon of common English function words.
func Default() *Lexicon {
	return New(CommonWords())
}

// CommonWords lists the built-in entries grouped by word class.
func CommonWords() []string {
	var out []string
	for _, group := range [][]string{
		{"is", "am", "are", "was", "were", "be", "been", "being"},                    // copulas
		{"and", "or", "but", "so", "yet", "for", "nor"},                              // conjunctions
		{"to", "from", "in", "on", "at", "with", "by", "for", "of", "about"},         // prepositions
		{"the", "a", "an"},                                                           // articles
		{"it", "they", "we", "he", "she", "you", "i"},                                // pronouns
		{"this", "that", "these", "those"},                                           // demonstratives
		{"do", "does", "did", "done"},                                                // do-forms
		{"can", "could", "will", "would", "shall", "should", "may", "might", "must"}, // modals
		{"up", "down", "out", "off", "on", "in"},                                     // particles
		{"has", "have", "had", "having"},                                             // have-forms
	} {
		out = append(out, group...)
	}
	return out
}

// Contains reports whether word is in the lexicon, ignoring case and
// surrounding whitespace.
func (l *Lexicon) Contains(word string) bool {
	if l == nil {
		return false
	}
	_, ok := l.words[normalize(word)]
	return ok
}

// Add inserts word.
func (l *Lexicon) Add(word string) {
	w := normalize(word)
	if w == "" {
		return
	}
	l.words[w] = struct{}{}
}

// Remove deletes word.
func (l *Lexicon) Remove(word string) {
	delete(l.words, normalize(word))
}

// Len returns the number of distinct entries.
func (l *Lexicon) Len() int {
	return len(l.words)
}

// All returns the entries sorted.
func (l *Lexicon) All() []string {
	out := make([]string, 0, len(l.words))
	for w := range l.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// LoadFromYAML reads a lexicon file of the form:
//
//	words:
//	  - is
//	  - the
func LoadFromYAML(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Words []string `yaml:"words"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return New(doc.Words), nil
}

func normalize(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}
