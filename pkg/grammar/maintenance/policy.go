package maintenance

import (
	"github.com/cognicore/grammar/pkg/grammar/lexicon"
	"github.com/cognicore/grammar/pkg/grammar/rules"
)

// Policy decides which rules survive a cleanup run.
type Policy interface {
	Name() string
	Keep(errorType string, r rules.Rule) bool
}

// Blanket drops every rule whose original is not a multi-word expression.
type Blanket struct{}

func (Blanket) Name() string { return "blanket" }

func (Blanket) Keep(_ string, r rules.Rule) bool {
	return r.Words() > 1
}

// Targeted drops single common words, except in preserved error types.
type Targeted struct {
	preserve map[string]struct{}
	lex      *lexicon.Lexicon
}

// DefaultPreserve lists the types targeted cleanup leaves alone.
func DefaultPreserve() []string {
	return []string{"spelling"}
}

// NewTargeted builds a targeted policy. A nil lexicon uses lexicon.Default.
func NewTargeted(preserve []string, lex *lexicon.Lexicon) *Targeted {
	if lex == nil {
		lex = lexicon.Default()
	}
	p := &Targeted{preserve: make(map[string]struct{}, len(preserve)), lex: lex}
	for _, t := range preserve {
		p.preserve[t] = struct{}{}
	}
	return p
}

func (p *Targeted) Name() string { return "targeted" }

func (p *Targeted) Keep(errorType string, r rules.Rule) bool {
	words := r.Words()
	if words == 0 {
		return false
	}
	if words > 1 {
		return true
	}
	if _, ok := p.preserve[errorType]; ok {
		return true
	}
	return !p.lex.Contains(r.Original)
}
