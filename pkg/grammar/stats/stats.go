// Package stats summarizes the rule store without modifying it.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/cognicore/grammar/pkg/grammar/rules"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

const (
	// DefaultTopTypes is how many types get example rules in the report.
	DefaultTopTypes = 5

	multiExamples  = 2
	singleExamples = 1
)

// Example is a rule shown in the report.
type Example struct {
	Original  string
	Corrected string
	MultiWord bool
}

// TypeStats counts the rules of one error type.
type TypeStats struct {
	Type          string
	Description   string
	Total         int
	Single        int
	Multi         int
	PercentSingle float64
	Examples      []Example
}

// Report is the full statistics summary.
type Report struct {
	Total         int
	Single        int
	Multi         int
	PercentSingle float64
	PercentMulti  float64
	Types         []TypeStats
}

// Compute builds a Report from rs. Rules with an empty original are not
// counted. Types are ordered by total, largest first, then by key.
func Compute(rs *rules.RuleSet) Report {
	var rep Report
	for _, errType := range rs.Types() {
		ts := TypeStats{Type: errType, Description: rs.Describe(errType)}
		var multi, single []Example
		for _, r := range rs.Rules[errType] {
			if r.Original == "" {
				continue
			}
			ex := Example{Original: r.Original, Corrected: r.Correction()}
			if r.Words() > 1 {
				ts.Multi++
				ex.MultiWord = true
				if len(multi) < multiExamples {
					multi = append(multi, ex)
				}
			} else {
				ts.Single++
				if len(single) < singleExamples {
					single = append(single, ex)
				}
			}
		}
		ts.Total = ts.Single + ts.Multi
		ts.PercentSingle = percent(ts.Single, ts.Total)
		ts.Examples = append(multi, single...)

		rep.Total += ts.Total
		rep.Single += ts.Single
		rep.Multi += ts.Multi
		rep.Types = append(rep.Types, ts)
	}

	sort.SliceStable(rep.Types, func(i, j int) bool {
		if rep.Types[i].Total != rep.Types[j].Total {
			return rep.Types[i].Total > rep.Types[j].Total
		}
		return rep.Types[i].Type < rep.Types[j].Type
	})
	rep.PercentSingle = percent(rep.Single, rep.Total)
	rep.PercentMulti = percent(rep.Multi, rep.Total)
	return rep
}

// Render writes the human readable report. Examples are listed for the first
// topN types.
func Render(w io.Writer, rep Report, info store.Info, topN int) error {
	if topN <= 0 {
		topN = DefaultTopTypes
	}
	var b strings.Builder

	b.WriteString("========== Grammar rule statistics ==========\n\n")
	fmt.Fprintf(&b, "Rule store size: %s\n\n", humanize.IBytes(uint64(info.Size)))
	fmt.Fprintf(&b, "Total rules: %d\n", rep.Total)
	fmt.Fprintf(&b, "Single-word rules: %d (%s%%)\n", rep.Single, pct(rep.PercentSingle))
	fmt.Fprintf(&b, "Multi-word rules: %d (%s%%)\n\n", rep.Multi, pct(rep.PercentMulti))

	b.WriteString("Rules by error type:\n")
	b.WriteString("====================\n\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ERROR TYPE\tTOTAL\tSINGLE\tMULTI\tSINGLE %")
	for _, ts := range rep.Types {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s%%\n", ts.Description, ts.Total, ts.Single, ts.Multi, pct(ts.PercentSingle))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	b.WriteString("\nExample rules:\n")
	b.WriteString("==============\n\n")
	for i, ts := range rep.Types {
		if i >= topN {
			break
		}
		fmt.Fprintf(&b, "%s:\n", ts.Description)
		for _, ex := range ts.Examples {
			mark := "✗"
			if ex.MultiWord {
				mark = "✓"
			}
			fmt.Fprintf(&b, "  %s '%s' → '%s'\n", mark, ex.Original, ex.Corrected)
		}
		b.WriteString("\n")
	}
	b.WriteString("✓ marks multi-word rules (kept by cleanup)\n")
	b.WriteString("✗ marks single-word rules (removed by cleanup)\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

// pct formats v with at most two decimals and no trailing zeros.
func pct(v float64) string {
	return humanize.FtoaWithDigits(v, 2)
}
