// Package report renders a human-readable summary of a finished run.
package report

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charleslwang/Lumara/internal"
)

// Render returns a text summary of res: per-iteration scores, the best
// iteration, and the score movement from first to last.
func Render(req internal.RefinementRequest, res *internal.RefinementResult) string {
	var sb strings.Builder

	sb.WriteString("REFINEMENT SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Run ID:      %s\n", req.ID)
	fmt.Fprintf(&sb, "Model:       %s\n", req.ModelID)
	fmt.Fprintf(&sb, "Prompt:      %s\n", snippet(req.Prompt, 60))
	fmt.Fprintf(&sb, "Iterations:  %d/%d\n", len(res.Iterations), req.MaxIterations)
	if res.Stopped {
		sb.WriteString("Status:      stopped (cancelled; best iteration returned)\n")
	} else {
		sb.WriteString("Status:      completed\n")
	}
	sb.WriteString("\n")

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITER\tOVERALL\tWEAKEST CRITERION")
	for _, rec := range res.Iterations {
		fmt.Fprintf(w, "%d\t%.1f\t%s\n", rec.Index, rec.Score.Overall, weakestCriterion(rec.Score))
	}
	w.Flush()

	if best := bestIteration(res.Iterations); best != nil {
		fmt.Fprintf(&sb, "\nBest iteration: %d (%.1f/10)\n", best.Index, best.Score.Overall)
	}
	if len(res.Iterations) > 1 {
		first := res.Iterations[0].Score.Overall
		last := res.Iterations[len(res.Iterations)-1].Score.Overall
		fmt.Fprintf(&sb, "Score change:   %+.1f\n", last-first)
	}

	return sb.String()
}

func bestIteration(records []internal.IterationRecord) *internal.IterationRecord {
	var best *internal.IterationRecord
	for i := range records {
		if best == nil || records[i].Score.Overall > best.Score.Overall {
			best = &records[i]
		}
	}
	return best
}

func weakestCriterion(score internal.ScoreReport) string {
	name := ""
	lowest := 0.0
	for criterion, v := range score.Details {
		if name == "" || v < lowest || (v == lowest && criterion < name) {
			name = criterion
			lowest = v
		}
	}
	return name
}

func snippet(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
