// Package refine produces an improved solution from the prior solution, its
// critique, and its scores.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/model"
)

// Refiner rewrites a solution to address its critique. It tracks consecutive
// unchanged outputs across calls within one run; construct one Refiner per
// run.
type Refiner struct {
	client model.Client
	log    *slog.Logger

	unchangedStreak int
}

// New creates a Refiner backed by client. A nil logger uses slog.Default.
func New(client model.Client, log *slog.Logger) *Refiner {
	if log == nil {
		log = slog.Default()
	}
	return &Refiner{client: client, log: log}
}

// Refine returns a new candidate addressing critique. An empty model response
// falls back to the input solution. Returning the input unchanged twice in a
// row emits a stagnation warning; it is a soft signal, never an error.
func (r *Refiner) Refine(ctx context.Context, cfg model.Config, prompt, solution, critique string, score *internal.ScoreReport) (string, error) {
	raw, err := r.client.Invoke(ctx, cfg, buildRefinementPrompt(prompt, solution, critique, score))
	if err != nil {
		return "", err
	}

	refined := strings.TrimSpace(raw)
	if refined == "" {
		refined = solution
	}

	if sameText(refined, solution) {
		r.unchangedStreak++
		if r.unchangedStreak >= 2 {
			r.log.Warn("refiner output unchanged on consecutive iterations, model may be ignoring feedback",
				"streak", r.unchangedStreak)
		}
	} else {
		r.unchangedStreak = 0
	}

	return refined, nil
}

// sameText compares NFC-normalized, whitespace-trimmed text so cosmetic
// Unicode differences do not mask stagnation.
func sameText(a, b string) bool {
	return norm.NFC.String(strings.TrimSpace(a)) == norm.NFC.String(strings.TrimSpace(b))
}

func buildRefinementPrompt(prompt, solution, critique string, score *internal.ScoreReport) string {
	var sb strings.Builder

	sb.WriteString("You are revising an answer based on reviewer feedback.\n\n")

	sb.WriteString("ORIGINAL PROMPT:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nCURRENT SOLUTION:\n")
	sb.WriteString(solution)
	sb.WriteString("\n\nCRITIQUE:\n")
	sb.WriteString(critique)
	sb.WriteString("\n\n")

	if score != nil {
		sb.WriteString(fmt.Sprintf("The current solution scored %.1f/10 overall.\n\n", score.Overall))
	}

	sb.WriteString(`Produce an improved solution that directly addresses the critique.

Rules:
- Preserve everything the critique praised.
- Fix every item under TOP IMPROVEMENT PRIORITIES.
- Stay faithful to the original prompt.

Output ONLY the improved solution. No explanation, no preamble.`)

	return sb.String()
}
