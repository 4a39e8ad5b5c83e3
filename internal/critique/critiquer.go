// Package critique turns a scored solution into actionable feedback for the
// next refinement pass.
package critique

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/model"
)

// fallbackCritique substitutes for a blank model response. A missing critique
// is a recoverable defect, not a run failure.
const fallbackCritique = "No specific critique was produced for this iteration. " +
	"Review the solution for clarity, completeness, and fidelity to the original prompt, " +
	"and strengthen the weakest sections."

// weakCriteriaCount is how many of the lowest-scoring criteria the critique
// prompt singles out.
const weakCriteriaCount = 3

// Critiquer produces free-text feedback referencing the lowest-scoring
// criteria from the judge's report.
type Critiquer struct {
	client model.Client
}

// New creates a Critiquer backed by client.
func New(client model.Client) *Critiquer {
	return &Critiquer{client: client}
}

// Critique asks the model for feedback on solution. Model errors propagate;
// an empty or whitespace-only response yields the generic fallback.
func (c *Critiquer) Critique(ctx context.Context, cfg model.Config, prompt, solution string, score *internal.ScoreReport) (string, error) {
	raw, err := c.client.Invoke(ctx, cfg, buildCritiquePrompt(prompt, solution, score))
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(raw) == "" {
		return fallbackCritique, nil
	}
	return strings.TrimSpace(raw), nil
}

func buildCritiquePrompt(prompt, solution string, score *internal.ScoreReport) string {
	var sb strings.Builder

	sb.WriteString("You are a rigorous but constructive reviewer.\n")
	sb.WriteString("Critique the solution below so the next revision can improve it.\n\n")

	sb.WriteString("ORIGINAL PROMPT:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nCURRENT SOLUTION:\n")
	sb.WriteString(solution)
	sb.WriteString("\n\n")

	if score != nil && len(score.Details) > 0 {
		sb.WriteString(fmt.Sprintf("The solution scored %.1f/10 overall:\n", score.Overall))
		for _, cs := range sortedByScore(score.Details) {
			sb.WriteString(fmt.Sprintf("  - %s: %.1f\n", cs.name, cs.score))
		}

		weakest := sortedByScore(score.Details)
		if len(weakest) > weakCriteriaCount {
			weakest = weakest[:weakCriteriaCount]
		}
		names := make([]string, len(weakest))
		for i, cs := range weakest {
			names[i] = cs.name
		}
		sb.WriteString(fmt.Sprintf("\nFocus your critique on the weakest criteria: %s.\n", strings.Join(names, ", ")))
	}

	sb.WriteString(`
Structure your critique as:

TOP IMPROVEMENT PRIORITIES:
- the most impactful changes, most important first

REFINED APPROACH SUGGESTION:
a short paragraph describing how the next revision should differ.
`)

	return sb.String()
}

type criterionScore struct {
	name  string
	score float64
}

// sortedByScore returns criteria ordered ascending by score, ties broken by
// name for stable prompts.
func sortedByScore(details map[string]float64) []criterionScore {
	out := make([]criterionScore, 0, len(details))
	for name, score := range details {
		out = append(out, criterionScore{name: name, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].name < out[j].name
	})
	return out
}
