// Package judge scores a candidate solution against a fixed criterion set
// using a structured-output model call.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/model"
)

// Criteria is the fixed rubric. Every ScoreReport produced by the judge
// carries exactly these keys.
var Criteria = []string{
	"Novelty and creativity",
	"Clarity and specificity",
	"Feasibility and practicality",
	"Engagement and fun factor",
	"Balance and fairness",
}

// ScoreMax bounds every criterion score; the scale is 0-10 across the whole
// system (judge, reports, threshold, serialization).
const ScoreMax = 10.0

// evalSolutionLimit caps how much of the candidate is embedded in the
// evaluation prompt. Long tails add tokens without changing the verdict.
const evalSolutionLimit = 2000

// strictFormatInstruction is appended on the parse-failure retry.
const strictFormatInstruction = "\n\nIMPORTANT: Your previous response could not be parsed. " +
	"Respond with ONLY the JSON object described above. No prose, no markdown fences, no commentary."

// Judge evaluates candidate solutions. A second parse failure on the same
// evaluation is surfaced as EvaluationParseError.
type Judge struct {
	client model.Client
	log    *slog.Logger
}

// New creates a Judge backed by client. A nil logger uses slog.Default.
func New(client model.Client, log *slog.Logger) *Judge {
	if log == nil {
		log = slog.Default()
	}
	return &Judge{client: client, log: log}
}

// Evaluate scores solution against the original prompt. Model errors
// propagate unchanged; a malformed verdict is retried once with a stricter
// formatting instruction before failing.
func (j *Judge) Evaluate(ctx context.Context, cfg model.Config, prompt, solution string) (*internal.ScoreReport, error) {
	evalPrompt := buildEvaluationPrompt(prompt, solution)

	raw, err := j.client.Invoke(ctx, cfg, evalPrompt)
	if err != nil {
		return nil, err
	}

	report, parseErr := parseScores(raw)
	if parseErr == nil {
		return report, nil
	}

	j.log.Warn("evaluation response unparseable, retrying with strict format",
		"error", parseErr)

	raw, err = j.client.Invoke(ctx, cfg, evalPrompt+strictFormatInstruction)
	if err != nil {
		return nil, err
	}

	report, parseErr = parseScores(raw)
	if parseErr != nil {
		return nil, internal.WrapError(internal.KindEvaluationParse, parseErr,
			"evaluation response unparseable after strict retry")
	}
	return report, nil
}

func buildEvaluationPrompt(prompt, solution string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert judge evaluating a solution.\n")
	sb.WriteString("Your response MUST be a valid JSON object with this structure:\n")
	sb.WriteString("{\n  \"scores\": {\n")
	for i, c := range Criteria {
		sb.WriteString(fmt.Sprintf("    %q: 0", c))
		if i < len(Criteria)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  }\n}\n\n")

	sb.WriteString("Rate each criterion from 0 to 10:\n")
	for i, c := range Criteria {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, c))
	}

	sb.WriteString("\nORIGINAL PROMPT:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nSOLUTION TO EVALUATE:\n")
	sb.WriteString(truncate(solution, evalSolutionLimit))
	sb.WriteString("\n\nRespond ONLY with the JSON object.")

	return sb.String()
}

// parseScores extracts a ScoreReport from the model's text. The whole
// response is tried as JSON first; otherwise the outermost brace-delimited
// block is extracted, since models routinely wrap JSON in prose or fences.
// Overall is always recomputed as the mean of the details and never trusted
// from the model.
func parseScores(raw string) (*internal.ScoreReport, error) {
	block, err := extractJSONBlock(raw)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON in evaluation response: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("evaluation response missing scores object")
	}

	details := make(map[string]float64, len(Criteria))
	for _, criterion := range Criteria {
		score, ok := parsed.Scores[criterion]
		if !ok {
			return nil, fmt.Errorf("evaluation response missing criterion %q", criterion)
		}
		details[criterion] = clamp(score, 0, ScoreMax)
	}

	var sum float64
	for _, v := range details {
		sum += v
	}

	return &internal.ScoreReport{
		Overall: sum / float64(len(details)),
		Details: details,
	}, nil
}

// extractJSONBlock returns the outermost balanced {...} block in raw.
func extractJSONBlock(raw string) (string, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in evaluation response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in evaluation response")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
