package internal

import "time"

// RefinementRequest describes a single refinement run. It is immutable once
// the run starts; the pipeline receives it by value.
type RefinementRequest struct {
	ID            string    `json:"id"`
	Prompt        string    `json:"original_prompt"`
	InitialOutput string    `json:"initial_output"`
	ModelID       string    `json:"model_id"`
	APIKey        string    `json:"-"`
	MaxIterations int       `json:"max_iterations"`
	Threshold     float64   `json:"threshold,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ScoreReport holds the judge's per-criterion scores on the 0-10 scale.
// Overall is always the arithmetic mean of Details.
type ScoreReport struct {
	Overall float64            `json:"overall"`
	Details map[string]float64 `json:"details"`
}

// IterationRecord captures one completed judge->critique->refine pass.
// Solution is the refined output produced by the pass; Score and Critique
// refer to the solution the pass started from. Records are appended once
// and never mutated.
type IterationRecord struct {
	Index     int         `json:"index"`
	Solution  string      `json:"solution"`
	Critique  string      `json:"critique"`
	Score     ScoreReport `json:"score"`
	Timestamp time.Time   `json:"timestamp"`
}

// RefinementResult is the outcome of a successful or stopped run. The JSON
// shape is the interchange format: it must round-trip losslessly.
type RefinementResult struct {
	RefinedOutput string            `json:"refined_output"`
	Iterations    []IterationRecord `json:"iterations"`
	Scores        ScoreReport       `json:"scores"`

	// Stopped is set when the run was cancelled between iterations and
	// RefinedOutput carries the best solution observed so far.
	Stopped bool `json:"-"`
}
