// Package pipeline orchestrates the iterative judge -> critique -> refine
// loop for a single refinement run.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charleslwang/Lumara/internal"
	"github.com/charleslwang/Lumara/internal/critique"
	"github.com/charleslwang/Lumara/internal/judge"
	"github.com/charleslwang/Lumara/internal/model"
	"github.com/charleslwang/Lumara/internal/refine"
)

// Config tunes a Controller.
type Config struct {
	// Threshold stops the run early once an iteration's overall score
	// reaches it (0-10 scale). Zero disables early stopping.
	Threshold float64

	// CredentialOptional skips the credential presence check for providers
	// that authenticate out of band (self-hosted Ollama).
	CredentialOptional bool

	// Logger receives run progress. Nil uses slog.Default.
	Logger *slog.Logger
}

// Controller drives refinement runs. Runs are independent: each call to Run
// owns its request, records, and components, so one Controller value must
// not be shared across concurrent runs.
type Controller struct {
	judge     *judge.Judge
	critiquer *critique.Critiquer
	refiner   *refine.Refiner
	cfg       Config
	log       *slog.Logger
}

// New creates a Controller whose three roles all speak through client.
func New(client model.Client, cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		judge:     judge.New(client, log),
		critiquer: critique.New(client),
		refiner:   refine.New(client, log),
		cfg:       cfg,
		log:       log,
	}
}

// Run executes the refinement loop for req and returns either a complete
// result or a classified error. On cancellation between iterations the run
// stops and returns the best iteration observed so far; on any unrecovered
// step error the run fails whole and completed records are discarded.
func (c *Controller) Run(ctx context.Context, req internal.RefinementRequest) (*internal.RefinementResult, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	cfg := model.Config{ModelID: req.ModelID, APIKey: req.APIKey}

	var (
		records  []internal.IterationRecord
		best     *internal.IterationRecord
		solution = req.InitialOutput
	)

	for k := 1; k <= req.MaxIterations; k++ {
		// Cancellation is observed here only, never mid-call.
		select {
		case <-ctx.Done():
			return c.stopped(records, best, ctx.Err())
		default:
		}

		score, err := c.judge.Evaluate(ctx, cfg, req.Prompt, solution)
		if err != nil {
			return nil, err
		}

		feedback, err := c.critiquer.Critique(ctx, cfg, req.Prompt, solution, score)
		if err != nil {
			return nil, err
		}

		refined, err := c.refiner.Refine(ctx, cfg, req.Prompt, solution, feedback, score)
		if err != nil {
			return nil, err
		}

		rec := internal.IterationRecord{
			Index:     k,
			Solution:  refined,
			Critique:  feedback,
			Score:     *score,
			Timestamp: time.Now().UTC(),
		}
		records = append(records, rec)
		if best == nil || rec.Score.Overall > best.Score.Overall {
			best = &records[len(records)-1]
		}

		c.log.Info("iteration complete",
			"run_id", req.ID,
			"index", k,
			"overall", score.Overall)

		solution = refined

		if c.cfg.Threshold > 0 && score.Overall >= c.cfg.Threshold {
			c.log.Info("quality threshold reached, stopping early",
				"run_id", req.ID,
				"index", k,
				"overall", score.Overall,
				"threshold", c.cfg.Threshold)
			break
		}
	}

	last := records[len(records)-1]
	return &internal.RefinementResult{
		RefinedOutput: last.Solution,
		Iterations:    records,
		Scores:        last.Score,
	}, nil
}

// stopped builds the Stopped-state result: the best record observed so far.
// Cancellation before the first completed iteration has nothing to return
// and fails as CancelledByCaller.
func (c *Controller) stopped(records []internal.IterationRecord, best *internal.IterationRecord, cause error) (*internal.RefinementResult, error) {
	if best == nil {
		return nil, internal.WrapError(internal.KindCancelled, cause, "run cancelled before any iteration completed")
	}
	c.log.Info("run cancelled, returning best iteration",
		"best_index", best.Index,
		"best_overall", best.Score.Overall)
	return &internal.RefinementResult{
		RefinedOutput: best.Solution,
		Iterations:    records,
		Scores:        best.Score,
		Stopped:       true,
	}, nil
}

// validate rejects incomplete requests before any external call is made.
func (c *Controller) validate(req internal.RefinementRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return internal.NewError(internal.KindInvalidRequest, "original prompt is required")
	}
	if strings.TrimSpace(req.InitialOutput) == "" {
		return internal.NewError(internal.KindInvalidRequest, "initial output is required")
	}
	if !c.cfg.CredentialOptional && strings.TrimSpace(req.APIKey) == "" {
		return internal.NewError(internal.KindInvalidRequest, "credential is required")
	}
	if req.MaxIterations < 1 {
		return internal.NewError(internal.KindInvalidRequest, "max iterations must be at least 1, got %d", req.MaxIterations)
	}
	return nil
}
