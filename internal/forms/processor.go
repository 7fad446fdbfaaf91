package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned when processing is requested for an unknown
// row id.
var ErrNotFound = errors.New("form submission not found")

// EvaluateFunc produces the LLM verdict for one question/answer pair.
type EvaluateFunc func(ctx context.Context, question, userAnswer string) (string, error)

// ProcessorConfig wires the processor dependencies.
type ProcessorConfig struct {
	Store    Store
	Evaluate EvaluateFunc
	// SkipCount is the number of leading pairs treated as non-question
	// metadata; negative values fall back to the default of 1.
	SkipCount int
}

// Processor drives the unanswered pairs of a stored form through the
// LLM, one pair at a time. Processing is idempotent and resumable: a
// pair with a response is never re-sent, a failed pair is logged and
// left for the next run, and the form is re-persisted with whatever
// progress was made.
type Processor struct {
	store     Store
	evaluate  EvaluateFunc
	skipCount int
}

// NewProcessor constructs a processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("form processor: store required")
	}
	if cfg.Evaluate == nil {
		return nil, fmt.Errorf("form processor: evaluate func required")
	}
	skipCount := cfg.SkipCount
	if skipCount < 0 {
		skipCount = 1
	}
	return &Processor{store: cfg.Store, evaluate: cfg.Evaluate, skipCount: skipCount}, nil
}

// Process loads the form and evaluates every eligible pair that has no
// response yet. The first SkipCount pairs are never eligible. The form
// is marked processed only when every eligible pair has a response;
// partial completion is persisted and retried on a later call.
func (p *Processor) Process(ctx context.Context, rowID string) error {
	submission, ok, err := p.store.Get(rowID)
	if err != nil {
		return fmt.Errorf("load form %s: %w", rowID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rowID)
	}
	if submission.Processed {
		slog.Info("form already processed", "row_id", rowID)
		return nil
	}
	if len(submission.QAPairs) == 0 {
		slog.Info("form has no pairs, nothing to process", "row_id", rowID)
		return nil
	}

	answered := 0
	for i := range submission.QAPairs {
		if i < p.skipCount {
			continue
		}
		pair := &submission.QAPairs[i]
		if pair.Answered() {
			answered++
			continue
		}
		response, err := p.evaluate(ctx, pair.Question, pair.UserAnswer)
		if err != nil {
			// One bad pair must not sink the rest of the batch.
			slog.Error("pair evaluation failed", "row_id", rowID, "pair", i, "err", err)
			continue
		}
		pair.LLMResponse = response
		answered++
		slog.Info("pair evaluated", "row_id", rowID, "pair", i)
	}

	expected := len(submission.QAPairs) - p.skipCount
	if expected < 0 {
		expected = 0
	}
	if answered >= expected && expected > 0 {
		submission.Processed = true
		now := time.Now().UTC()
		submission.UpdatedAt = &now
	}

	if err := p.store.Update(rowID, submission); err != nil {
		return fmt.Errorf("persist form %s: %w", rowID, err)
	}
	slog.Info("form processing pass finished",
		"row_id", rowID, "answered", answered, "expected", expected, "processed", submission.Processed)
	return nil
}
