package learning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foyerlabs/foyer/internal/notify"
	"github.com/foyerlabs/foyer/internal/observe"
)

// Pipeline drives one correction through the automated gates and parks it
// for human review. Every transition is persisted before the next gate
// runs, so a crash mid-pipeline leaves an inspectable record instead of a
// lost correction.
type Pipeline struct {
	store     *Store
	gates     *Gates
	notifier  notify.Notifier
	threshold float64
	metrics   *observe.Metrics
}

// PipelineOption is a functional option for Pipeline.
type PipelineOption func(*Pipeline)

// WithNotifier sets the channel that announces corrections awaiting
// review. Defaults to a no-op.
func WithNotifier(n notify.Notifier) PipelineOption {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithConfidenceThreshold sets the gate 2a confidence at or above which
// the external fact-check is skipped. Defaults to 0.80.
func WithConfidenceThreshold(t float64) PipelineOption {
	return func(p *Pipeline) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// WithPipelineMetrics overrides the metrics sink.
func WithPipelineMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewPipeline wires the gate pipeline over the given store and gates.
func NewPipeline(store *Store, gates *Gates, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:     store,
		gates:     gates,
		notifier:  notify.Noop{},
		threshold: 0.80,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs every gate on c, saving after each transition. It returns
// an error only when persisting fails; gate rejections and gate errors are
// terminal states of the correction, not of the pipeline.
func (p *Pipeline) Process(ctx context.Context, c *Correction) error {
	start := time.Now()
	defer func() {
		p.metrics.LearningPipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()
	slog.Info("learning: pipeline started", "id", c.ID, "user", c.UserID)

	status, reason := p.gates.Sanity(ctx, c.Content)
	c.Gate1 = &GateResult{Status: status, Reason: reason, ProcessedAt: time.Now().UTC()}
	p.metrics.RecordGateOutcome(ctx, "gate1", status)
	switch status {
	case GateReject:
		c.FinalStatus = StatusRejectedGate1
	case GateError:
		c.FinalStatus = StatusGate1Error
	}
	if err := p.save(c); err != nil {
		return err
	}
	if status != GatePass {
		slog.Info("learning: pipeline stopped at gate 1", "id", c.ID, "status", c.FinalStatus)
		return nil
	}

	status, confidence, reason, personal := p.gates.LocalFactCheck(ctx, c.Content)
	c.PersonalInfo = personal
	c.Gate2A = &GateResult{
		Status:      status,
		Reason:      reason,
		Confidence:  &confidence,
		ProcessedAt: time.Now().UTC(),
	}
	p.metrics.RecordGateOutcome(ctx, "gate2a", status)
	if status == GateReject {
		c.FinalStatus = StatusRejectedGate2A
	}
	if err := p.save(c); err != nil {
		return err
	}
	if status != GatePass {
		slog.Info("learning: pipeline stopped at gate 2a", "id", c.ID, "status", status)
		return nil
	}

	if personal || confidence >= p.threshold {
		slog.Info("learning: skipping external fact-check",
			"id", c.ID, "personal", personal, "confidence", confidence)
	} else {
		status, reason = p.gates.ExternalFactCheck(ctx, c.Content)
		c.Gate2B = &GateResult{Status: status, Reason: reason, ProcessedAt: time.Now().UTC()}
		p.metrics.RecordGateOutcome(ctx, "gate2b", status)
		if status == GateReject {
			c.FinalStatus = StatusRejectedGate2B
		}
		if err := p.save(c); err != nil {
			return err
		}
		if status == GateReject {
			slog.Info("learning: pipeline stopped at gate 2b", "id", c.ID)
			return nil
		}
	}

	c.Gate3 = &Gate3Details{Status: ReviewPending, SubmittedAt: time.Now().UTC()}
	c.FinalStatus = StatusPending
	if err := p.save(c); err != nil {
		return err
	}
	slog.Info("learning: correction awaiting review", "id", c.ID, "user", c.UserID)

	if err := p.notifier.ReviewRequested(ctx, notify.ReviewNotification{
		CorrectionID: c.ID,
		UserID:       c.UserID,
		Content:      c.Content,
		SubmittedAt:  c.SubmittedAt,
	}); err != nil {
		slog.Warn("learning: review notification failed", "id", c.ID, "err", err)
	}
	return nil
}

func (p *Pipeline) save(c *Correction) error {
	if err := p.store.Save(c); err != nil {
		return fmt.Errorf("save correction %s: %w", c.ID, err)
	}
	return nil
}
