package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/annotate"
	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/oklog/ulid/v2"
)

// Pipeline runs the per-message triage sequence: annotate, extract signals,
// score, categorize. Safe for concurrent use.
type Pipeline struct {
	annotator  annotate.Annotator
	rules      SignalRules
	thresholds Thresholds
	logger     log.Logger
	metrics    *Metrics
}

// NewPipeline creates a pipeline. A nil metrics is allowed for callers that
// only want the scoring behavior (tests, digest rendering).
func NewPipeline(a annotate.Annotator, rules SignalRules, th Thresholds, logger log.Logger, metrics *Metrics) *Pipeline {
	return &Pipeline{
		annotator:  a,
		rules:      rules,
		thresholds: th,
		logger:     logger,
		metrics:    metrics,
	}
}

// Process triages one message. Annotation failures degrade rather than
// abort: the message is still scored on its raw signals so a provider
// outage cannot silence an urgent mail.
func (p *Pipeline) Process(ctx context.Context, m *message.Message) *Result {
	start := time.Now()
	L := p.logger.With("message_id", m.ID)

	annotated := false
	if p.annotator != nil {
		ann, err := p.annotator.Annotate(ctx, m)
		switch {
		case err != nil:
			L.Warn(ctx, "annotation failed, scoring on raw signals", "error", err)
			if p.metrics != nil {
				p.metrics.AnnotateFailures.Inc()
			}
		case ann != nil:
			annotate.Apply(m, ann)
			annotated = true
		}
	}

	sig := ExtractSignals(m, p.rules)
	sr := Score(sig)
	tier := Categorize(sr.Score, p.thresholds)

	res := &Result{
		ID:          ulid.Make().String(),
		MessageID:   m.ID,
		ThreadID:    m.ThreadID,
		From:        m.From,
		Subject:     m.Subject,
		Date:        m.Date,
		Score:       sr.Score,
		Tier:        tier,
		Factors:     sr.Factors,
		Summary:     m.Summary,
		Annotated:   annotated,
		ProcessedAt: time.Now(),
	}

	if p.metrics != nil {
		p.metrics.MessagesTotal.WithLabelValues(string(tier)).Inc()
		p.metrics.MessageScore.Observe(float64(sr.Score))
		p.metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}

	L.Info(ctx, "message triaged",
		"score", sr.Score,
		"tier", tier,
		"annotated", annotated,
		"factors", len(sr.Factors),
	)

	return res
}
