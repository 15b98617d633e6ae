// Package annotate defines the contract with the LLM-backed annotation
// service. The triage pipeline treats every annotation as optional: a failed
// or absent annotation degrades scoring, it never fails a message.
package annotate

import (
	"context"

	"github.com/linnemanlabs/mailwatch/internal/message"
)

// Annotation is the model-derived enrichment of one message. Labels are
// normalized onto the canonical lowercase vocabulary in package message
// before they leave the adapter.
type Annotation struct {
	Summary        string   `json:"summary"`
	Classification string   `json:"classification"`
	Intent         string   `json:"intent"`
	Sentiment      string   `json:"sentiment"`
	ActionItems    []string `json:"action_items"`
}

// Annotator is any LLM backend able to enrich a message.
type Annotator interface {
	Annotate(ctx context.Context, m *message.Message) (*Annotation, error)
}

// Apply copies an annotation onto a message. Nil annotations are a no-op.
func Apply(m *message.Message, a *Annotation) {
	if a == nil {
		return
	}
	m.Summary = a.Summary
	m.Classification = a.Classification
	m.Intent = a.Intent
	m.Sentiment = a.Sentiment
	m.ActionItems = a.ActionItems
}

// Nop is an Annotator that annotates nothing. Used when no annotation
// backend is configured; scoring proceeds on keyword and sender signals
// alone.
type Nop struct{}

// Annotate implements Annotator by returning an absent annotation.
func (Nop) Annotate(context.Context, *message.Message) (*Annotation, error) {
	return nil, nil
}
