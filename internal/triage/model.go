package triage

import "time"

// Result is the outcome of triaging a single message in one pass. Scores are
// recomputed fresh every pass rather than cached, so a Result is a record of
// what this pass decided, not durable state.
type Result struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`

	Score   int      `json:"score"`
	Tier    Tier     `json:"tier"`
	Factors []Factor `json:"factors,omitempty"`

	Summary   string `json:"summary,omitempty"`
	Annotated bool   `json:"annotated"`

	// Notified lists the channels that actually sent for this message.
	// Filled in by the caller after dispatch.
	Notified []string `json:"notified,omitempty"`

	ProcessedAt time.Time `json:"processed_at"`
}
