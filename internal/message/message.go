// Package message defines the normalized mail record flowing through the
// triage pipeline and the text normalization helpers shared by sources.
package message

import (
	"regexp"
	"strings"
	"time"
)

// Message is a single inbound mail, immutable once fetched. The annotation
// fields (Summary through ActionItems) are empty until the annotation service
// has run; every consumer must treat them as optional.
type Message struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id,omitempty"`
	From     string    `json:"from"`
	To       []string  `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Date     time.Time `json:"date"`

	Summary        string   `json:"summary,omitempty"`
	Classification string   `json:"classification,omitempty"`
	Intent         string   `json:"intent,omitempty"`
	Sentiment      string   `json:"sentiment,omitempty"`
	ActionItems    []string `json:"action_items,omitempty"`
}

// Canonical annotation labels. The annotation service normalizes free-form
// model output onto these before the scorer ever sees it.
const (
	ClassUrgentAction = "urgent action"
	ClassWork         = "work"
	ClassPersonal     = "personal"
	ClassPromotional  = "promotional"
	ClassSpam         = "spam"
	ClassOther        = "other"

	IntentRequestAction = "request for action"
	IntentProblemReport = "problem report"
	IntentMeeting       = "meeting/scheduling"
	IntentQuestion      = "question"
	IntentInfoSharing   = "information sharing"
	IntentSocial        = "social/chitchat"
	IntentFeedback      = "feedback/opinion"
	IntentOther         = "other"

	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// addrRe pulls the address out of a display-name form like "Jane <jane@x.io>".
var addrRe = regexp.MustCompile(`<([^>]+)>`)

// NormalizeAddress reduces a header address to a lowercase bare address.
// Display names and angle brackets are stripped; anything else passes
// through lowercased so substring matching stays predictable.
func NormalizeAddress(raw string) string {
	if m := addrRe.FindStringSubmatch(raw); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

var (
	multiNewlineRe = regexp.MustCompile(`\n+`)
	multiSpaceRe   = regexp.MustCompile(` +`)
	signatureRe    = regexp.MustCompile(`(?is)[-_]{2,}.*?(?:sent from|regards|best|thanks|signature)`)
	quotedReplyRe  = regexp.MustCompile(`(?is)On .*? wrote:\n.*`)
	urlRe          = regexp.MustCompile(`http[s]?://\S+`)
)

// CleanBody strips the noise that inflates bodies without carrying signal:
// repeated whitespace, signatures, quoted replies, and bare URLs.
func CleanBody(text string) string {
	if text == "" {
		return ""
	}
	text = multiNewlineRe.ReplaceAllString(text, "\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = signatureRe.ReplaceAllString(text, "")
	text = quotedReplyRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
