package claude

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/mailwatch/internal/message"
)

func TestParseAnnotation_CleanJSON(t *testing.T) {
	t.Parallel()

	ann, err := parseAnnotation(`{
		"summary": "Boss wants the Q3 report by Friday.",
		"classification": "Urgent Action",
		"intent": "Request for Action",
		"sentiment": "Negative",
		"action_items": ["send Q3 report"]
	}`)
	if err != nil {
		t.Fatalf("parseAnnotation: %v", err)
	}

	if ann.Classification != message.ClassUrgentAction {
		t.Errorf("Classification = %q, want %q", ann.Classification, message.ClassUrgentAction)
	}
	if ann.Intent != message.IntentRequestAction {
		t.Errorf("Intent = %q, want %q", ann.Intent, message.IntentRequestAction)
	}
	if ann.Sentiment != message.SentimentNegative {
		t.Errorf("Sentiment = %q, want %q", ann.Sentiment, message.SentimentNegative)
	}
	if len(ann.ActionItems) != 1 {
		t.Errorf("ActionItems = %v", ann.ActionItems)
	}
}

func TestParseAnnotation_MarkdownFences(t *testing.T) {
	t.Parallel()

	text := "Here is the analysis:\n```json\n{\"summary\":\"hi\",\"classification\":\"Work\",\"intent\":\"Question\",\"sentiment\":\"Neutral\",\"action_items\":[]}\n```\n"
	ann, err := parseAnnotation(text)
	if err != nil {
		t.Fatalf("parseAnnotation: %v", err)
	}
	if ann.Classification != message.ClassWork {
		t.Errorf("Classification = %q, want work", ann.Classification)
	}
	if ann.Intent != message.IntentQuestion {
		t.Errorf("Intent = %q, want question", ann.Intent)
	}
}

func TestParseAnnotation_UnknownLabelsFallBack(t *testing.T) {
	t.Parallel()

	ann, err := parseAnnotation(`{"summary":"x","classification":"Mystery","intent":"Whatever","sentiment":"Confused"}`)
	if err != nil {
		t.Fatalf("parseAnnotation: %v", err)
	}
	if ann.Classification != message.ClassOther {
		t.Errorf("Classification = %q, want other", ann.Classification)
	}
	if ann.Intent != message.IntentOther {
		t.Errorf("Intent = %q, want other", ann.Intent)
	}
	if ann.Sentiment != message.SentimentNeutral {
		t.Errorf("Sentiment = %q, want neutral", ann.Sentiment)
	}
}

func TestParseAnnotation_NoJSON(t *testing.T) {
	t.Parallel()

	if _, err := parseAnnotation("I could not analyze this email."); err == nil {
		t.Error("expected error when no JSON object present")
	}
}

func TestParseAnnotation_MalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := parseAnnotation(`{"summary": "unterminated`); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"surrounding prose", `sure! {"a":1} hope that helps`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"braces in strings", `{"a":"}{"}`, `{"a":"}{"}`},
		{"no object", "nothing here", ""},
		{"unterminated", `{"a":1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIntent_Aliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Meeting/Scheduling", message.IntentMeeting},
		{"meeting", message.IntentMeeting},
		{"scheduling", message.IntentMeeting},
		{"Social", message.IntentSocial},
		{"social/chitchat", message.IntentSocial},
		{"Feedback", message.IntentFeedback},
		{"Information Sharing", message.IntentInfoSharing},
		{"", message.IntentOther},
	}
	for _, tt := range tests {
		if got := normalizeIntent(tt.in); got != tt.want {
			t.Errorf("normalizeIntent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeClass_Aliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Urgent Action", message.ClassUrgentAction},
		{"urgent", message.ClassUrgentAction},
		{"Promotion", message.ClassPromotional},
		{"promotional", message.ClassPromotional},
		{"SPAM", message.ClassSpam},
		{"gibberish", message.ClassOther},
	}
	for _, tt := range tests {
		if got := normalizeClass(tt.in); got != tt.want {
			t.Errorf("normalizeClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPrompt_TruncatesBody(t *testing.T) {
	t.Parallel()

	m := &message.Message{
		From:    "a@b.c",
		To:      []string{"me@corp.com"},
		Subject: "long one",
		Date:    time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		Body:    strings.Repeat("x", maxBodyLen+500),
	}
	prompt := buildPrompt(m)
	if len(prompt) > maxBodyLen+300 {
		t.Errorf("prompt length = %d, expected body truncated to %d", len(prompt), maxBodyLen)
	}
	if !strings.Contains(prompt, "Subject: long one") {
		t.Error("prompt missing subject line")
	}
	if !strings.Contains(prompt, "To: me@corp.com") {
		t.Error("prompt missing recipients")
	}
}

func TestBuildPrompt_TruncatesAtRuneBoundary(t *testing.T) {
	t.Parallel()

	m := &message.Message{
		From:    "a@b.c",
		Subject: "s",
		Date:    time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		Body:    strings.Repeat("你", maxBodyLen), // 3-byte runes, limit not a multiple
	}
	prompt := buildPrompt(m)
	if !utf8.ValidString(prompt) {
		t.Error("truncation split a rune mid-sequence")
	}
}
