// Package claude annotates messages with the Anthropic API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/mailwatch/internal/annotate"
	"github.com/linnemanlabs/mailwatch/internal/message"
)

const (
	maxTokens   = 1024
	maxBodyLen  = 8000
	callTimeout = 60 * time.Second
)

const systemPrompt = `You are an email triage assistant. For each email you receive,
respond with a single JSON object and nothing else:

{
  "summary": "one or two sentence summary",
  "classification": "Work | Personal | Urgent Action | Promotion | Spam | Other",
  "intent": "Request for Action | Problem Report | Meeting/Scheduling | Question | Information Sharing | Social | Feedback | Other",
  "sentiment": "Positive | Negative | Neutral",
  "action_items": ["explicit action items, empty list if none"]
}`

// UsageHook receives token usage after each successful call.
type UsageHook func(inputTokens, outputTokens int, duration float64)

// Client implements annotate.Annotator against the Anthropic API. Calls are
// rate limited so a burst of new mail cannot exhaust the API quota.
type Client struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	onUsage UsageHook
}

// New creates an annotator. rps bounds sustained request rate; onUsage may
// be nil.
func New(apiKey, model string, rps float64, onUsage UsageHook) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		onUsage: onUsage,
	}
}

// Annotate classifies a single message.
func (c *Client) Annotate(ctx context.Context, m *message.Message) (*annotate.Annotation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("claude: rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(m))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude: messages.new: %w", err)
	}

	if c.onUsage != nil {
		c.onUsage(int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens), time.Since(start).Seconds())
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("claude: response contained no text block")
	}

	ann, err := parseAnnotation(text)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	return ann, nil
}

func buildPrompt(m *message.Message) string {
	body := m.Body
	if len(body) > maxBodyLen {
		cut := maxBodyLen
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\nDate: %s\n\n%s",
		m.From, strings.Join(m.To, ", "), m.Subject, m.Date.Format(time.RFC1123Z), body)
}

type rawAnnotation struct {
	Summary        string   `json:"summary"`
	Classification string   `json:"classification"`
	Intent         string   `json:"intent"`
	Sentiment      string   `json:"sentiment"`
	ActionItems    []string `json:"action_items"`
}

// parseAnnotation extracts the JSON object from model output, tolerating
// markdown fences and surrounding prose, and normalizes every label onto
// the canonical vocabulary.
func parseAnnotation(text string) (*annotate.Annotation, error) {
	jsonText := extractJSON(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var raw rawAnnotation
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("parse annotation: %w", err)
	}

	return &annotate.Annotation{
		Summary:        strings.TrimSpace(raw.Summary),
		Classification: normalizeClass(raw.Classification),
		Intent:         normalizeIntent(raw.Intent),
		Sentiment:      normalizeSentiment(raw.Sentiment),
		ActionItems:    raw.ActionItems,
	}, nil
}

// extractJSON returns the first top-level {...} span in text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func normalizeClass(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "work":
		return message.ClassWork
	case "personal":
		return message.ClassPersonal
	case "urgent action", "urgent":
		return message.ClassUrgentAction
	case "promotion", "promotional":
		return message.ClassPromotional
	case "spam":
		return message.ClassSpam
	default:
		return message.ClassOther
	}
}

func normalizeIntent(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "request for action":
		return message.IntentRequestAction
	case "problem report":
		return message.IntentProblemReport
	case "meeting/scheduling", "meeting", "scheduling":
		return message.IntentMeeting
	case "question":
		return message.IntentQuestion
	case "information sharing":
		return message.IntentInfoSharing
	case "social", "social/chitchat":
		return message.IntentSocial
	case "feedback", "feedback/opinion":
		return message.IntentFeedback
	default:
		return message.IntentOther
	}
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return message.SentimentPositive
	case "negative":
		return message.SentimentNegative
	default:
		return message.SentimentNeutral
	}
}
