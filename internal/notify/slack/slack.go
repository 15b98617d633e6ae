// Package slack sends triage notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends triage results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Name implements notify.Channel.
func (n *Notifier) Name() string { return "slack" }

// Send posts a triaged message to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, m *message.Message, r *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(m, r)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(m *message.Message, r *triage.Result) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(m, r),
			{"type": "divider"},
			fieldsBlock(m, r),
			{"type": "divider"},
			summaryBlock(m, r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(m *message.Message, r *triage.Result) map[string]any {
	text := fmt.Sprintf("%s %s mail: %s", tierEmoji(r.Tier), strings.ToUpper(string(r.Tier)), m.Subject)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func fieldsBlock(m *message.Message, r *triage.Result) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*From:* %s", m.From),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Score:* %d", r.Score),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Tier:* %s", r.Tier),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Received:* %s", m.Date.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}
	if m.Classification != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Category:* %s", m.Classification),
		})
	}
	if m.Intent != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Intent:* %s", m.Intent),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(m *message.Message, r *triage.Result) map[string]any {
	text := r.Summary
	if text == "" {
		text = truncate(m.Body, 500)
	}
	text = truncate(text, maxSummaryLen)
	if text == "" {
		text = "_No summary available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Summary*\n\n%s", text),
		},
	}
}

func contextBlock(r *triage.Result) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("mailwatch • triage %s • %s", r.ID, r.ProcessedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func tierEmoji(tier triage.Tier) string {
	switch tier {
	case triage.TierCritical:
		return "\U0001f534" // red circle
	case triage.TierHigh:
		return "\U0001f7e0" // orange circle
	case triage.TierMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
