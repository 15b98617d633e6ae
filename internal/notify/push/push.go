// Package push sends mobile push notifications through an ntfy-compatible
// HTTP endpoint.
package push

import (
	"context"
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
	maxBodyLen  = 2000
	httpTimeout = 10 * time.Second
)

// Notifier posts to an ntfy topic URL. If the URL is empty, Send is a no-op.
type Notifier struct {
	topicURL string
	token    string
	client   *http.Client
}

// New creates a push notifier for the given topic URL. token is optional
// bearer auth for protected topics.
func New(topicURL, token string) *Notifier {
	return &Notifier{
		topicURL: topicURL,
		token:    token,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Name implements notify.Channel.
func (n *Notifier) Name() string { return "push" }

// Send publishes a push notification for a triaged message.
func (n *Notifier) Send(ctx context.Context, m *message.Message, r *triage.Result) error {
	if n.topicURL == "" {
		return nil
	}

	body := r.Summary
	if body == "" {
		body = m.Body
	}
	if len(body) > maxBodyLen {
		cut := maxBodyLen
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: create request: %w", err)
	}
	req.Header.Set("Title", fmt.Sprintf("[%s] %s", strings.ToUpper(string(r.Tier)), m.Subject))
	req.Header.Set("Priority", priorityFor(r.Tier))
	req.Header.Set("Tags", "email")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: post notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push: endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func priorityFor(tier triage.Tier) string {
	switch tier {
	case triage.TierCritical:
		return "urgent"
	case triage.TierHigh:
		return "high"
	case triage.TierMedium:
		return "default"
	default:
		return "low"
	}
}
