// Package gmail fetches inbox messages through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/message"
)

// Client reads a single user's inbox with readonly scope.
type Client struct {
	svc    *gmail.Service
	logger log.Logger
}

// New builds a Gmail client from an OAuth application credentials file and a
// previously obtained user token file.
func New(ctx context.Context, credentialsPath, tokenPath string, logger log.Logger) (*Client, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("gmail: read credentials file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("gmail: parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	return &Client{svc: svc, logger: logger}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gmail: open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("gmail: parse token file: %w", err)
	}
	return tok, nil
}

// Fetch lists inbox messages received at or after since. Messages that fail
// to load individually are skipped, not fatal: one malformed mail must not
// stall the whole poll cycle.
func (c *Client) Fetch(ctx context.Context, since time.Time, limit int) ([]*message.Message, error) {
	const user = "me"

	query := fmt.Sprintf("in:inbox after:%d", since.Unix())
	call := c.svc.Users.Messages.List(user).Q(query).Context(ctx)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}

	listed, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: list messages: %w", err)
	}

	out := make([]*message.Message, 0, len(listed.Messages))
	for _, ref := range listed.Messages {
		full, err := c.svc.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			c.logger.Warn(ctx, "skipping unfetchable message", "message_id", ref.Id, "error", err)
			continue
		}

		m, err := convert(full)
		if err != nil {
			c.logger.Warn(ctx, "skipping unparseable message", "message_id", ref.Id, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func convert(gm *gmail.Message) (*message.Message, error) {
	if gm.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", gm.Id)
	}

	m := &message.Message{
		ID:       gm.Id,
		ThreadID: gm.ThreadId,
	}

	for _, h := range gm.Payload.Headers {
		switch h.Name {
		case "From":
			m.From = h.Value
		case "To":
			m.To = splitAddresses(h.Value)
		case "Subject":
			m.Subject = h.Value
		case "Date":
			if t, err := mail.ParseDate(h.Value); err == nil {
				m.Date = t
			}
		}
	}
	if m.Date.IsZero() {
		m.Date = time.UnixMilli(gm.InternalDate)
	}

	body := extractBody(gm.Payload)
	if body == "" {
		body = gm.Snippet
	}
	m.Body = message.CleanBody(body)

	return m, nil
}

func splitAddresses(header string) []string {
	addrs, err := mail.ParseAddressList(header)
	if err != nil {
		// fall back to raw comma split for headers net/mail rejects
		var out []string
		for _, part := range strings.Split(header, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

// extractBody walks the MIME tree preferring text/plain; text/html parts are
// stripped to text as a fallback.
func extractBody(part *gmail.MessagePart) string {
	if plain := findPart(part, "text/plain"); plain != "" {
		return plain
	}
	if html := findPart(part, "text/html"); html != "" {
		return htmlToText(html)
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		// Gmail emits unpadded base64url, but be liberal about padding.
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}
