// Package digest builds and sends periodic summary emails of triaged mail.
package digest

import (
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/source"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

// Period selects the digest window.
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// Window returns the lookback for the period.
func (p Period) Window() time.Duration {
	if p == PeriodWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// Sender delivers a rendered digest. Satisfied by mailer.Mailer.
type Sender interface {
	SendHTML(ctx context.Context, subject, html string) error
}

// Builder renders digests by re-triaging the window's mail. It shares the
// scoring pipeline but never dispatches notifications and never touches the
// ledger: digests are a read-only view.
type Builder struct {
	src      source.Source
	pipeline *triage.Pipeline
	limit    int
	logger   log.Logger
}

// NewBuilder creates a digest builder. limit caps messages per digest.
func NewBuilder(src source.Source, p *triage.Pipeline, limit int, logger log.Logger) *Builder {
	if limit <= 0 {
		limit = 200
	}
	return &Builder{src: src, pipeline: p, limit: limit, logger: logger}
}

// Build fetches and triages the period's messages and renders the digest.
// Daily digests omit the low tier; weekly digests keep only critical and
// high. Over longer windows the lower buckets are noise.
func (b *Builder) Build(ctx context.Context, p Period, now time.Time) (subject, html string, err error) {
	msgs, err := b.src.Fetch(ctx, now.Add(-p.Window()), b.limit)
	if err != nil {
		return "", "", fmt.Errorf("digest: fetch: %w", err)
	}

	byTier := make(map[triage.Tier][]*triage.Result)
	for _, m := range msgs {
		res := b.pipeline.Process(ctx, m)
		byTier[res.Tier] = append(byTier[res.Tier], res)
	}

	tiers := []triage.Tier{triage.TierCritical, triage.TierHigh, triage.TierMedium}
	if p == PeriodWeekly {
		tiers = tiers[:2]
	}

	var sections []section
	total := 0
	for _, tier := range tiers {
		results := byTier[tier]
		if len(results) == 0 {
			continue
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		sections = append(sections, section{
			Tier:    strings.ToUpper(string(tier)),
			Results: results,
		})
		total += len(results)
	}

	data := digestData{
		Title:    fmt.Sprintf("%s mail digest", strings.Title(string(p))), //nolint:staticcheck // labels are ASCII
		Date:     now.Format("Monday, January 2, 2006"),
		Total:    total,
		Sections: sections,
	}

	var sb strings.Builder
	if err := digestTmpl.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("digest: render: %w", err)
	}

	subject = fmt.Sprintf("%s: %d messages", data.Title, total)
	return subject, sb.String(), nil
}

type section struct {
	Tier    string
	Results []*triage.Result
}

type digestData struct {
	Title    string
	Date     string
	Total    int
	Sections []section
}

var digestTmpl = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 720px; margin: 0 auto;">
  <h1>{{.Title}}</h1>
  <p>{{.Date}} &mdash; {{.Total}} messages</p>
  {{range .Sections}}
  <h2>{{.Tier}}</h2>
  <table width="100%" cellpadding="6" style="border-collapse: collapse;">
    {{range .Results}}
    <tr style="border-bottom: 1px solid #ddd;">
      <td width="60" align="center"><strong>{{.Score}}</strong></td>
      <td>
        <strong>{{.Subject}}</strong><br>
        {{.From}}{{if .Summary}}<br><em>{{.Summary}}</em>{{end}}
      </td>
    </tr>
    {{end}}
  </table>
  {{end}}
  {{if not .Sections}}<p>No messages in this period.</p>{{end}}
</body>
</html>
`))
