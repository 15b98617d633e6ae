package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

type fakeSource struct {
	msgs  []*message.Message
	err   error
	since time.Time
}

func (f *fakeSource) Fetch(_ context.Context, since time.Time, _ int) ([]*message.Message, error) {
	f.since = since
	return f.msgs, f.err
}

func testPipeline() *triage.Pipeline {
	rules := triage.SignalRules{
		UserAddress:    "me@corp.com",
		VIPContacts:    []string{"boss@corp.com"},
		CustomKeywords: []string{"invoice"},
	}
	return triage.NewPipeline(nil, rules, triage.DefaultThresholds(), log.Nop(), nil)
}

func testMessages() []*message.Message {
	return []*message.Message{
		// vip + subject keyword = 55 -> high
		{ID: "m1", From: "boss@corp.com", Subject: "invoice overdue", Date: time.Now()},
		// vip only = 40 -> medium
		{ID: "m2", From: "boss@corp.com", Subject: "lunch?", Date: time.Now()},
		// subject keyword only = 15 -> low
		{ID: "m3", From: "list@announce.example", Subject: "invoice newsletter", Date: time.Now()},
	}
}

func TestBuild_DailyOmitsLowTier(t *testing.T) {
	t.Parallel()

	src := &fakeSource{msgs: testMessages()}
	b := NewBuilder(src, testPipeline(), 0, log.Nop())

	now := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	subject, html, err := b.Build(context.Background(), PeriodDaily, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(subject, "2 messages") {
		t.Errorf("subject = %q, want count of included messages only", subject)
	}
	if !strings.Contains(html, "HIGH") || !strings.Contains(html, "MEDIUM") {
		t.Error("daily digest should include high and medium sections")
	}
	if strings.Contains(html, "LOW") || strings.Contains(html, "invoice newsletter") {
		t.Error("daily digest must omit the low tier")
	}
	if !strings.Contains(html, "invoice overdue") || !strings.Contains(html, "lunch?") {
		t.Error("digest missing message subjects")
	}

	wantSince := now.Add(-24 * time.Hour)
	if !src.since.Equal(wantSince) {
		t.Errorf("fetch since = %v, want %v", src.since, wantSince)
	}
}

func TestBuild_WeeklyOmitsMediumAndLow(t *testing.T) {
	t.Parallel()

	src := &fakeSource{msgs: testMessages()}
	b := NewBuilder(src, testPipeline(), 0, log.Nop())

	now := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	subject, html, err := b.Build(context.Background(), PeriodWeekly, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(html, "HIGH") {
		t.Error("weekly digest should include the high section")
	}
	if strings.Contains(html, "LOW") || strings.Contains(html, "MEDIUM") {
		t.Error("weekly digest must omit medium and low")
	}
	if strings.Contains(html, "lunch?") {
		t.Error("medium-tier message leaked into weekly digest")
	}
	if !strings.Contains(subject, "1 messages") {
		t.Errorf("subject = %q, want count of included messages only", subject)
	}

	wantSince := now.Add(-7 * 24 * time.Hour)
	if !src.since.Equal(wantSince) {
		t.Errorf("fetch since = %v, want %v", src.since, wantSince)
	}
}

func TestBuild_SortsByScoreWithinSection(t *testing.T) {
	t.Parallel()

	src := &fakeSource{msgs: []*message.Message{
		// vip = 40 -> medium
		{ID: "a", From: "boss@corp.com", Subject: "coffee later", Date: time.Now()},
		// vip + directly addressed = 45 -> medium
		{ID: "b", From: "boss@corp.com", To: []string{"me@corp.com"}, Subject: "status please", Date: time.Now()},
	}}
	b := NewBuilder(src, testPipeline(), 0, log.Nop())

	_, html, err := b.Build(context.Background(), PeriodDaily, time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hi := strings.Index(html, "status please")
	lo := strings.Index(html, "coffee later")
	if hi < 0 || lo < 0 {
		t.Fatal("expected both medium-tier subjects in digest")
	}
	if hi > lo {
		t.Error("higher-scoring message should render first within its section")
	}
}

func TestBuild_FetchError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("mailbox unavailable")}
	b := NewBuilder(src, testPipeline(), 0, log.Nop())

	if _, _, err := b.Build(context.Background(), PeriodDaily, time.Now()); err == nil {
		t.Error("expected fetch error to propagate")
	}
}

func TestBuild_EmptyMailbox(t *testing.T) {
	t.Parallel()

	b := NewBuilder(&fakeSource{}, testPipeline(), 0, log.Nop())
	_, html, err := b.Build(context.Background(), PeriodDaily, time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(html, "No messages in this period.") {
		t.Error("empty digest should say so")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, Schedule{Hour: 8}, log.Nop(), nil)

	before := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	next := s.nextRun(before)
	if next.Day() != 31 || next.Hour() != 8 {
		t.Errorf("nextRun(%v) = %v, want same day 08:00", before, next)
	}

	after := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	next = s.nextRun(after)
	if next.Day() != 1 || next.Hour() != 8 {
		t.Errorf("nextRun(%v) = %v, want next day 08:00", after, next)
	}

	exactly := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	next = s.nextRun(exactly)
	if !next.After(exactly) {
		t.Errorf("nextRun at the boundary must move strictly forward, got %v", next)
	}
}

type fakeSender struct {
	subjects []string
	err      error
}

func (f *fakeSender) SendHTML(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return f.err
}

func TestScheduler_Send(t *testing.T) {
	t.Parallel()

	b := NewBuilder(&fakeSource{msgs: testMessages()}, testPipeline(), 0, log.Nop())
	sender := &fakeSender{}
	s := NewScheduler(b, sender, Schedule{Hour: 8}, log.Nop(), nil)

	if err := s.Send(context.Background(), PeriodDaily); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.subjects) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.subjects))
	}
	if !strings.Contains(sender.subjects[0], "Daily") {
		t.Errorf("subject = %q", sender.subjects[0])
	}
}

func TestScheduler_SendError(t *testing.T) {
	t.Parallel()

	b := NewBuilder(&fakeSource{msgs: testMessages()}, testPipeline(), 0, log.Nop())
	s := NewScheduler(b, &fakeSender{err: errors.New("smtp down")}, Schedule{Hour: 8}, log.Nop(), nil)

	if err := s.Send(context.Background(), PeriodDaily); err == nil {
		t.Error("expected send error to propagate")
	}
}
