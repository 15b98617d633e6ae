package push

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

func testInputs() (*message.Message, *triage.Result) {
	m := &message.Message{
		ID:      "m1",
		From:    "boss@corp.com",
		Subject: "deploy broke",
		Body:    "rollback now please",
		Date:    time.Now(),
	}
	r := &triage.Result{
		ID:        "01K3ABC",
		MessageID: "m1",
		Score:     60,
		Tier:      triage.TierHigh,
		Summary:   "Production deploy broke, rollback requested.",
	}
	return m, r
}

func TestSend_SetsHeadersAndBody(t *testing.T) {
	t.Parallel()

	var gotTitle, gotPriority, gotTags, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotTags = r.Header.Get("Tags")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, r := testInputs()
	if err := New(srv.URL, "tok123").Send(context.Background(), m, r); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotTitle != "[HIGH] deploy broke" {
		t.Errorf("Title = %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Errorf("Priority = %q, want high", gotPriority)
	}
	if gotTags != "email" {
		t.Errorf("Tags = %q", gotTags)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody != r.Summary {
		t.Errorf("body = %q, want summary", gotBody)
	}
}

func TestSend_BodyFallbackAndTruncation(t *testing.T) {
	t.Parallel()

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, r := testInputs()
	r.Summary = ""
	m.Body = strings.Repeat("x", maxBodyLen+100)
	if err := New(srv.URL, "").Send(context.Background(), m, r); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotBody) != maxBodyLen {
		t.Errorf("body length = %d, want %d", len(gotBody), maxBodyLen)
	}
}

func TestSend_TruncationKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, r := testInputs()
	r.Summary = ""
	m.Body = strings.Repeat("日", maxBodyLen/3+10) // 3-byte runes, limit not a multiple
	if err := New(srv.URL, "").Send(context.Background(), m, r); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !utf8.ValidString(gotBody) {
		t.Error("truncation split a rune mid-sequence")
	}
	if len(gotBody) > maxBodyLen {
		t.Errorf("body length = %d, want <= %d", len(gotBody), maxBodyLen)
	}
}

func TestSend_NoTopicIsNoop(t *testing.T) {
	t.Parallel()

	m, r := testInputs()
	if err := New("", "").Send(context.Background(), m, r); err != nil {
		t.Errorf("Send without topic should be a no-op, got %v", err)
	}
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	m, r := testInputs()
	err := New(srv.URL, "").Send(context.Background(), m, r)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want status code included", err)
	}
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier triage.Tier
		want string
	}{
		{triage.TierCritical, "urgent"},
		{triage.TierHigh, "high"},
		{triage.TierMedium, "default"},
		{triage.TierLow, "low"},
	}
	for _, tt := range tests {
		if got := priorityFor(tt.tier); got != tt.want {
			t.Errorf("priorityFor(%s) = %q, want %q", tt.tier, got, tt.want)
		}
	}
}
