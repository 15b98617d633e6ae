// Package notify routes triage results to notification channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

// Channel is a single notification backend.
type Channel interface {
	Name() string
	Send(ctx context.Context, m *message.Message, r *triage.Result) error
}

// Rule binds a channel to the tiers that should fire it.
type Rule struct {
	Channel string
	Enabled bool
	Tiers   []triage.Tier
}

// Matches reports whether the rule fires for the given tier.
func (r Rule) Matches(tier triage.Tier) bool {
	if !r.Enabled {
		return false
	}
	for _, t := range r.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// DispatchStatus is the outcome of one channel attempt.
type DispatchStatus string

const (
	StatusSent    DispatchStatus = "sent"
	StatusSkipped DispatchStatus = "skipped"
	StatusFailed  DispatchStatus = "failed"
)

// Dispatch records what happened on one channel for one message.
type Dispatch struct {
	Channel string
	Status  DispatchStatus
	Err     error
}

// Router evaluates rules against a triage result and sends on each matching
// channel at most once per message, regardless of how many rules name it.
type Router struct {
	channels    map[string]Channel
	rules       []Rule
	sendTimeout time.Duration
	logger      log.Logger
	metrics     *triage.Metrics
}

// NewRouter creates a router over the given channels and rules. Rules that
// name a channel with no registered backend are reported as failed
// dispatches rather than dropped silently.
func NewRouter(channels []Channel, rules []Rule, sendTimeout time.Duration, logger log.Logger, metrics *triage.Metrics) *Router {
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Router{
		channels:    byName,
		rules:       rules,
		sendTimeout: sendTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Dispatch evaluates every rule for the result's tier and sends on each
// matching channel. A channel fires at most once per message; a failing
// channel never blocks the others. The returned slice has one entry per
// distinct channel considered.
func (rt *Router) Dispatch(ctx context.Context, m *message.Message, res *triage.Result) []Dispatch {
	fired := make(map[string]bool)
	var out []Dispatch

	for _, rule := range rt.rules {
		if fired[rule.Channel] {
			continue
		}
		if !rule.Matches(res.Tier) {
			continue
		}
		fired[rule.Channel] = true

		d := rt.send(ctx, rule.Channel, m, res)
		out = append(out, d)

		if rt.metrics != nil {
			rt.metrics.DispatchesTotal.WithLabelValues(d.Channel, string(d.Status)).Inc()
		}
		switch d.Status {
		case StatusSent:
			res.Notified = append(res.Notified, d.Channel)
			rt.logger.Info(ctx, "notification sent",
				"channel", d.Channel, "message_id", m.ID, "tier", res.Tier)
		case StatusFailed:
			rt.logger.Error(ctx, d.Err, "notification failed",
				"channel", d.Channel, "message_id", m.ID, "tier", res.Tier)
		}
	}

	return out
}

func (rt *Router) send(ctx context.Context, name string, m *message.Message, res *triage.Result) Dispatch {
	ch, ok := rt.channels[name]
	if !ok {
		return Dispatch{
			Channel: name,
			Status:  StatusFailed,
			Err:     fmt.Errorf("no backend registered for channel %q", name),
		}
	}

	sctx, cancel := context.WithTimeout(ctx, rt.sendTimeout)
	defer cancel()

	if err := ch.Send(sctx, m, res); err != nil {
		return Dispatch{Channel: name, Status: StatusFailed, Err: err}
	}
	return Dispatch{Channel: name, Status: StatusSent}
}
