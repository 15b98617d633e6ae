// Package poller runs the incremental fetch-triage-notify loop.
package poller

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/ledger"
	"github.com/linnemanlabs/mailwatch/internal/notify"
	"github.com/linnemanlabs/mailwatch/internal/source"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

// Config tunes the poll loop.
type Config struct {
	// Interval is the target spacing between cycle starts.
	Interval time.Duration
	// MinSleep is the floor between cycles even when a cycle overruns the
	// interval, so a slow mailbox cannot pin the loop at 100%.
	MinSleep time.Duration
	// Overlap is subtracted from the checkpoint when fetching, covering
	// clock skew between us and the mail provider. The ledger absorbs the
	// duplicates this reintroduces.
	Overlap time.Duration
	// FetchLimit caps messages per fetch. 0 means provider default.
	FetchLimit int
	// RetentionCap / RetentionKeep bound the dedup ledger: once it exceeds
	// cap, only the newest keep IDs survive.
	RetentionCap  int
	RetentionKeep int
	// InitialLookback bounds the first cycle when no checkpoint exists yet.
	InitialLookback time.Duration
}

// Defaults fills zero fields with production values.
func (c Config) Defaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.MinSleep <= 0 {
		c.MinSleep = 30 * time.Second
	}
	if c.Overlap <= 0 {
		c.Overlap = time.Minute
	}
	if c.RetentionCap <= 0 {
		c.RetentionCap = 2000
	}
	if c.RetentionKeep <= 0 {
		c.RetentionKeep = 1500
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = time.Hour
	}
	return c
}

// Poller drives repeated triage cycles against a message source.
type Poller struct {
	cfg      Config
	src      source.Source
	pipeline *triage.Pipeline
	router   *notify.Router
	ledger   *ledger.Ledger
	store    ledger.Store
	ring     *triage.Ring
	logger   log.Logger
	metrics  *triage.Metrics
}

// New creates a poller. store may be nil for ephemeral runs.
func New(cfg Config, src source.Source, p *triage.Pipeline, rt *notify.Router, led *ledger.Ledger, st ledger.Store, ring *triage.Ring, logger log.Logger, metrics *triage.Metrics) *Poller {
	return &Poller{
		cfg:      cfg.Defaults(),
		src:      src,
		pipeline: p,
		router:   rt,
		ledger:   led,
		store:    st,
		ring:     ring,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run loops until ctx is canceled. Each iteration sleeps the remainder of
// the interval, never less than MinSleep.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info(ctx, "poller started",
		"interval", p.cfg.Interval.String(),
		"overlap", p.cfg.Overlap.String(),
	)

	for {
		start := time.Now()
		p.RunCycle(ctx)

		sleep := p.cfg.Interval - time.Since(start)
		if sleep < p.cfg.MinSleep {
			sleep = p.cfg.MinSleep
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info(ctx, "poller stopped")
			return
		case <-timer.C:
		}
	}
}

// RunCycle executes one fetch-triage-notify pass. A fetch failure skips the
// cycle without advancing the checkpoint, so the missed window is retried
// next time. Cancellation mid-batch likewise leaves the checkpoint untouched:
// a partial cycle never marks its window as covered.
func (p *Poller) RunCycle(ctx context.Context) {
	start := time.Now()

	checkpoint := p.ledger.Checkpoint()
	if checkpoint.IsZero() {
		checkpoint = start.Add(-p.cfg.InitialLookback)
	}
	since := checkpoint.Add(-p.cfg.Overlap)

	msgs, err := p.src.Fetch(ctx, since, p.cfg.FetchLimit)
	if err != nil {
		p.logger.Error(ctx, err, "fetch failed, skipping cycle", "since", since)
		p.observeCycle(start, "fetch_error", 0)
		return
	}

	processed := 0
	interrupted := false
	for _, m := range msgs {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if p.ledger.Has(m.ID) {
			continue
		}

		res := p.pipeline.Process(ctx, m)
		p.router.Dispatch(ctx, m, res)

		// Mark processed only after dispatch so a crash mid-message retries
		// it rather than dropping it.
		p.ledger.Add(m.ID)
		if p.ring != nil {
			p.ring.Add(res)
		}
		processed++
	}

	if interrupted {
		// The checkpoint stays put so the unprocessed tail of the batch falls
		// inside the next fetch window. Processed IDs remain in the in-memory
		// ledger and are persisted by the final save on shutdown.
		p.logger.Warn(ctx, "cycle interrupted mid-batch, checkpoint not advanced",
			"fetched", len(msgs), "processed", processed)
		p.observeCycle(start, "interrupted", processed)
		return
	}

	p.ledger.Trim(p.cfg.RetentionCap, p.cfg.RetentionKeep)
	p.ledger.Advance(start)

	if p.store != nil {
		if err := p.store.Save(ctx, p.ledger.Snapshot()); err != nil {
			// Keep running on in-memory state; dedup degrades only across a
			// restart.
			p.logger.Error(ctx, err, "ledger save failed")
		}
	}

	p.observeCycle(start, "ok", processed)
	p.logger.Info(ctx, "cycle complete",
		"fetched", len(msgs),
		"processed", processed,
		"ledger_size", p.ledger.Len(),
		"checkpoint", p.ledger.Checkpoint(),
	)
}

func (p *Poller) observeCycle(start time.Time, outcome string, processed int) {
	if p.metrics == nil {
		return
	}
	p.metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	if outcome == "ok" {
		p.metrics.CycleBatchSize.Observe(float64(processed))
	}
	p.metrics.LedgerSize.Set(float64(p.ledger.Len()))
	if cp := p.ledger.Checkpoint(); !cp.IsZero() {
		p.metrics.CheckpointAge.Set(time.Since(cp).Seconds())
	}
}
