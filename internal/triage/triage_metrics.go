package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	MessagesTotal     *prometheus.CounterVec
	MessageScore      prometheus.Histogram
	ProcessDuration   prometheus.Histogram
	AnnotateFailures  prometheus.Counter
	DispatchesTotal   *prometheus.CounterVec
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	CycleBatchSize    prometheus.Histogram
	LedgerSize        prometheus.Gauge
	CheckpointAge     prometheus.Gauge
	DigestsTotal      *prometheus.CounterVec
	AnnotateTokensIn  prometheus.Counter
	AnnotateTokensOut prometheus.Counter
	AnnotateDuration  prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailwatch_messages_total",
			Help: "Total messages triaged by resulting tier.",
		}, []string{"tier"}),
		MessageScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailwatch_message_score",
			Help:    "Priority score distribution of triaged messages.",
			Buckets: prometheus.LinearBuckets(0, 10, 13), // 0 .. 120
		}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailwatch_process_duration_seconds",
			Help:    "Duration of per-message triage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		AnnotateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailwatch_annotate_failures_total",
			Help: "Total annotation failures that degraded to raw-signal scoring.",
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailwatch_dispatches_total",
			Help: "Total notification dispatches by channel and status.",
		}, []string{"channel", "status"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailwatch_poll_cycles_total",
			Help: "Total poll cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailwatch_poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		CycleBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailwatch_poll_batch_size",
			Help:    "New messages processed per poll cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		LedgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailwatch_ledger_size",
			Help: "Message IDs currently tracked by the dedup ledger.",
		}),
		CheckpointAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailwatch_checkpoint_age_seconds",
			Help: "Age of the poll checkpoint in seconds.",
		}),
		DigestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailwatch_digests_total",
			Help: "Total digest sends by period and result.",
		}, []string{"period", "result"}),
		AnnotateTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailwatch_annotate_tokens_input_total",
			Help: "Total annotation input tokens consumed.",
		}),
		AnnotateTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailwatch_annotate_tokens_output_total",
			Help: "Total annotation output tokens consumed.",
		}),
		AnnotateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailwatch_annotate_call_duration_seconds",
			Help:    "Duration of individual annotation calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.MessageScore,
		m.ProcessDuration,
		m.AnnotateFailures,
		m.DispatchesTotal,
		m.CyclesTotal,
		m.CycleDuration,
		m.CycleBatchSize,
		m.LedgerSize,
		m.CheckpointAge,
		m.DigestsTotal,
		m.AnnotateTokensIn,
		m.AnnotateTokensOut,
		m.AnnotateDuration,
	)

	return m
}
