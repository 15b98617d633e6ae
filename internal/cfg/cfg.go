package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	RulesPath string

	PollIntervalSeconds int
	PollMinSleepSeconds int
	PollOverlapSeconds  int
	PollFetchLimit      int
	RetentionCap        int
	RetentionKeep       int

	ClaudeAPIKey         string
	ClaudeModel          string
	ClaudeRequestsPerSec float64

	GmailCredentialsPath string
	GmailTokenPath       string

	DatabaseURL string
	LedgerPath  string

	SlackWebhookURL string
	PushTopicURL    string
	PushToken       string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       string

	DigestEnabled bool
	DigestHour    int
	DigestWeekday int
	DigestLimit   int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token protecting the triage API (empty = unauthenticated)")

	fs.StringVar(&c.RulesPath, "rules-path", "rules.yaml", "path to the triage rules YAML file")

	fs.IntVar(&c.PollIntervalSeconds, "poll-interval-seconds", 300, "target spacing between poll cycles (10..3600)")
	fs.IntVar(&c.PollMinSleepSeconds, "poll-min-sleep-seconds", 30, "minimum sleep between cycles even when overrunning (1..600)")
	fs.IntVar(&c.PollOverlapSeconds, "poll-overlap-seconds", 60, "fetch window overlap to absorb provider clock skew (0..600)")
	fs.IntVar(&c.PollFetchLimit, "poll-fetch-limit", 100, "max messages per fetch (0 = provider default)")
	fs.IntVar(&c.RetentionCap, "retention-cap", 2000, "ledger size that triggers trimming")
	fs.IntVar(&c.RetentionKeep, "retention-keep", 1500, "ledger entries kept after trimming")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider (empty = no annotation)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.Float64Var(&c.ClaudeRequestsPerSec, "claude-requests-per-sec", 1, "sustained annotation request rate limit")

	fs.StringVar(&c.GmailCredentialsPath, "gmail-credentials-path", "", "path to Gmail OAuth application credentials JSON")
	fs.StringVar(&c.GmailTokenPath, "gmail-token-path", "", "path to Gmail OAuth user token JSON")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the ledger (empty = file or memory)")
	fs.StringVar(&c.LedgerPath, "ledger-path", "", "JSON file path for the ledger when no database is configured")

	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.StringVar(&c.PushTopicURL, "push-topic-url", "", "ntfy-compatible topic URL for push notifications")
	fs.StringVar(&c.PushToken, "push-token", "", "bearer token for the push topic")

	fs.StringVar(&c.SMTPHost, "smtp-host", "", "SMTP relay host for email notifications and digests")
	fs.IntVar(&c.SMTPPort, "smtp-port", 587, "SMTP relay port")
	fs.StringVar(&c.SMTPUsername, "smtp-username", "", "SMTP auth username")
	fs.StringVar(&c.SMTPPassword, "smtp-password", "", "SMTP auth password")
	fs.StringVar(&c.SMTPFrom, "smtp-from", "", "From address for outbound mail")
	fs.StringVar(&c.SMTPTo, "smtp-to", "", "comma-separated recipients for notifications and digests")

	fs.BoolVar(&c.DigestEnabled, "digest-enabled", false, "send periodic digest emails")
	fs.IntVar(&c.DigestHour, "digest-hour", 8, "local hour of day for digests (0..23)")
	fs.IntVar(&c.DigestWeekday, "digest-weekday", 1, "weekday for the weekly digest, 0=Sunday (0..6)")
	fs.IntVar(&c.DigestLimit, "digest-limit", 200, "max messages per digest")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.RulesPath == "" {
		errs = append(errs, errors.New("RULES_PATH is required"))
	}

	if c.PollIntervalSeconds < 10 || c.PollIntervalSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %d (must be 10..3600)", c.PollIntervalSeconds))
	}
	if c.PollMinSleepSeconds <= 0 || c.PollMinSleepSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid POLL_MIN_SLEEP_SECONDS %d (must be 1..600)", c.PollMinSleepSeconds))
	}
	if c.PollOverlapSeconds < 0 || c.PollOverlapSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid POLL_OVERLAP_SECONDS %d (must be 0..600)", c.PollOverlapSeconds))
	}
	if c.PollFetchLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid POLL_FETCH_LIMIT %d (must be >= 0)", c.PollFetchLimit))
	}

	if c.RetentionCap <= 0 {
		errs = append(errs, fmt.Errorf("invalid RETENTION_CAP %d (must be > 0)", c.RetentionCap))
	}
	if c.RetentionKeep <= 0 || c.RetentionKeep > c.RetentionCap {
		errs = append(errs, fmt.Errorf("RETENTION_KEEP %d must be 1..RETENTION_CAP (%d)", c.RetentionKeep, c.RetentionCap))
	}

	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}
	if c.ClaudeRequestsPerSec <= 0 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_REQUESTS_PER_SEC %g (must be > 0)", c.ClaudeRequestsPerSec))
	}

	// Gmail credentials come in pairs
	if (c.GmailCredentialsPath == "") != (c.GmailTokenPath == "") {
		errs = append(errs, errors.New("GMAIL_CREDENTIALS_PATH and GMAIL_TOKEN_PATH must be set together"))
	}

	if c.DatabaseURL != "" && c.LedgerPath != "" {
		errs = append(errs, errors.New("DATABASE_URL and LEDGER_PATH are mutually exclusive"))
	}

	// SMTP settings come as a set
	if c.SMTPHost != "" {
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid SMTP_PORT %d (must be 1..65535)", c.SMTPPort))
		}
		if c.SMTPFrom == "" {
			errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
		}
		if c.SMTPTo == "" {
			errs = append(errs, errors.New("SMTP_TO is required when SMTP_HOST is set"))
		}
	}

	if c.DigestEnabled {
		if c.SMTPHost == "" {
			errs = append(errs, errors.New("DIGEST_ENABLED requires SMTP_HOST"))
		}
		if c.DigestHour < 0 || c.DigestHour > 23 {
			errs = append(errs, fmt.Errorf("invalid DIGEST_HOUR %d (must be 0..23)", c.DigestHour))
		}
		if c.DigestWeekday < 0 || c.DigestWeekday > 6 {
			errs = append(errs, fmt.Errorf("invalid DIGEST_WEEKDAY %d (must be 0..6)", c.DigestWeekday))
		}
		if c.DigestLimit <= 0 {
			errs = append(errs, fmt.Errorf("invalid DIGEST_LIMIT %d (must be > 0)", c.DigestLimit))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
