package cfg

import (
	"flag"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		RulesPath:             "rules.yaml",
		PollIntervalSeconds:   300,
		PollMinSleepSeconds:   30,
		PollOverlapSeconds:    60,
		PollFetchLimit:        100,
		RetentionCap:          2000,
		RetentionKeep:         1500,
		ClaudeModel:           "claude-sonnet-4-20250514",
		ClaudeRequestsPerSec:  1,
		SMTPPort:              587,
		DigestHour:            8,
		DigestWeekday:         1,
		DigestLimit:           200,
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		wantIn string
	}{
		{"drain too low", func(c *Config) { c.DrainSeconds = 0 }, "DRAIN_SECONDS"},
		{"drain too high", func(c *Config) { c.DrainSeconds = 301 }, "DRAIN_SECONDS"},
		{"budget below drain", func(c *Config) { c.ShutdownBudgetSeconds = 60 }, "must be greater than DRAIN_SECONDS"},
		{"port zero", func(c *Config) { c.APIPort = 0 }, "HTTP_PORT"},
		{"port too high", func(c *Config) { c.APIPort = 70000 }, "HTTP_PORT"},
		{"rules path empty", func(c *Config) { c.RulesPath = "" }, "RULES_PATH"},
		{"poll interval too short", func(c *Config) { c.PollIntervalSeconds = 5 }, "POLL_INTERVAL_SECONDS"},
		{"poll interval too long", func(c *Config) { c.PollIntervalSeconds = 7200 }, "POLL_INTERVAL_SECONDS"},
		{"min sleep zero", func(c *Config) { c.PollMinSleepSeconds = 0 }, "POLL_MIN_SLEEP_SECONDS"},
		{"negative overlap", func(c *Config) { c.PollOverlapSeconds = -1 }, "POLL_OVERLAP_SECONDS"},
		{"negative fetch limit", func(c *Config) { c.PollFetchLimit = -1 }, "POLL_FETCH_LIMIT"},
		{"retention cap zero", func(c *Config) { c.RetentionCap = 0 }, "RETENTION_CAP"},
		{"keep above cap", func(c *Config) { c.RetentionKeep = 2001 }, "RETENTION_KEEP"},
		{"api key without model", func(c *Config) { c.ClaudeAPIKey = "sk-x"; c.ClaudeModel = "" }, "CLAUDE_MODEL"},
		{"zero request rate", func(c *Config) { c.ClaudeRequestsPerSec = 0 }, "CLAUDE_REQUESTS_PER_SEC"},
		{"gmail creds without token", func(c *Config) { c.GmailCredentialsPath = "creds.json" }, "must be set together"},
		{"gmail token without creds", func(c *Config) { c.GmailTokenPath = "token.json" }, "must be set together"},
		{"db and file ledger", func(c *Config) { c.DatabaseURL = "postgres://x"; c.LedgerPath = "ledger.json" }, "mutually exclusive"},
		{"smtp without from", func(c *Config) { c.SMTPHost = "relay"; c.SMTPTo = "a@b.c" }, "SMTP_FROM"},
		{"smtp without to", func(c *Config) { c.SMTPHost = "relay"; c.SMTPFrom = "a@b.c" }, "SMTP_TO"},
		{"smtp bad port", func(c *Config) {
			c.SMTPHost = "relay"
			c.SMTPFrom = "a@b.c"
			c.SMTPTo = "d@e.f"
			c.SMTPPort = 0
		}, "SMTP_PORT"},
		{"digest without smtp", func(c *Config) { c.DigestEnabled = true }, "requires SMTP_HOST"},
		{"digest bad hour", func(c *Config) {
			c.DigestEnabled = true
			c.SMTPHost = "relay"
			c.SMTPFrom = "a@b.c"
			c.SMTPTo = "d@e.f"
			c.DigestHour = 24
		}, "DIGEST_HOUR"},
		{"digest bad weekday", func(c *Config) {
			c.DigestEnabled = true
			c.SMTPHost = "relay"
			c.SMTPFrom = "a@b.c"
			c.SMTPTo = "d@e.f"
			c.DigestWeekday = 7
		}, "DIGEST_WEEKDAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantIn)
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c = validConfig()
	c.SMTPHost = "relay.corp.com"
	c.SMTPFrom = "mailwatch@corp.com"
	c.SMTPTo = "me@corp.com"
	c.DigestEnabled = true
	if err := c.Validate(); err != nil {
		t.Errorf("full config rejected: %v", err)
	}
}
