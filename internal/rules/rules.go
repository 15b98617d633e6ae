// Package rules loads the user's triage rules file: who their VIPs are,
// which keywords matter, the tier cut points, and which channels fire for
// which tiers.
package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/mailwatch/internal/notify"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

// file is the on-disk YAML shape.
type file struct {
	UserEmail       string             `yaml:"user_email"`
	VIPContacts     []string           `yaml:"vip_contacts"`
	CustomKeywords  []string           `yaml:"custom_keywords"`
	UrgencyKeywords []string           `yaml:"urgency_keywords"`
	Thresholds      *triage.Thresholds `yaml:"thresholds"`
	Channels        []channelRule      `yaml:"channels"`
}

type channelRule struct {
	Name    string   `yaml:"name"`
	Enabled *bool    `yaml:"enabled"`
	Tiers   []string `yaml:"tiers"`
}

// Rules is the parsed, validated rule set.
type Rules struct {
	Signal     triage.SignalRules
	Thresholds triage.Thresholds
	Routes     []notify.Rule
}

// Load reads and validates a rules file. Any structural problem is fatal:
// a half-applied rules file would silently change what gets notified.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}

	return build(&f)
}

func build(f *file) (*Rules, error) {
	if f.UserEmail == "" {
		return nil, errors.New("rules: user_email is required")
	}

	th := triage.DefaultThresholds()
	if f.Thresholds != nil {
		th = *f.Thresholds
	}
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("rules: thresholds: %w", err)
	}

	routes := make([]notify.Rule, 0, len(f.Channels))
	seen := make(map[string]bool)
	for i, ch := range f.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("rules: channels[%d]: name is required", i)
		}
		if seen[ch.Name] {
			return nil, fmt.Errorf("rules: channels[%d]: duplicate channel %q", i, ch.Name)
		}
		seen[ch.Name] = true

		if len(ch.Tiers) == 0 {
			return nil, fmt.Errorf("rules: channel %q: at least one tier is required", ch.Name)
		}
		tiers := make([]triage.Tier, 0, len(ch.Tiers))
		for _, raw := range ch.Tiers {
			tier, err := triage.ParseTier(raw)
			if err != nil {
				return nil, fmt.Errorf("rules: channel %q: %w", ch.Name, err)
			}
			tiers = append(tiers, tier)
		}

		enabled := true
		if ch.Enabled != nil {
			enabled = *ch.Enabled
		}
		routes = append(routes, notify.Rule{
			Channel: ch.Name,
			Enabled: enabled,
			Tiers:   tiers,
		})
	}

	return &Rules{
		Signal: triage.SignalRules{
			UserAddress:     f.UserEmail,
			VIPContacts:     f.VIPContacts,
			CustomKeywords:  f.CustomKeywords,
			UrgencyKeywords: f.UrgencyKeywords,
		},
		Thresholds: th,
		Routes:     routes,
	}, nil
}
