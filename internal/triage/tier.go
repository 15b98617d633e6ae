package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/xerrors"
)

// Tier is one of the four ordered urgency buckets a message lands in.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
)

// Rank orders tiers by descending urgency: critical=3 .. low=0.
// Useful for monotonicity checks and sorting.
func (t Tier) Rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}

// ParseTier converts a config string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierCritical:
		return TierCritical, nil
	case TierHigh:
		return TierHigh, nil
	case TierMedium:
		return TierMedium, nil
	case TierLow:
		return TierLow, nil
	}
	return "", xerrors.New(fmt.Sprintf("unknown tier %q", s))
}

// Thresholds are the three ascending cut points between tiers. Boundaries
// are inclusive on the lower end: a score equal to a threshold belongs to
// the higher tier.
type Thresholds struct {
	Medium   int `yaml:"medium"`
	High     int `yaml:"high"`
	Critical int `yaml:"critical"`
}

// DefaultThresholds returns the stock cut points: medium>=20, high>=50,
// critical>=75.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 20, High: 50, Critical: 75}
}

// Validate rejects thresholds that are negative or not strictly ascending.
// A misconfigured boundary silently reshapes every routing decision, so
// this is checked once at startup and treated as fatal.
func (t Thresholds) Validate() error {
	if t.Medium < 0 {
		return fmt.Errorf("medium threshold %d must be non-negative", t.Medium)
	}
	if t.High <= t.Medium {
		return fmt.Errorf("high threshold %d must exceed medium threshold %d", t.High, t.Medium)
	}
	if t.Critical <= t.High {
		return fmt.Errorf("critical threshold %d must exceed high threshold %d", t.Critical, t.High)
	}
	return nil
}

// Categorize maps a score onto a tier. Pure; covers the full range [0, inf).
func Categorize(score int, t Thresholds) Tier {
	switch {
	case score >= t.Critical:
		return TierCritical
	case score >= t.High:
		return TierHigh
	case score >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// CategorizeBatch tiers every score and reports per-tier counts for
// diagnostics.
func CategorizeBatch(scores []int, t Thresholds) ([]Tier, map[Tier]int) {
	tiers := make([]Tier, len(scores))
	counts := map[Tier]int{
		TierCritical: 0,
		TierHigh:     0,
		TierMedium:   0,
		TierLow:      0,
	}
	for i, s := range scores {
		tiers[i] = Categorize(s, t)
		counts[tiers[i]]++
	}
	return tiers, counts
}
