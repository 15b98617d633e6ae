package triage

import "testing"

func TestCategorize_Boundaries(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()

	tests := []struct {
		score int
		want  Tier
	}{
		{0, TierLow},
		{19, TierLow},
		{20, TierMedium},
		{49, TierMedium},
		{50, TierHigh},
		{74, TierHigh},
		{75, TierCritical},
		{140, TierCritical},
	}

	for _, tt := range tests {
		got := Categorize(tt.score, th)
		if got != tt.want {
			t.Errorf("Categorize(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", DefaultThresholds(), false},
		{"custom ascending", Thresholds{Medium: 10, High: 30, Critical: 60}, false},
		{"negative medium", Thresholds{Medium: -1, High: 30, Critical: 60}, true},
		{"high equals medium", Thresholds{Medium: 30, High: 30, Critical: 60}, true},
		{"critical below high", Thresholds{Medium: 10, High: 60, Critical: 30}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"critical", TierCritical, false},
		{"HIGH", TierHigh, false},
		{" medium ", TierMedium, false},
		{"low", TierLow, false},
		{"urgent", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTier(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTier_Rank(t *testing.T) {
	t.Parallel()

	order := []Tier{TierLow, TierMedium, TierHigh, TierCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%q rank %d not above %q rank %d", order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
}

func TestCategorizeBatch(t *testing.T) {
	t.Parallel()

	tiers, counts := CategorizeBatch([]int{0, 25, 80, 55, 90}, DefaultThresholds())

	want := []Tier{TierLow, TierMedium, TierCritical, TierHigh, TierCritical}
	for i, tier := range tiers {
		if tier != want[i] {
			t.Errorf("tiers[%d] = %q, want %q", i, tier, want[i])
		}
	}
	if counts[TierCritical] != 2 || counts[TierHigh] != 1 || counts[TierMedium] != 1 || counts[TierLow] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestCategorizeBatch_Empty(t *testing.T) {
	t.Parallel()

	tiers, counts := CategorizeBatch(nil, DefaultThresholds())
	if len(tiers) != 0 {
		t.Errorf("tiers = %v, want empty", tiers)
	}
	// all four tiers present with zero counts for stable diagnostics
	if len(counts) != 4 {
		t.Errorf("counts has %d keys, want 4", len(counts))
	}
}
