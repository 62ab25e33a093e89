package analytics

import (
	"testing"
	"time"

	"github.com/metergate/metergate/internal/domain"
)

func period(anchor time.Time) domain.BillingPeriod {
	return domain.BillingPeriod{StartDate: anchor, EndDate: anchor}
}

func TestUsagePercent(t *testing.T) {
	tests := []struct {
		name  string
		cost  float64
		limit int
		want  int
	}{
		{"zero", 0, 4500, 0},
		{"half", 2250, 4500, 50},
		{"rounds", 2230, 4500, 50}, // 49.56 rounds up
		{"clamped high", 9000, 4500, 100},
		{"clamped negative", -10, 4500, 0},
		{"no limit", 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UsagePercent(tt.cost, tt.limit); got != tt.want {
				t.Errorf("UsagePercent(%v, %d) = %d, want %d", tt.cost, tt.limit, got, tt.want)
			}
		})
	}
}

func TestComputeResetTracking(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

	rep := Compute(Input{
		Usage:      domain.AggregatedUsage{TotalCostCents: 100, ChargedCount: 11},
		LimitCents: 4500,
		Period:     period(anchor),
		Now:        now,
	})

	wantReset := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if !rep.NextReset.Equal(wantReset) {
		t.Errorf("NextReset = %v", rep.NextReset)
	}
	if rep.DaysUntilReset != 11 {
		t.Errorf("DaysUntilReset = %d", rep.DaysUntilReset)
	}
	// 5.5 days elapsed rounds up to 6; 11 requests over 6 days.
	if rep.DailyAverage != 1.8 {
		t.Errorf("DailyAverage = %v", rep.DailyAverage)
	}
}

func TestComputeEstimatedRemaining(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rep := Compute(Input{
		// 100 requests at 9 cents each, 4500 ceiling: 3600 cents left,
		// 400 more requests.
		Usage:      domain.AggregatedUsage{TotalCostCents: 900, ChargedCount: 100},
		LimitCents: 4500,
		Period:     period(anchor),
		Now:        anchor.Add(48 * time.Hour),
	})
	if !rep.RequestsEstimated {
		t.Fatal("expected estimated remaining")
	}
	if rep.RequestsRemaining != 400 {
		t.Errorf("RequestsRemaining = %d", rep.RequestsRemaining)
	}
}

func TestWarningsSpendFamily(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(24 * time.Hour)

	rep := Compute(Input{
		Usage:      domain.AggregatedUsage{TotalCostCents: 4500, ChargedCount: 10},
		LimitCents: 4500,
		Period:     period(anchor),
		Now:        now,
	})
	if !hasCode(rep.Warnings, CodeSpendLimitReached) {
		t.Errorf("missing spend_limit_reached: %+v", rep.Warnings)
	}

	rep = Compute(Input{
		Usage:      domain.AggregatedUsage{TotalCostCents: 3700, ChargedCount: 10},
		LimitCents: 4500,
		Period:     period(anchor),
		Now:        now,
	})
	if !hasCode(rep.Warnings, CodeApproachingLimit) {
		t.Errorf("missing approaching warning at 82%%: %+v", rep.Warnings)
	}
	if hasCode(rep.Warnings, CodeSpendLimitReached) {
		t.Error("reached and approaching are mutually exclusive")
	}
}

func TestWarningsRequestFamily(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(24 * time.Hour)

	rep := Compute(Input{
		Usage:        domain.AggregatedUsage{ChargedCount: 500},
		LimitCents:   4500,
		Period:       period(anchor),
		Now:          now,
		RequestsUsed: 500,
		RequestLimit: 500,
	})
	if !hasCode(rep.Warnings, CodeNoRequests) {
		t.Errorf("missing no_requests: %+v", rep.Warnings)
	}

	// 40 of 500 left at 460/day: the quota warning and the pace warning
	// describe different problems and must both appear.
	rep = Compute(Input{
		Usage:        domain.AggregatedUsage{ChargedCount: 460},
		LimitCents:   4500,
		Period:       period(anchor),
		Now:          now,
		RequestsUsed: 460,
		RequestLimit: 500,
	})
	if !hasCode(rep.Warnings, CodeLowRequests) {
		t.Errorf("missing low_requests at 8%% left: %+v", rep.Warnings)
	}
	if !hasCode(rep.Warnings, CodePredictiveExhaustion) {
		t.Errorf("missing predictive warning alongside low_requests: %+v", rep.Warnings)
	}
}

func TestWarningsEstimatedQuota(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 420 requests at 10 cents each against a 4500 ceiling: the derived
	// quota is 450 and 30 requests remain, under the 10% threshold.
	rep := Compute(Input{
		Usage:      domain.AggregatedUsage{TotalCostCents: 4200, ChargedCount: 420},
		LimitCents: 4500,
		Period:     period(anchor),
		Now:        anchor.Add(10 * 24 * time.Hour),
	})
	if !rep.RequestsEstimated || rep.RequestsRemaining != 30 {
		t.Fatalf("estimated remaining: %+v", rep)
	}
	if !hasCode(rep.Warnings, CodeLowRequests) {
		t.Errorf("missing low_requests on the estimated quota: %+v", rep.Warnings)
	}
}

func TestWarningsPredictiveExhaustion(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 10 days in, 200 of 500 used: 20/day, 300 left, 15 days to exhaustion.
	now := anchor.Add(10 * 24 * time.Hour)

	rep := Compute(Input{
		Usage:        domain.AggregatedUsage{ChargedCount: 200},
		LimitCents:   4500,
		Period:       period(anchor),
		Now:          now,
		RequestsUsed: 200,
		RequestLimit: 500,
	})
	if !hasCode(rep.Warnings, CodePredictiveExhaustion) {
		t.Errorf("missing predictive warning: %+v", rep.Warnings)
	}
}

func TestWarningFamiliesIndependent(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(24 * time.Hour)

	rep := Compute(Input{
		Usage:        domain.AggregatedUsage{TotalCostCents: 4500, ChargedCount: 500},
		LimitCents:   4500,
		Period:       period(anchor),
		Now:          now,
		RequestsUsed: 500,
		RequestLimit: 500,
	})
	if !hasCode(rep.Warnings, CodeNoRequests) || !hasCode(rep.Warnings, CodeSpendLimitReached) {
		t.Errorf("both families should fire: %+v", rep.Warnings)
	}
	// Request warning first.
	if rep.Warnings[0].Code != CodeNoRequests {
		t.Errorf("warning order: %+v", rep.Warnings)
	}
}

func hasCode(ws []Warning, code string) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}
