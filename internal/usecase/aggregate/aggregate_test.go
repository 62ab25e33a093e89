package aggregate

import (
	"math"
	"testing"

	"github.com/metergate/metergate/internal/domain"
)

func charged(model string, dollars float64, tu *domain.TokenUsage) domain.UsageEvent {
	return domain.UsageEvent{
		Kind:          domain.KindCharged,
		Model:         model,
		RequestsCosts: dollars,
		TokenUsage:    tu,
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, nil)
	if got.TotalCostCents != 0 || got.ChargedCount != 0 {
		t.Errorf("empty aggregate: %+v", got)
	}
	if got.MostUsedModel != UnknownModel {
		t.Errorf("MostUsedModel = %q", got.MostUsedModel)
	}
}

func TestAggregateSumsBothCostComponents(t *testing.T) {
	events := []domain.UsageEvent{
		charged("gpt-5", 0.04, &domain.TokenUsage{
			InputTokens: 100, OutputTokens: 50, CacheWriteTokens: 10,
			CacheReadTokens: 5, TotalCents: 2.5,
		}),
	}
	got := Aggregate(events, nil)
	if math.Abs(got.TotalCostCents-6.5) > 1e-9 {
		t.Errorf("TotalCostCents = %v, want 6.5", got.TotalCostCents)
	}
	if got.TotalTokens() != 165 {
		t.Errorf("TotalTokens = %d", got.TotalTokens())
	}
}

func TestAggregateSkipsNotCharged(t *testing.T) {
	events := []domain.UsageEvent{
		charged("gpt-5", 0.04, nil),
		{Kind: domain.KindErroredNotCharge, Model: "gpt-5", RequestsCosts: 1,
			TokenUsage: &domain.TokenUsage{TotalCents: 100, InputTokens: 999}},
		{Kind: domain.KindAbortedNotCharge, Model: "gpt-5", RequestsCosts: 1},
	}
	got := Aggregate(events, nil)
	if got.ChargedCount != 1 {
		t.Errorf("ChargedCount = %d", got.ChargedCount)
	}
	if math.Abs(got.TotalCostCents-4) > 1e-9 {
		t.Errorf("TotalCostCents = %v", got.TotalCostCents)
	}
	if got.TotalInputTokens != 0 {
		t.Errorf("not-charged tokens leaked: %d", got.TotalInputTokens)
	}
}

func TestAggregateDefaultModelBucket(t *testing.T) {
	events := []domain.UsageEvent{
		charged("", 0.01, nil),
		charged("", 0.01, nil),
	}
	got := Aggregate(events, nil)
	if mu := got.PerModel[domain.DefaultModel]; mu.EventCount != 2 {
		t.Errorf("default bucket = %+v", mu)
	}
	if got.MostUsedModel != domain.DefaultModel {
		t.Errorf("MostUsedModel = %q", got.MostUsedModel)
	}
}

func TestAggregateExclusionsReplaceTotalsKeepBreakdown(t *testing.T) {
	events := []domain.UsageEvent{
		charged("gpt-5", 0.10, &domain.TokenUsage{InputTokens: 10}),
		charged("Auto-Fast", 0.50, &domain.TokenUsage{InputTokens: 1000}),
		charged("gpt-5", 0.10, nil),
	}
	got := Aggregate(events, []string{"auto"})

	if math.Abs(got.TotalCostCents-20) > 1e-9 {
		t.Errorf("TotalCostCents = %v, want 20", got.TotalCostCents)
	}
	if got.ChargedCount != 2 {
		t.Errorf("ChargedCount = %d", got.ChargedCount)
	}
	if got.TotalInputTokens != 10 {
		t.Errorf("TotalInputTokens = %d", got.TotalInputTokens)
	}
	// The breakdown stays unfiltered.
	if mu := got.PerModel["Auto-Fast"]; mu.EventCount != 1 {
		t.Errorf("excluded model missing from breakdown: %+v", got.PerModel)
	}
	if got.MostUsedModel != "gpt-5" {
		t.Errorf("MostUsedModel = %q", got.MostUsedModel)
	}
}

func TestAggregateMostUsedTieBreak(t *testing.T) {
	events := []domain.UsageEvent{
		charged("claude", 0.01, nil),
		charged("gpt-5", 0.01, nil),
	}
	got := Aggregate(events, nil)
	if got.MostUsedModel != "claude" {
		t.Errorf("tie must keep first encounter, got %q", got.MostUsedModel)
	}
}
