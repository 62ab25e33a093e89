package domain

// ModelUsage is the per-model slice of an aggregation.
type ModelUsage struct {
	CostCents  float64 `json:"costCents"`
	EventCount int     `json:"eventCount"`
}

// AggregatedUsage is the reduction of a billing period's charged events.
// When an exclusion set was active, the totals are exclusion-adjusted while
// PerModel keeps the unfiltered breakdown.
type AggregatedUsage struct {
	TotalCostCents        float64               `json:"totalCostCents"`
	TotalInputTokens      int64                 `json:"totalInputTokens"`
	TotalOutputTokens     int64                 `json:"totalOutputTokens"`
	TotalCacheWriteTokens int64                 `json:"totalCacheWriteTokens"`
	TotalCacheReadTokens  int64                 `json:"totalCacheReadTokens"`
	ChargedCount          int                   `json:"chargedCount"`
	PerModel              map[string]ModelUsage `json:"perModel"`

	// MostUsedModel is the highest-count entry of PerModel, ties broken by
	// first encounter in event order. "unknown" when no events aggregated.
	MostUsedModel string `json:"mostUsedModel"`
}

// TotalTokens returns the sum of all four token categories.
func (a AggregatedUsage) TotalTokens() int64 {
	return a.TotalInputTokens + a.TotalOutputTokens +
		a.TotalCacheWriteTokens + a.TotalCacheReadTokens
}
