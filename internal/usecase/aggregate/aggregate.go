package aggregate

import (
	"github.com/samber/lo"

	"github.com/metergate/metergate/internal/domain"
)

// UnknownModel is reported when nothing was aggregated.
const UnknownModel = "unknown"

// Aggregate reduces a period's events to usage totals. Not-charged events
// contribute nothing. The per-model breakdown always reflects the full
// charged set; when exclusions are active a second pass recomputes the
// totals without the matching events and those replace the first-pass
// totals.
func Aggregate(events []domain.UsageEvent, exclusions []string) domain.AggregatedUsage {
	out := reduce(events, nil)
	if len(exclusions) > 0 {
		filtered := reduce(events, exclusions)
		filtered.PerModel = out.PerModel
		filtered.MostUsedModel = out.MostUsedModel
		return filtered
	}
	return out
}

func reduce(events []domain.UsageEvent, exclusions []string) domain.AggregatedUsage {
	out := domain.AggregatedUsage{
		PerModel:      map[string]domain.ModelUsage{},
		MostUsedModel: UnknownModel,
	}
	var order []string

	for _, ev := range events {
		if !ev.Charged() {
			continue
		}
		if len(exclusions) > 0 && ev.MatchesAny(exclusions) {
			continue
		}

		out.TotalCostCents += ev.CostCents()
		out.ChargedCount++
		if tu := ev.TokenUsage; tu != nil {
			out.TotalInputTokens += tu.InputTokens
			out.TotalOutputTokens += tu.OutputTokens
			out.TotalCacheWriteTokens += tu.CacheWriteTokens
			out.TotalCacheReadTokens += tu.CacheReadTokens
		}

		model := ev.ModelName()
		mu, seen := out.PerModel[model]
		if !seen {
			order = append(order, model)
		}
		mu.CostCents += ev.CostCents()
		mu.EventCount++
		out.PerModel[model] = mu
	}

	if len(order) > 0 {
		// order preserves first encounter, and MaxBy keeps the earlier
		// item on ties.
		out.MostUsedModel = lo.MaxBy(order, func(a, b string) bool {
			return out.PerModel[a].EventCount > out.PerModel[b].EventCount
		})
	}
	return out
}
