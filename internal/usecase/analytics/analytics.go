package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/metergate/metergate/internal/domain"
)

// Warning severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Warning codes, one request family and one spend family. At most one
// warning per family is raised, the families are independent.
const (
	CodeNoRequests           = "no_requests"
	CodeLowRequests          = "low_requests"
	CodePredictiveExhaustion = "predictive_exhaustion"
	CodeSpendLimitReached    = "spend_limit_reached"
	CodeApproachingLimit     = "approaching_spend_limit"
)

// Warning is one user-facing usage alert.
type Warning struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Input carries everything the report derives from. RequestLimit zero means
// the account has no explicit request quota; remaining requests are then
// estimated from spend.
type Input struct {
	Usage        domain.AggregatedUsage
	LimitCents   int
	Period       domain.BillingPeriod
	Now          time.Time
	RequestsUsed int
	RequestLimit int
}

// Report is the derived analytics bundle served alongside the raw totals.
type Report struct {
	UsagePercent      int       `json:"usagePercent"`
	DailyAverage      float64   `json:"dailyAverage"`
	DaysUntilReset    int       `json:"daysUntilReset"`
	NextReset         time.Time `json:"nextReset"`
	RequestsRemaining int       `json:"requestsRemaining"`
	// RequestsEstimated marks RequestsRemaining as derived from average
	// cost per request rather than an explicit quota.
	RequestsEstimated bool      `json:"requestsEstimated"`
	Warnings          []Warning `json:"warnings"`
}

// Compute derives the analytics report for one aggregation.
func Compute(in Input) Report {
	rep := Report{
		UsagePercent:   UsagePercent(in.Usage.TotalCostCents, in.LimitCents),
		NextReset:      in.Period.NextReset(),
		DaysUntilReset: in.Period.DaysUntilReset(in.Now),
	}

	requests := in.Usage.ChargedCount
	if in.RequestLimit > 0 {
		requests = in.RequestsUsed
	}
	rep.DailyAverage = round1(float64(requests) / float64(in.Period.DaysElapsed(in.Now)))

	var requestLimit int
	rep.RequestsRemaining, requestLimit, rep.RequestsEstimated = requestQuota(in)
	rep.Warnings = warnings(in, rep, requestLimit)
	return rep
}

// UsagePercent maps spend against the ceiling to a whole 0..100 percentage.
func UsagePercent(costCents float64, limitCents int) int {
	if limitCents <= 0 {
		return 0
	}
	pct := costCents / float64(limitCents) * 100
	pct = math.Min(math.Max(pct, 0), 100)
	return int(math.Round(pct))
}

// requestQuota resolves the request budget. The explicit quota wins when one
// exists; without it both remaining and limit are approximated from the
// period's average cost per charged request.
func requestQuota(in Input) (remaining, limit int, estimated bool) {
	if in.RequestLimit > 0 {
		rem := in.RequestLimit - in.RequestsUsed
		if rem < 0 {
			rem = 0
		}
		return rem, in.RequestLimit, false
	}
	if in.Usage.ChargedCount == 0 || in.Usage.TotalCostCents <= 0 || in.LimitCents <= 0 {
		return 0, 0, false
	}
	avgCents := in.Usage.TotalCostCents / float64(in.Usage.ChargedCount)
	limit = int(math.Floor(float64(in.LimitCents) / avgCents))
	remCents := float64(in.LimitCents) - in.Usage.TotalCostCents
	if remCents <= 0 {
		return 0, limit, true
	}
	return int(math.Floor(remCents / avgCents)), limit, true
}

func warnings(in Input, rep Report, requestLimit int) []Warning {
	var out []Warning

	if requestLimit > 0 {
		if rep.RequestsRemaining <= 0 {
			out = append(out, Warning{
				Code:     CodeNoRequests,
				Severity: SeverityCritical,
				Message:  "No requests remaining this billing period",
			})
		} else if rep.RequestsRemaining*10 <= requestLimit {
			out = append(out, Warning{
				Code:     CodeLowRequests,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Only %d requests remaining (10%% or less of quota)", rep.RequestsRemaining),
			})
		}
		// The pace check runs regardless of how much quota is left.
		if rep.RequestsRemaining > 0 && rep.DailyAverage > 0 {
			days := int(math.Ceil(float64(rep.RequestsRemaining) / rep.DailyAverage))
			if days < 30 {
				out = append(out, Warning{
					Code:     CodePredictiveExhaustion,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("At the current rate requests run out in about %d days", days),
				})
			}
		}
	}

	if in.LimitCents > 0 {
		switch {
		case in.Usage.TotalCostCents >= float64(in.LimitCents):
			out = append(out, Warning{
				Code:     CodeSpendLimitReached,
				Severity: SeverityCritical,
				Message:  "Spending limit reached",
			})
		case rep.UsagePercent >= 80:
			out = append(out, Warning{
				Code:     CodeApproachingLimit,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Usage at %d%% of the spending limit", rep.UsagePercent),
			})
		}
	}

	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
