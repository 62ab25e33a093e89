package domain

import "strings"

// EventKind classifies a raw usage event as reported by the upstream API.
type EventKind string

// Upstream event kind constants. Anything outside the two not-charged kinds
// counts toward totals.
const (
	KindCharged          EventKind = "USAGE_EVENT_KIND_USAGE_BASED"
	KindErroredNotCharge EventKind = "USAGE_EVENT_KIND_ERRORED_NOT_CHARGED"
	KindAbortedNotCharge EventKind = "USAGE_EVENT_KIND_ABORTED_NOT_CHARGED"
)

// TokenUsage holds the token-metered portion of a usage event.
// Absent on flat-charged events.
type TokenUsage struct {
	InputTokens      int64   `json:"inputTokens"`
	OutputTokens     int64   `json:"outputTokens"`
	CacheWriteTokens int64   `json:"cacheWriteTokens"`
	CacheReadTokens  int64   `json:"cacheReadTokens"`
	TotalCents       float64 `json:"totalCents"`
}

// UsageEvent is one metered request as returned by the upstream dashboard API.
// Immutable once fetched.
type UsageEvent struct {
	Kind          EventKind   `json:"kind"`
	Model         string      `json:"model"`
	Timestamp     int64       `json:"timestamp"` // unix millis
	RequestsCosts float64     `json:"requestsCosts"` // dollars
	TokenUsage    *TokenUsage `json:"tokenUsage,omitempty"`
}

// DefaultModel is substituted when an event carries no model name.
const DefaultModel = "default"

// Charged reports whether the event counts toward cost and token totals.
// Errored and aborted events contribute nothing, unconditionally.
func (e UsageEvent) Charged() bool {
	return e.Kind != KindErroredNotCharge && e.Kind != KindAbortedNotCharge
}

// CostCents returns the event's total charge in cents: the flat request
// charge plus the token-metered charge. The two are summed, not alternatives.
func (e UsageEvent) CostCents() float64 {
	cents := e.RequestsCosts * 100
	if e.TokenUsage != nil {
		cents += e.TokenUsage.TotalCents
	}
	return cents
}

// ModelName returns the event's model, or DefaultModel when absent.
func (e UsageEvent) ModelName() string {
	if e.Model == "" {
		return DefaultModel
	}
	return e.Model
}

// MatchesAny reports whether the event's model name contains any of the given
// exclusion substrings, case-insensitively.
func (e UsageEvent) MatchesAny(exclusions []string) bool {
	model := strings.ToLower(e.ModelName())
	for _, ex := range exclusions {
		if ex == "" {
			continue
		}
		if strings.Contains(model, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}
