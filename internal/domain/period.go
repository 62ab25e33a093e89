package domain

import (
	"math"
	"time"
)

// BillingPeriod is the metering window the event fetch covers.
type BillingPeriod struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// ResolvePeriod builds the current billing period. When the account reports a
// billing anchor (start-of-month timestamp) the period runs from the anchor to
// now; otherwise from the first of the calendar month to now.
func ResolvePeriod(anchor time.Time, now time.Time) BillingPeriod {
	if anchor.IsZero() {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return BillingPeriod{StartDate: start, EndDate: now}
	}
	return BillingPeriod{StartDate: anchor, EndDate: now}
}

// Key is the cache qualifier for period-scoped entries: the anchor's unix
// millis. A changed anchor invalidates anything keyed on the old value.
func (p BillingPeriod) Key() int64 {
	return p.StartDate.UnixMilli()
}

// NextReset returns the first of the month following the anchor's month, at
// midnight.
func (p BillingPeriod) NextReset() time.Time {
	s := p.StartDate
	first := time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, s.Location())
	return first.AddDate(0, 1, 0)
}

// DaysUntilReset counts the full days left before the next reset.
func (p BillingPeriod) DaysUntilReset(now time.Time) int {
	return int(math.Floor(p.NextReset().Sub(now).Hours() / 24))
}

// DaysElapsed counts whole days since the anchor, never less than one.
func (p BillingPeriod) DaysElapsed(now time.Time) int {
	days := int(math.Ceil(now.Sub(p.StartDate).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}
