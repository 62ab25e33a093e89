package domain

import (
	"testing"
	"time"
)

func TestResolvePeriod_NoAnchor(t *testing.T) {
	now := time.Date(2024, 1, 20, 15, 30, 0, 0, time.UTC)
	p := ResolvePeriod(time.Time{}, now)

	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !p.StartDate.Equal(wantStart) {
		t.Errorf("expected start %v, got %v", wantStart, p.StartDate)
	}
	if !p.EndDate.Equal(now) {
		t.Errorf("expected end %v, got %v", now, p.EndDate)
	}
}

func TestResolvePeriod_WithAnchor(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	p := ResolvePeriod(anchor, now)

	if !p.StartDate.Equal(anchor) {
		t.Errorf("expected start %v, got %v", anchor, p.StartDate)
	}
	if p.Key() != anchor.UnixMilli() {
		t.Errorf("expected key %d, got %d", anchor.UnixMilli(), p.Key())
	}
}

func TestNextReset_FirstOfFollowingMonth(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	p := ResolvePeriod(anchor, anchor)

	want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if got := p.NextReset(); !got.Equal(want) {
		t.Errorf("expected reset %v, got %v", want, got)
	}
}

func TestDaysUntilReset(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	p := ResolvePeriod(anchor, now)

	if got := p.DaysUntilReset(now); got != 11 {
		t.Errorf("expected 11 days until reset, got %d", got)
	}
}

func TestDaysUntilReset_DecemberRollsOver(t *testing.T) {
	anchor := time.Date(2023, 12, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2023, 12, 30, 8, 0, 0, 0, time.UTC)
	p := ResolvePeriod(anchor, now)

	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := p.NextReset(); !got.Equal(want) {
		t.Errorf("expected reset %v, got %v", want, got)
	}
	if got := p.DaysUntilReset(now); got != 1 {
		t.Errorf("expected 1 day until reset, got %d", got)
	}
}

func TestDaysElapsed_MinimumOne(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	p := ResolvePeriod(now, now)
	if got := p.DaysElapsed(now); got != 1 {
		t.Errorf("expected 1 day elapsed at period start, got %d", got)
	}
}

func TestDaysElapsed_Ceils(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(5*24*time.Hour + time.Hour)
	p := ResolvePeriod(anchor, now)
	if got := p.DaysElapsed(now); got != 6 {
		t.Errorf("expected 6 days elapsed, got %d", got)
	}
}
