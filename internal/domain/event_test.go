package domain

import "testing"

func TestCharged(t *testing.T) {
	cases := []struct {
		kind EventKind
		want bool
	}{
		{KindCharged, true},
		{KindErroredNotCharge, false},
		{KindAbortedNotCharge, false},
		{EventKind(""), true},
		{EventKind("USAGE_EVENT_KIND_FUTURE"), true},
	}
	for _, c := range cases {
		e := UsageEvent{Kind: c.kind}
		if got := e.Charged(); got != c.want {
			t.Errorf("Charged(%q) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestCostCents_SumsBothComponents(t *testing.T) {
	e := UsageEvent{
		RequestsCosts: 1.5,
		TokenUsage:    &TokenUsage{TotalCents: 25},
	}
	if got := e.CostCents(); got != 175 {
		t.Errorf("expected 175 cents, got %v", got)
	}
}

func TestCostCents_NoTokenUsage(t *testing.T) {
	e := UsageEvent{RequestsCosts: 0.04}
	if got := e.CostCents(); got != 4 {
		t.Errorf("expected 4 cents, got %v", got)
	}
}

func TestModelName_Default(t *testing.T) {
	if got := (UsageEvent{}).ModelName(); got != DefaultModel {
		t.Errorf("expected %q, got %q", DefaultModel, got)
	}
	if got := (UsageEvent{Model: "claude-4-sonnet"}).ModelName(); got != "claude-4-sonnet" {
		t.Errorf("expected model name passthrough, got %q", got)
	}
}

func TestMatchesAny(t *testing.T) {
	e := UsageEvent{Model: "GPT-4-Turbo"}

	if !e.MatchesAny([]string{"gpt-4"}) {
		t.Error("expected case-insensitive substring match")
	}
	if e.MatchesAny([]string{"claude"}) {
		t.Error("expected no match")
	}
	if e.MatchesAny(nil) {
		t.Error("expected no match on empty exclusion set")
	}
	if e.MatchesAny([]string{""}) {
		t.Error("empty exclusion string must not match everything")
	}
}
