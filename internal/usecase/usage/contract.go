package usage

import (
	"context"
	"time"

	"github.com/metergate/metergate/internal/domain"
	"github.com/metergate/metergate/internal/repository/events"
	"github.com/metergate/metergate/internal/repository/snapshot"
	"github.com/metergate/metergate/internal/transport/cursor"
	"github.com/metergate/metergate/internal/usecase/analytics"
)

// upstream is the consumer interface for the metering API client (ISP).
type upstream interface {
	AccountUsage(ctx context.Context, userID string) (domain.AccountUsage, error)
	MembershipType(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
	Teams(ctx context.Context) ([]cursor.Team, error)
	TeamUserID(ctx context.Context, teamID int) (int, error)
	TeamSpend(ctx context.Context, teamID, userID int) (*cursor.TeamSpend, error)
}

// eventFetcher drives the paged event download for a billing period.
type eventFetcher interface {
	FetchPeriod(ctx context.Context, period domain.BillingPeriod) (events.Result, error)
}

// slotCache is the consumer interface for the snapshot cache.
type slotCache interface {
	Get(ctx context.Context, q snapshot.Query, dst any) (bool, error)
	GetStale(ctx context.Context, slot string, dst any) (bool, error)
	Put(ctx context.Context, slot string, payload any, periodKey int64, complete bool, ttl time.Duration) error
	Invalidate(ctx context.Context, slots ...string) error
}

// exclusionSource serves the excluded-model substrings.
type exclusionSource interface {
	Current() []string
}

// tokenSource yields the session token, used here only to derive the user id
// query parameter.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TeamInfo is the spend view of the account's team membership.
type TeamInfo struct {
	TeamID           int     `json:"teamId"`
	SpendCents       float64 `json:"spendCents"`
	HardLimitCents   int     `json:"hardLimitCents,omitempty"`
	RequestsUsed     int     `json:"requestsUsed,omitempty"`
	RequestLimit     int     `json:"requestLimit,omitempty"`
	HasRequestQuota  bool    `json:"hasRequestQuota"`
	HasSpendOverride bool    `json:"hasSpendOverride"`
}

// Snapshot is the full usage bundle served to every surface.
type Snapshot struct {
	HasUsage       bool                   `json:"hasUsage"`
	Degraded       bool                   `json:"degraded,omitempty"`
	Mode           domain.BillingMode     `json:"mode"`
	MembershipType string                 `json:"membershipType,omitempty"`
	LimitCents     int                    `json:"limitCents,omitempty"`
	PeriodStart    time.Time              `json:"periodStart,omitzero"`
	PeriodEnd      time.Time              `json:"periodEnd,omitzero"`
	Complete       bool                   `json:"complete"`
	Usage          domain.AggregatedUsage `json:"usage"`
	Analytics      analytics.Report       `json:"analytics"`
	Team           *TeamInfo              `json:"team,omitempty"`
	FetchedAt      time.Time              `json:"fetchedAt"`
}

// Badge is the compact indicator surface derived from a snapshot.
type Badge struct {
	PercentageUsed int    `json:"percentageUsed"`
	HasUsage       bool   `json:"hasUsage"`
	Text           string `json:"text"`
	Color          string `json:"color"`
}
