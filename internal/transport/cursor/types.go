package cursor

import (
	"encoding/json"
	"fmt"

	"github.com/metergate/metergate/internal/domain"
)

// Routing selects how event-page requests reach the upstream API.
type Routing string

const (
	// RoutingDirect sends the session token as a Cookie header.
	RoutingDirect Routing = "direct"
	// RoutingRelay posts through the relay, token carried in the body.
	RoutingRelay Routing = "relay"
)

// EventsPageRequest is the upstream body for one usage-events page.
type EventsPageRequest struct {
	TeamID    int   `json:"teamId"`
	StartDate int64 `json:"startDate"` // epoch ms
	EndDate   int64 `json:"endDate"`   // epoch ms
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
}

// relayPageRequest adds the session token field the relay strips before
// forwarding.
type relayPageRequest struct {
	EventsPageRequest
	Cookie string `json:"cookie,omitempty"`
}

// EventsPage is one page of raw usage events plus the server-reported total.
type EventsPage struct {
	Events     []domain.UsageEvent `json:"usageEventsDisplay"`
	TotalCount int                 `json:"totalUsageEventsCount"`
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Endpoint, e.StatusCode)
}

// Unwrap maps 401/403 to domain.ErrUnauthorized and everything else to
// domain.ErrUpstreamUnavailable so callers can branch with errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return domain.ErrUnauthorized
	}
	return domain.ErrUpstreamUnavailable
}

// accountUsageDTO decodes the usage endpoint: a startOfMonth field next to
// arbitrary per-model quota objects.
type accountUsageDTO struct {
	StartOfMonth string `json:"startOfMonth"`
}

func decodeAccountUsage(data []byte) (domain.AccountUsage, error) {
	var dto accountUsageDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domain.AccountUsage{}, fmt.Errorf("decode account usage: %w", err)
	}

	// Model quotas share the top level with startOfMonth; pick out every
	// value that looks like a quota object.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.AccountUsage{}, fmt.Errorf("decode account usage fields: %w", err)
	}
	models := make(map[string]domain.ModelQuota)
	for name, msg := range raw {
		if name == "startOfMonth" {
			continue
		}
		var q domain.ModelQuota
		if err := json.Unmarshal(msg, &q); err != nil {
			continue // not a quota object
		}
		models[name] = q
	}

	return domain.AccountUsage{StartOfMonth: dto.StartOfMonth, Models: models}, nil
}

// membershipDTO decodes the plan-tier endpoints.
type membershipDTO struct {
	MembershipType string `json:"membershipType"`
}

// meDTO decodes the identity endpoint.
type meDTO struct {
	Sub string `json:"sub"`
}

// Team is one entry of the teams listing.
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type teamsDTO struct {
	Teams []Team `json:"teams"`
}

type teamMemberDTO struct {
	UserID int `json:"userId"`
}

// TeamSpend is the team budget view for one member.
type TeamSpend struct {
	UserID                   int      `json:"userId"`
	SpendCents               *float64 `json:"spendCents"`
	HardLimitOverrideDollars *float64 `json:"hardLimitOverrideDollars"`
	// FastPremiumRequests counts the requests still available, not the
	// ones consumed.
	FastPremiumRequests *int `json:"fastPremiumRequests"`
	FastPremiumLimit    *int `json:"fastPremiumLimit"`
}

type teamSpendDTO struct {
	TeamMemberSpend []TeamSpend `json:"teamMemberSpend"`
}
