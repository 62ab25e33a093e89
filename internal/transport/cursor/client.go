package cursor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/domain"
	"github.com/metergate/metergate/internal/metrics"
)

const (
	eventsPath      = "/api/dashboard/get-filtered-usage-events"
	usagePath       = "/api/usage"
	mePath          = "/api/auth/me"
	summaryPath     = "/api/usage-summary"
	stripePath      = "/api/auth/stripe"
	teamsPath       = "/api/dashboard/teams"
	teamPath        = "/api/dashboard/team"
	teamSpendPath   = "/api/dashboard/get-team-spend"
	sessionCookie   = "WorkosCursorSessionToken"
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 500
)

// TokenSource yields the session token used to authenticate upstream calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds the upstream client settings.
type Config struct {
	BaseURL    string
	RelayURL   string // non-empty routes event fetches through the relay
	Timeout    time.Duration
	PageSize   int
	TeamID     int
	CookieName string
}

// Client talks to the metering dashboard API, either directly with a session
// cookie or through the relay.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient creates an upstream client.
func NewClient(cfg Config, tokens TokenSource, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://cursor.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.CookieName == "" {
		cfg.CookieName = sessionCookie
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// PageSize reports the configured events page size.
func (c *Client) PageSize() int { return c.cfg.PageSize }

// Routing reports whether event fetches go direct or through the relay.
func (c *Client) Routing() Routing {
	if c.cfg.RelayURL != "" {
		return RoutingRelay
	}
	return RoutingDirect
}

// EventsPage fetches one page of usage events for the given window.
func (c *Client) EventsPage(ctx context.Context, startDate, endDate int64, page int) (EventsPage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return EventsPage{}, err
	}

	reqBody := EventsPageRequest{
		TeamID:    c.cfg.TeamID,
		StartDate: startDate,
		EndDate:   endDate,
		Page:      page,
		PageSize:  c.cfg.PageSize,
	}

	var (
		endpoint string
		body     any = reqBody
		headers      = http.Header{}
	)
	routing := c.Routing()
	if routing == RoutingRelay {
		endpoint = c.cfg.RelayURL
		body = relayPageRequest{EventsPageRequest: reqBody, Cookie: token}
	} else {
		endpoint = c.cfg.BaseURL + eventsPath
		headers.Set("Cookie", c.sessionCookie(token))
	}

	data, err := c.do(ctx, http.MethodPost, endpoint, "events", string(routing), body, headers)
	if err != nil {
		return EventsPage{}, err
	}

	var pageResp EventsPage
	if err := sonic.Unmarshal(data, &pageResp); err != nil {
		return EventsPage{}, fmt.Errorf("decode events page %d: %w", page, err)
	}

	metrics.EventPagesTotal.Inc()
	metrics.EventsFetchedTotal.Add(float64(len(pageResp.Events)))
	return pageResp, nil
}

// AccountUsage fetches the legacy per-model quota view. A non-empty userID is
// passed through as the user query parameter.
func (c *Client) AccountUsage(ctx context.Context, userID string) (domain.AccountUsage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return domain.AccountUsage{}, err
	}

	endpoint := c.cfg.BaseURL + usagePath
	if userID != "" {
		endpoint += "?user=" + url.QueryEscape(userID)
	}
	headers := http.Header{}
	headers.Set("Cookie", c.sessionCookie(token))

	data, err := c.do(ctx, http.MethodGet, endpoint, "usage", string(RoutingDirect), nil, headers)
	if err != nil {
		return domain.AccountUsage{}, err
	}
	return decodeAccountUsage(data)
}

// UserID resolves the account identity from the auth endpoint.
func (c *Client) UserID(ctx context.Context) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	headers := http.Header{}
	headers.Set("Cookie", c.sessionCookie(token))

	data, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+mePath, "me", string(RoutingDirect), nil, headers)
	if err != nil {
		return "", err
	}
	var me meDTO
	if err := json.Unmarshal(data, &me); err != nil {
		return "", fmt.Errorf("decode identity: %w", err)
	}
	return me.Sub, nil
}

// MembershipType resolves the plan tier, trying the usage summary first and
// falling back to the billing endpoint.
func (c *Client) MembershipType(ctx context.Context) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	headers := http.Header{}
	headers.Set("Cookie", c.sessionCookie(token))

	data, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+summaryPath, "usage_summary", string(RoutingDirect), nil, headers)
	if err == nil {
		var m membershipDTO
		if jsonErr := json.Unmarshal(data, &m); jsonErr == nil && m.MembershipType != "" {
			return m.MembershipType, nil
		}
	} else if isAuthErr(err) {
		return "", err
	}

	data, err = c.do(ctx, http.MethodGet, c.cfg.BaseURL+stripePath, "stripe", string(RoutingDirect), nil, headers)
	if err != nil {
		return "", err
	}
	var m membershipDTO
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("decode membership: %w", err)
	}
	return m.MembershipType, nil
}

// Teams lists the teams the account belongs to.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Cookie", c.sessionCookie(token))

	data, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+teamsPath, "teams", string(RoutingDirect), struct{}{}, headers)
	if err != nil {
		return nil, err
	}
	var dto teamsDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	return dto.Teams, nil
}

// TeamUserID resolves the caller's numeric member id within a team.
func (c *Client) TeamUserID(ctx context.Context, teamID int) (int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}
	headers := http.Header{}
	headers.Set("Cookie", c.sessionCookie(token))

	endpoint := c.cfg.BaseURL + teamPath + "?teamId=" + strconv.Itoa(teamID)
	data, err := c.do(ctx, http.MethodGet, endpoint, "team", string(RoutingDirect), nil, headers)
	if err != nil {
		return 0, err
	}
	var dto teamMemberDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return 0, fmt.Errorf("decode team membership: %w", err)
	}
	return dto.UserID, nil
}

// TeamSpend fetches the member spend rows for a team and returns the one
// matching userID, or nil when the member is not listed.
func (c *Client) TeamSpend(ctx context.Context, teamID, userID int) (*TeamSpend, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Cookie", c.sessionCookie(token))

	body := map[string]int{"teamId": teamID}
	data, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+teamSpendPath, "team_spend", string(RoutingDirect), body, headers)
	if err != nil {
		return nil, err
	}
	var dto teamSpendDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode team spend: %w", err)
	}
	for i := range dto.TeamMemberSpend {
		if dto.TeamMemberSpend[i].UserID == userID {
			return &dto.TeamMemberSpend[i], nil
		}
	}
	return nil, nil
}

func (c *Client) sessionCookie(token string) string {
	return c.cfg.CookieName + "=" + url.QueryEscape(token)
}

// do issues one instrumented request and returns the response body on 2xx.
func (c *Client) do(ctx context.Context, method, endpoint, name, routing string, body any, headers http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", name, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(name, routing).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(name, routing, "error").Inc()
		c.logger.Warn("upstream request failed",
			zap.String("endpoint", name),
			zap.String("routing", routing),
			zap.Error(err))
		return nil, fmt.Errorf("%s request: %w: %w", name, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(name, routing, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Warn("upstream returned error status",
			zap.String("endpoint", name),
			zap.String("routing", routing),
			zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Endpoint: name, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}
	return data, nil
}

func isAuthErr(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == 401 || se.StatusCode == 403
}
