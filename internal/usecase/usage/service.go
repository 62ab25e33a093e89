package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/metergate/metergate/internal/credential"
	"github.com/metergate/metergate/internal/domain"
	"github.com/metergate/metergate/internal/repository/snapshot"
	"github.com/metergate/metergate/internal/usecase/aggregate"
	"github.com/metergate/metergate/internal/usecase/analytics"
)

// Config carries the orchestration settings.
type Config struct {
	SnapshotTTL     time.Duration
	PlanLimitsCents map[string]int // per-tier ceiling overrides
	TeamID          int            // preferred team, 0 picks the first listed
}

// Service owns the snapshot pipeline: billing-mode resolution, event fetch,
// aggregation, analytics and the cache slots in front of it all.
type Service struct {
	cfg        Config
	client     upstream
	fetcher    eventFetcher
	cache      slotCache
	exclusions exclusionSource
	tokens     tokenSource
	logger     *zap.Logger
	group      singleflight.Group
	now        func() time.Time
}

// New creates the usage service.
func New(cfg Config, client upstream, fetcher eventFetcher, cache slotCache,
	exclusions exclusionSource, tokens tokenSource, logger *zap.Logger) *Service {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = time.Minute
	}
	return &Service{
		cfg:        cfg,
		client:     client,
		fetcher:    fetcher,
		cache:      cache,
		exclusions: exclusions,
		tokens:     tokens,
		logger:     logger,
		now:        time.Now,
	}
}

// modeEntry is the 24h-cached billing-mode resolution.
type modeEntry struct {
	Mode           domain.BillingMode `json:"mode"`
	StartOfMonth   string             `json:"startOfMonth,omitempty"`
	MembershipType string             `json:"membershipType,omitempty"`
}

// Snapshot returns the current usage bundle. Auth and upstream failures
// degrade to an empty or stale snapshot instead of failing the call.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	mode, err := s.resolveMode(ctx)
	if err != nil {
		return s.degrade(ctx, err), nil
	}

	if mode.Mode == domain.ModeLegacy {
		snap, err := s.legacySnapshot(ctx, mode)
		if err != nil {
			return s.degrade(ctx, err), nil
		}
		return snap, nil
	}

	anchor, err := parseAnchor(mode.StartOfMonth)
	if err != nil {
		return s.degrade(ctx, err), nil
	}
	period := domain.ResolvePeriod(anchor, s.now())

	var cached Snapshot
	hit, err := s.cache.Get(ctx, snapshot.Query{
		Slot:            snapshot.SlotUsage,
		MaxAge:          s.cfg.SnapshotTTL,
		PeriodKey:       period.Key(),
		RequireComplete: true,
	}, &cached)
	if err != nil {
		s.logger.Warn("snapshot cache read failed", zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	v, err, _ := s.group.Do("usage", func() (any, error) {
		return s.compute(ctx, mode, period)
	})
	if err != nil {
		return s.degrade(ctx, err), nil
	}
	return v.(Snapshot), nil
}

// Badge derives the compact indicator from the current snapshot.
func (s *Service) Badge(ctx context.Context) (Badge, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Badge{}, err
	}
	return BadgeFor(snap), nil
}

// ClearCache drops every cache slot. Credentials are untouched.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

// resolveMode returns the cached billing-mode variant, fetching account
// metadata on a cold cache.
func (s *Service) resolveMode(ctx context.Context) (modeEntry, error) {
	var entry modeEntry
	hit, err := s.cache.Get(ctx, snapshot.Query{
		Slot:   snapshot.SlotMode,
		MaxAge: snapshot.ModeTTL,
	}, &entry)
	if err != nil {
		s.logger.Warn("mode cache read failed", zap.Error(err))
	}
	if hit {
		return entry, nil
	}

	account, err := s.client.AccountUsage(ctx, s.userID(ctx))
	if err != nil {
		return modeEntry{}, err
	}
	membership, err := s.client.MembershipType(ctx)
	if err != nil {
		s.logger.Warn("membership lookup failed", zap.Error(err))
	}

	entry = modeEntry{
		Mode:           account.Mode(),
		StartOfMonth:   account.StartOfMonth,
		MembershipType: membership,
	}
	if err := s.cache.Put(ctx, snapshot.SlotMode, entry, 0, true, snapshot.ModeTTL); err != nil {
		s.logger.Warn("mode cache write failed", zap.Error(err))
	}
	return entry, nil
}

// compute runs the full pipeline on a cache miss and stores the result.
func (s *Service) compute(ctx context.Context, mode modeEntry, period domain.BillingPeriod) (Snapshot, error) {
	exclusions := s.currentExclusions(ctx)
	limit := s.limitCents(mode.MembershipType)

	res, err := s.fetcher.FetchPeriod(ctx, period)
	if err != nil {
		return Snapshot{}, err
	}

	agg := aggregate.Aggregate(res.Events, exclusions)

	in := analytics.Input{
		Usage:      agg,
		LimitCents: limit,
		Period:     period,
		Now:        s.now(),
	}
	team := s.teamInfo(ctx)
	if team != nil {
		if team.HasSpendOverride {
			in.Usage.TotalCostCents = team.SpendCents
			in.LimitCents = team.HardLimitCents
		}
		if team.HasRequestQuota {
			in.RequestsUsed = team.RequestsUsed
			in.RequestLimit = team.RequestLimit
		}
	}

	snap := Snapshot{
		HasUsage:       agg.ChargedCount > 0,
		Mode:           domain.ModeEventMetered,
		MembershipType: mode.MembershipType,
		LimitCents:     in.LimitCents,
		PeriodStart:    period.StartDate,
		PeriodEnd:      period.EndDate,
		Complete:       res.Complete,
		Usage:          agg,
		Analytics:      analytics.Compute(in),
		Team:           team,
		FetchedAt:      s.now(),
	}

	if err := s.cache.Put(ctx, snapshot.SlotUsage, snap, period.Key(), res.Complete, s.cfg.SnapshotTTL); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.Error(err))
	}
	return snap, nil
}

// legacySnapshot builds the request-quota view without an event fetch.
func (s *Service) legacySnapshot(ctx context.Context, mode modeEntry) (Snapshot, error) {
	account, err := s.client.AccountUsage(ctx, s.userID(ctx))
	if err != nil {
		return Snapshot{}, err
	}

	now := s.now()
	period := domain.ResolvePeriod(time.Time{}, now)
	snap := Snapshot{
		Mode:           domain.ModeLegacy,
		MembershipType: mode.MembershipType,
		PeriodStart:    period.StartDate,
		PeriodEnd:      period.EndDate,
		Complete:       true,
		FetchedAt:      now,
	}

	quota, ok := account.Models["gpt-4"]
	if !ok || quota.MaxRequestUsage == nil || *quota.MaxRequestUsage <= 0 {
		return snap, nil
	}

	snap.HasUsage = true
	rep := analytics.Compute(analytics.Input{
		Period:       period,
		Now:          now,
		RequestsUsed: quota.NumRequests,
		RequestLimit: *quota.MaxRequestUsage,
	})
	rep.UsagePercent = int(math.Floor(float64(quota.NumRequests) / float64(*quota.MaxRequestUsage) * 100))
	snap.Analytics = rep
	return snap, nil
}

// currentExclusions prefers the live file list and falls back to the last
// known good list in the cache when the file has nothing.
func (s *Service) currentExclusions(ctx context.Context) []string {
	list := s.exclusions.Current()
	if len(list) > 0 {
		if err := s.cache.Put(ctx, snapshot.SlotExclusions, list, 0, true, snapshot.ExclusionsTTL); err != nil {
			s.logger.Warn("exclusions cache write failed", zap.Error(err))
		}
		return list
	}
	var cached []string
	hit, err := s.cache.Get(ctx, snapshot.Query{
		Slot:   snapshot.SlotExclusions,
		MaxAge: snapshot.ExclusionsTTL,
	}, &cached)
	if err != nil || !hit {
		return nil
	}
	return cached
}

// teamInfo fetches the team spend view. Team lookups are best effort and
// never fail the snapshot.
func (s *Service) teamInfo(ctx context.Context) *TeamInfo {
	teams, err := s.client.Teams(ctx)
	if err != nil || len(teams) == 0 {
		return nil
	}
	teamID := s.cfg.TeamID
	if teamID == 0 {
		teamID = teams[0].ID
	}

	memberID, err := s.client.TeamUserID(ctx, teamID)
	if err != nil {
		s.logger.Warn("team membership lookup failed", zap.Int("team_id", teamID), zap.Error(err))
		return nil
	}
	spend, err := s.client.TeamSpend(ctx, teamID, memberID)
	if err != nil || spend == nil {
		if err != nil {
			s.logger.Warn("team spend lookup failed", zap.Int("team_id", teamID), zap.Error(err))
		}
		return nil
	}

	info := &TeamInfo{TeamID: teamID}
	if spend.SpendCents != nil {
		info.SpendCents = *spend.SpendCents
	}
	if spend.HardLimitOverrideDollars != nil && *spend.HardLimitOverrideDollars > 0 {
		info.HardLimitCents = int(*spend.HardLimitOverrideDollars * 100)
		info.HasSpendOverride = true
	}
	if spend.FastPremiumRequests != nil && spend.FastPremiumLimit != nil && *spend.FastPremiumLimit > 0 {
		// The spend endpoint reports how many fast requests are left.
		used := *spend.FastPremiumLimit - *spend.FastPremiumRequests
		if used < 0 {
			used = 0
		}
		info.RequestsUsed = used
		info.RequestLimit = *spend.FastPremiumLimit
		info.HasRequestQuota = true
	}
	return info
}

// degrade classifies a pipeline failure. Auth failures drop the usage and
// mode slots; anything else tries the stale cache before giving up.
func (s *Service) degrade(ctx context.Context, cause error) Snapshot {
	if errors.Is(cause, domain.ErrUnauthorized) {
		s.logger.Warn("session rejected, clearing cache slots", zap.Error(cause))
		if err := s.cache.Invalidate(ctx, snapshot.SlotUsage, snapshot.SlotMode); err != nil {
			s.logger.Warn("slot invalidation failed", zap.Error(err))
		}
		return Snapshot{Degraded: true, FetchedAt: s.now()}
	}

	s.logger.Warn("snapshot pipeline failed, serving degraded", zap.Error(cause))
	var stale Snapshot
	if ok, err := s.cache.GetStale(ctx, snapshot.SlotUsage, &stale); err == nil && ok {
		stale.Degraded = true
		return stale
	}
	return Snapshot{Degraded: true, FetchedAt: s.now()}
}

// userID extracts the user id prefix of the session token, falling back to
// the identity endpoint.
func (s *Service) userID(ctx context.Context) string {
	token, err := s.tokens.Token(ctx)
	if err == nil {
		if id := credential.UserID(token); id != "" {
			return id
		}
	}
	id, err := s.client.UserID(ctx)
	if err != nil {
		return ""
	}
	return id
}

// limitCents maps a plan tier to its spend ceiling, config overrides first.
func (s *Service) limitCents(tier string) int {
	if cents, ok := s.cfg.PlanLimitsCents[strings.ToLower(tier)]; ok {
		return cents
	}
	return domain.SpendLimitCents(tier)
}

func parseAnchor(startOfMonth string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, startOfMonth)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse billing anchor %q: %w", startOfMonth, err)
	}
	return t, nil
}

// Badge colors by usage band.
const (
	colorRed   = "#f44336"
	colorAmber = "#e9b33b"
	colorGreen = "#63a11a"
)

// BadgeFor renders the indicator for a snapshot. Free-tier accounts and
// accounts without usage get an empty badge.
func BadgeFor(snap Snapshot) Badge {
	pct := snap.Analytics.UsagePercent
	b := Badge{PercentageUsed: pct, HasUsage: snap.HasUsage}

	if !snap.HasUsage || pct <= 0 || strings.EqualFold(snap.MembershipType, "free") {
		return b
	}

	b.Text = fmt.Sprintf("%d%%", pct)
	switch {
	case pct >= 90:
		b.Color = colorRed
	case pct >= 70:
		b.Color = colorAmber
	default:
		b.Color = colorGreen
	}
	return b
}
