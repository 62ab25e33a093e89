// Package metergate embeds the usage-metering engine for Go callers: the
// same snapshot pipeline the metergate server exposes over HTTP, wired
// in-process against a Redis-compatible store.
package metergate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/credential"
	"github.com/metergate/metergate/internal/db"
	dbRedis "github.com/metergate/metergate/internal/db/redis"
	eventsrepo "github.com/metergate/metergate/internal/repository/events"
	exclrepo "github.com/metergate/metergate/internal/repository/exclusions"
	snaprepo "github.com/metergate/metergate/internal/repository/snapshot"
	"github.com/metergate/metergate/internal/transport/cursor"
	usageuc "github.com/metergate/metergate/internal/usecase/usage"
)

const defaultReadinessTimeout = 10 * time.Second

// Snapshot is the full usage bundle.
type Snapshot = usageuc.Snapshot

// Badge is the compact indicator view.
type Badge = usageuc.Badge

// Client is the metergate SDK entry point.
type Client struct {
	store      db.Store
	exclusions *exclrepo.Source
	usage      *usageuc.Service
}

type clientConfig struct {
	addrs          []string
	password       string
	keyPrefix      string
	sessionToken   string
	browserStore   bool
	baseURL        string
	relayURL       string
	pageSize       int
	teamID         int
	snapshotTTL    time.Duration
	planLimits     map[string]int
	exclusionsFile string
	logger         *zap.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// WithRedis sets the Redis-compatible store addresses.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) { c.addrs = addrs }
}

// WithPassword sets the store password.
func WithPassword(password string) Option {
	return func(c *clientConfig) { c.password = password }
}

// WithKeyPrefix namespaces the cache keys.
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithSessionToken sets an explicit session token for upstream calls.
func WithSessionToken(token string) Option {
	return func(c *clientConfig) { c.sessionToken = token }
}

// WithBrowserStore enables session-token lookup in the local browser
// cookie stores when no explicit token is set.
func WithBrowserStore() Option {
	return func(c *clientConfig) { c.browserStore = true }
}

// WithBaseURL overrides the upstream API base URL.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithRelay routes event fetches through a relay endpoint.
func WithRelay(u string) Option {
	return func(c *clientConfig) { c.relayURL = u }
}

// WithPageSize overrides the events page size.
func WithPageSize(n int) Option {
	return func(c *clientConfig) { c.pageSize = n }
}

// WithTeam selects the team used for spend lookups.
func WithTeam(id int) Option {
	return func(c *clientConfig) { c.teamID = id }
}

// WithSnapshotTTL sets the usage cache freshness horizon.
func WithSnapshotTTL(d time.Duration) Option {
	return func(c *clientConfig) { c.snapshotTTL = d }
}

// WithPlanLimits overrides per-tier spend ceilings, in cents.
func WithPlanLimits(limits map[string]int) Option {
	return func(c *clientConfig) { c.planLimits = limits }
}

// WithExclusionsFile points at a JSON file of excluded model substrings.
func WithExclusionsFile(path string) Option {
	return func(c *clientConfig) { c.exclusionsFile = path }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// New creates a metergate Client and connects to the store.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if len(cfg.addrs) == 0 {
		return nil, errors.New("metergate: store address required (use WithRedis)")
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("metergate: create store: %w", err)
	}
	if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("metergate: store not ready: %w", err)
	}

	return wireClient(store, cfg)
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	resolver := credential.New(credential.Config{
		SessionToken: cfg.sessionToken,
		BrowserStore: cfg.browserStore,
	}, cfg.logger)

	client := cursor.NewClient(cursor.Config{
		BaseURL:  cfg.baseURL,
		RelayURL: cfg.relayURL,
		PageSize: cfg.pageSize,
		TeamID:   cfg.teamID,
	}, resolver, cfg.logger)

	exclusions := exclrepo.New(cfg.exclusionsFile, cfg.logger)
	if err := exclusions.Load(); err != nil {
		cfg.logger.Warn("exclusions file unavailable", zap.Error(err))
	}

	usage := usageuc.New(usageuc.Config{
		SnapshotTTL:     cfg.snapshotTTL,
		PlanLimitsCents: cfg.planLimits,
		TeamID:          cfg.teamID,
	},
		client,
		eventsrepo.New(client, cfg.logger),
		snaprepo.New(store, cfg.keyPrefix, cfg.logger),
		exclusions,
		resolver,
		cfg.logger,
	)

	return &Client{store: store, exclusions: exclusions, usage: usage}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Snapshot returns the current usage bundle.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	return c.usage.Snapshot(ctx)
}

// Badge returns the compact indicator view.
func (c *Client) Badge(ctx context.Context) (Badge, error) {
	return c.usage.Badge(ctx)
}

// ClearCache drops every cache slot.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.usage.ClearCache(ctx)
}

// WatchExclusions reloads the exclusions file on changes until ctx is done.
func (c *Client) WatchExclusions(ctx context.Context) error {
	return c.exclusions.Watch(ctx)
}
