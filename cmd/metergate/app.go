package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/credential"
	"github.com/metergate/metergate/internal/db"
	dbRedis "github.com/metergate/metergate/internal/db/redis"
	logpkg "github.com/metergate/metergate/internal/logger"
	"github.com/metergate/metergate/internal/metrics"
	eventsrepo "github.com/metergate/metergate/internal/repository/events"
	exclrepo "github.com/metergate/metergate/internal/repository/exclusions"
	snaprepo "github.com/metergate/metergate/internal/repository/snapshot"
	chiTransport "github.com/metergate/metergate/internal/transport/chi"
	"github.com/metergate/metergate/internal/transport/cursor"
	healthuc "github.com/metergate/metergate/internal/usecase/health"
	usageuc "github.com/metergate/metergate/internal/usecase/usage"
)

// app is the composition root shared by serve and snapshot.
type app struct {
	env        string
	cfg        config.Config
	logger     *zap.Logger
	store      db.Store
	resolver   *credential.Resolver
	exclusions *exclrepo.Source
	usage      *usageuc.Service
	health     *healthuc.Service
	relay      *chiTransport.Relay
}

func newApp(ctx context.Context) (*app, error) {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("store not ready: %w", err)
	}

	metrics.RegisterUpstreamMetrics()

	resolver := credential.New(credential.Config{
		SessionToken: cfg.Credential.SessionToken,
		BrowserStore: cfg.Credential.BrowserStore,
		CookieDomain: cfg.Credential.CookieDomain,
		CookieName:   cfg.Credential.CookieName,
	}, logger)

	client := cursor.NewClient(cursor.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		RelayURL:   cfg.Upstream.RelayURL,
		Timeout:    time.Duration(cfg.Upstream.TimeoutSec) * time.Second,
		PageSize:   cfg.Upstream.PageSize,
		TeamID:     cfg.Upstream.TeamID,
		CookieName: cfg.Credential.CookieName,
	}, resolver, logger)

	exclusions := exclrepo.New(cfg.Exclusions.File, logger)
	if err := exclusions.Load(); err != nil {
		// Served from the cache's last known good list until the file is back.
		logger.Warn("exclusions file unavailable", zap.Error(err))
	}

	cache := snaprepo.New(store, cfg.Database.KeyPrefix, logger)
	fetcher := eventsrepo.New(client, logger)

	usage := usageuc.New(usageuc.Config{
		SnapshotTTL:     cfg.Cache.SnapshotTTL(),
		PlanLimitsCents: cfg.Plans.LimitsCents,
		TeamID:          cfg.Upstream.TeamID,
	}, client, fetcher, cache, exclusions, resolver, logger)

	relay := chiTransport.NewRelay(chiTransport.RelayConfig{
		UpstreamURL: cfg.Upstream.BaseURL + "/api/dashboard/get-filtered-usage-events",
		CookieName:  cfg.Credential.CookieName,
		Timeout:     time.Duration(cfg.Upstream.TimeoutSec) * time.Second,
	}, resolver, logger)

	return &app{
		env:        env,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		resolver:   resolver,
		exclusions: exclusions,
		usage:      usage,
		health:     healthuc.New(store, credentialChecker{resolver}),
		relay:      relay,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// credentialChecker adapts the resolver to the health check contract.
type credentialChecker struct {
	tokens *credential.Resolver
}

func (c credentialChecker) HealthCheck(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}
