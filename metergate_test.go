package metergate

import (
	"strings"
	"testing"
	"time"
)

func TestNewRequiresAddress(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error without a store address")
	}
	if !strings.Contains(err.Error(), "store address required") {
		t.Errorf("err = %v", err)
	}
}

func TestOptionsApply(t *testing.T) {
	cfg := &clientConfig{}
	opts := []Option{
		WithRedis("localhost:6379"),
		WithPassword("secret"),
		WithKeyPrefix("metergate:"),
		WithSessionToken("user_01::tok"),
		WithBrowserStore(),
		WithBaseURL("https://example.test"),
		WithRelay("https://relay.test/events"),
		WithPageSize(250),
		WithTeam(3),
		WithSnapshotTTL(3 * time.Minute),
		WithPlanLimits(map[string]int{"pro": 9000}),
		WithExclusionsFile("exclusions.json"),
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) != 1 || cfg.addrs[0] != "localhost:6379" {
		t.Errorf("addrs = %v", cfg.addrs)
	}
	if cfg.password != "secret" || cfg.keyPrefix != "metergate:" {
		t.Errorf("store opts = %+v", cfg)
	}
	if cfg.sessionToken != "user_01::tok" || !cfg.browserStore {
		t.Errorf("credential opts = %+v", cfg)
	}
	if cfg.baseURL != "https://example.test" || cfg.relayURL != "https://relay.test/events" {
		t.Errorf("upstream opts = %+v", cfg)
	}
	if cfg.pageSize != 250 || cfg.teamID != 3 {
		t.Errorf("paging opts = %+v", cfg)
	}
	if cfg.snapshotTTL != 3*time.Minute {
		t.Errorf("snapshotTTL = %v", cfg.snapshotTTL)
	}
	if cfg.planLimits["pro"] != 9000 {
		t.Errorf("planLimits = %v", cfg.planLimits)
	}
	if cfg.exclusionsFile != "exclusions.json" {
		t.Errorf("exclusionsFile = %q", cfg.exclusionsFile)
	}
}
