// Package credential resolves the upstream session token: an explicitly
// configured value wins, otherwise the local browser cookie stores are
// searched the way the dashboard's own session lookup works.
package credential

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register cookie store finders
	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/domain"
)

// Resolver yields the session token for upstream calls.
type Resolver struct {
	token        string
	browserStore bool
	cookieDomain string
	cookieName   string
	logger       *zap.Logger
}

// Config holds resolver settings.
type Config struct {
	SessionToken string
	BrowserStore bool
	CookieDomain string
	CookieName   string
}

// New creates a Resolver.
func New(cfg Config, logger *zap.Logger) *Resolver {
	return &Resolver{
		token:        cfg.SessionToken,
		browserStore: cfg.BrowserStore,
		cookieDomain: cfg.CookieDomain,
		cookieName:   cfg.CookieName,
		logger:       logger,
	}
}

// Token returns the session token, or domain.ErrNoCredential when none is
// resolvable.
func (r *Resolver) Token(ctx context.Context) (string, error) {
	if r.token != "" {
		return r.token, nil
	}
	if !r.browserStore {
		return "", domain.ErrNoCredential
	}

	cookies, err := kooky.ReadCookies(ctx,
		kooky.Valid,
		kooky.DomainHasSuffix(r.cookieDomain),
		kooky.Name(r.cookieName),
	)
	if err != nil {
		r.logger.Warn("Browser cookie store lookup failed", zap.Error(err))
		return "", fmt.Errorf("%w: %s", domain.ErrNoCredential, err)
	}
	for _, c := range cookies {
		if c.Value != "" {
			return c.Value, nil
		}
	}
	return "", domain.ErrNoCredential
}

// UserID extracts the user id prefix from a session token. Tokens look like
// "<userID>::<jwt>" with the separator possibly URL-encoded once or twice.
func UserID(token string) string {
	if token == "" {
		return ""
	}
	decoded := token
	if d, err := url.QueryUnescape(token); err == nil {
		decoded = d
	}
	for _, sep := range []string{"%3A", ":"} {
		if i := strings.Index(decoded, sep); i > 0 {
			return decoded[:i]
		}
	}
	return ""
}
