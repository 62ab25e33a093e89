package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	relayMaxBody  = 1 << 20
	sessionCookie = "WorkosCursorSessionToken"
	loginRedirect = "https://cursor.com/dashboard?tab=usage"
)

// relayTokenSource is the server-side credential fallback for relay callers
// that send no cookie of their own.
type relayTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RelayConfig carries the relay settings.
type RelayConfig struct {
	UpstreamURL string // full events endpoint URL
	CookieName  string
	Timeout     time.Duration
}

// Relay forwards usage-event requests to the upstream API on behalf of
// browser callers that cannot attach the session cookie themselves. The
// credential is taken from the request body's cookie field, then the Cookie
// header, then the server's own token source.
type Relay struct {
	cfg        RelayConfig
	httpClient *http.Client
	tokens     relayTokenSource
	logger     *zap.Logger
}

// NewRelay creates the relay endpoint handler. tokens may be nil.
func NewRelay(cfg RelayConfig, tokens relayTokenSource, logger *zap.Logger) *Relay {
	if cfg.CookieName == "" {
		cfg.CookieName = sessionCookie
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Relay{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		rl.proxy(w, r)
	default:
		rl.status(w, r)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Accept-Language, Origin, Referer, User-Agent, Cookie")
	h.Set("Access-Control-Allow-Credentials", "true")
}

// status answers non-POST requests: a login redirect when no credential can
// be resolved, a ready confirmation otherwise.
func (rl *Relay) status(w http.ResponseWriter, r *http.Request) {
	if rl.resolveToken(r, nil) == "" {
		http.Redirect(w, r, loginRedirect, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Session token found. Use POST to relay API requests.",
	})
}

// proxy forwards a POST body to the upstream events endpoint, status and
// body verbatim.
func (rl *Relay) proxy(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, relayMaxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cannot read request body"})
		return
	}

	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON in request body"})
			return
		}
	}

	token := rl.resolveToken(r, body)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "Missing " + rl.cfg.CookieName + " cookie. Please log in to cursor.com first.",
			"redirect": loginRedirect,
		})
		return
	}

	// The credential never travels in the forwarded body.
	if _, ok := body["cookie"]; ok {
		delete(body, "cookie")
		raw, err = json.Marshal(body)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Cannot re-encode request body"})
			return
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, rl.cfg.UpstreamURL, bytes.NewReader(raw))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Cannot build upstream request"})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", "https://cursor.com")
	req.Header.Set("Referer", loginRedirect)
	req.Header.Set("Cookie", rl.cfg.CookieName+"="+url.QueryEscape(token))

	resp, err := rl.httpClient.Do(req)
	if err != nil {
		rl.logger.Warn("relay upstream request failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": "Relay error: " + err.Error(),
			"debug": map[string]string{
				"upstream": rl.cfg.UpstreamURL,
			},
		})
		return
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		rl.logger.Warn("relay response copy failed", zap.Error(err))
	}
}

// resolveToken picks the session token: body cookie field first, then the
// Cookie header, then the server's own source.
func (rl *Relay) resolveToken(r *http.Request, body map[string]any) string {
	if body != nil {
		if v, ok := body["cookie"].(string); ok && v != "" {
			if t := extractSessionToken(v, rl.cfg.CookieName); t != "" {
				return t
			}
		}
	}

	if c, err := r.Cookie(rl.cfg.CookieName); err == nil && c.Value != "" {
		return unescape(c.Value)
	}

	if rl.tokens != nil {
		if t, err := rl.tokens.Token(r.Context()); err == nil && t != "" {
			return t
		}
	}
	return ""
}

// extractSessionToken accepts either a full Cookie-header string or the bare
// token value.
func extractSessionToken(raw, cookieName string) string {
	prefix := cookieName + "="
	if strings.Contains(raw, prefix) {
		for _, piece := range strings.Split(raw, ";") {
			piece = strings.TrimSpace(piece)
			if strings.HasPrefix(piece, prefix) {
				return unescape(strings.TrimPrefix(piece, prefix))
			}
		}
		return ""
	}
	return unescape(raw)
}

func unescape(v string) string {
	if u, err := url.QueryUnescape(v); err == nil {
		return u
	}
	return v
}
