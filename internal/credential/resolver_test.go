package credential

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/domain"
)

func TestToken_ConfiguredWins(t *testing.T) {
	r := New(Config{SessionToken: "abc", BrowserStore: true}, zap.NewNop())
	got, err := r.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected configured token, got %q", got)
	}
}

func TestToken_NoSources(t *testing.T) {
	r := New(Config{}, zap.NewNop())
	_, err := r.Token(context.Background())
	if !errors.Is(err, domain.ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
}

func TestUserID(t *testing.T) {
	cases := []struct {
		token string
		want  string
	}{
		{"user_123::eyJhbGci", "user_123"},
		{"user_123%3A%3AeyJhbGci", "user_123"},
		{"user_123%253A%253AeyJhbGci", "user_123"},
		{"", ""},
		{"nodelimiter", ""},
	}
	for _, c := range cases {
		if got := UserID(c.token); got != c.want {
			t.Errorf("UserID(%q) = %q, want %q", c.token, got, c.want)
		}
	}
}
