package management

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeyInfo describes the account behind an API key.
type KeyInfo struct {
	KeyID     string    `json:"key_id"`
	Plan      string    `json:"plan"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionToken is a short-lived JWT issued in exchange for the API key,
// used by browser and dashboard integrations that must not hold the key.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
}

// VerifyKey checks the configured API key against the control plane and
// returns its metadata.
func (c *Client) VerifyKey(ctx context.Context) (*KeyInfo, error) {
	var info KeyInfo
	if err := c.get(ctx, "/api/v1/auth/verify", &info); err != nil {
		return nil, fmt.Errorf("verify key: %w", err)
	}
	return &info, nil
}

// IssueToken exchanges the API key for a session JWT. The expiry is read
// from the token's own exp claim (without signature verification — the
// control plane signed it, we only schedule the refresh) so clients can
// renew before it lapses.
func (c *Client) IssueToken(ctx context.Context) (*SessionToken, error) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "POST", "/api/v1/auth/token", nil, &payload); err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("issue token: empty token in response")
	}

	expiry, err := tokenExpiry(payload.Token)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &SessionToken{Token: payload.Token, ExpiresAt: expiry}, nil
}

func tokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
