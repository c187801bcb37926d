// Package spotify connects the service to a single Spotify account: the OAuth
// authorization-code flow, token persistence with refresh-on-expiry, and the
// handful of Web API calls the DM screen needs.
package spotify

import (
	"context"
	"errors"
	"time"
)

// DefaultUserID is the only token owner the application ever writes.
const DefaultUserID = "default"

var (
	// ErrNotAuthenticated is returned by every privileged call when no token
	// has been stored yet.
	ErrNotAuthenticated = errors.New("Not authenticated with Spotify")

	// ErrNotConfigured is returned when the OAuth application credentials are
	// missing from the configuration.
	ErrNotConfigured = errors.New("spotify integration is not configured")

	// ErrInvalidState is returned when the OAuth callback carries a state
	// parameter that was not issued by this process or has expired.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrTokenNotFound is returned by a TokenStore with no row for the user.
	ErrTokenNotFound = errors.New("spotify token not found")
)

// Token is a stored Spotify credential set.
type Token struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is no longer usable at now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// TokenStore persists Spotify credentials keyed by user id.
type TokenStore interface {
	// GetToken returns ErrTokenNotFound when no row exists.
	GetToken(ctx context.Context, userID string) (*Token, error)

	// SaveToken inserts or replaces the credentials of t.UserID.
	SaveToken(ctx context.Context, t *Token) error

	// UpdateAccessToken replaces the access token and expiry after a refresh.
	// An empty refreshToken keeps the stored one.
	UpdateAccessToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
}
