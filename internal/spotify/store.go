package spotify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/dmflow/internal/tracing"
)

// InMemoryTokenStore implements TokenStore using an in-memory map.
// Thread-safe via RWMutex.
type InMemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewInMemoryTokenStore creates a new InMemoryTokenStore.
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]Token)}
}

// GetToken returns a copy of the stored token.
func (s *InMemoryTokenStore) GetToken(_ context.Context, userID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[userID]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &t, nil
}

// SaveToken upserts t, keeping the id and creation time of an existing row.
func (s *InMemoryTokenStore) SaveToken(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.tokens[t.UserID]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	} else {
		t.ID = uuid.NewString()
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tokens[t.UserID] = *t
	return nil
}

// UpdateAccessToken replaces the access token and expiry of an existing row.
func (s *InMemoryTokenStore) UpdateAccessToken(_ context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[userID]
	if !ok {
		return ErrTokenNotFound
	}
	t.AccessToken = accessToken
	if refreshToken != "" {
		t.RefreshToken = refreshToken
	}
	t.ExpiresAt = expiresAt
	t.UpdatedAt = time.Now()
	s.tokens[userID] = t
	return nil
}

// PostgresTokenStore implements TokenStore on the spotify_tokens table.
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore creates a new PostgresTokenStore.
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

// GetToken loads the row for userID.
func (s *PostgresTokenStore) GetToken(ctx context.Context, userID string) (_ *Token, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "spotify_tokens", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	t := &Token{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM spotify_tokens
		WHERE user_id = $1
	`, userID).Scan(&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spotify token: %w", err)
	}
	return t, nil
}

// SaveToken upserts on user_id.
func (s *PostgresTokenStore) SaveToken(ctx context.Context, t *Token) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "spotify_tokens", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO spotify_tokens (id, user_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token  = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at    = EXCLUDED.expires_at,
		    updated_at    = NOW()
		RETURNING id, created_at, updated_at
	`, uuid.NewString(), t.UserID, t.AccessToken, t.RefreshToken, t.ExpiresAt).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save spotify token: %w", err)
	}
	return nil
}

// UpdateAccessToken writes a refreshed access token.
func (s *PostgresTokenStore) UpdateAccessToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "spotify_tokens", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `
		UPDATE spotify_tokens
		SET access_token  = $2,
		    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
		    expires_at    = $4,
		    updated_at    = NOW()
		WHERE user_id = $1
	`, userID, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update spotify token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update spotify token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

var (
	_ TokenStore = (*InMemoryTokenStore)(nil)
	_ TokenStore = (*PostgresTokenStore)(nil)
)
