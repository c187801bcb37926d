package spotify

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateExpiry bounds how long a user may sit on the Spotify consent screen.
const StateExpiry = 10 * time.Minute

const stateAudience = "spotify-oauth"

// StateSigner issues and verifies the OAuth state parameter as a short-lived
// HS256 token so the callback can reject forged or replayed redirects
// without server-side session storage.
type StateSigner struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewStateSigner creates a StateSigner. An empty secret is replaced by 32
// random bytes, so states only verify within the issuing process.
func NewStateSigner(secret string) (*StateSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate state secret: %w", err)
		}
	}
	return &StateSigner{secret: key, leeway: 30 * time.Second, now: time.Now}, nil
}

// Issue returns a new signed state.
func (s *StateSigner) Issue() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StateExpiry)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns ErrInvalidState unless state was issued by s and is unexpired.
func (s *StateSigner) Verify(state string) error {
	if state == "" {
		return ErrInvalidState
	}
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithLeeway(s.leeway),
		jwt.WithAudience(stateAudience),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
