package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/models"
)

var (
	// ErrInvalidToken indicates a token failed signature, expiry, or shape
	// checks. Callers receive no finer detail than this.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenSuperseded indicates the presented refresh token is no longer
	// the one stored on the user record.
	ErrTokenSuperseded = errors.New("refresh token superseded")
)

// Kind selects which signing secret and TTL a token is minted with.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// TokenStore persists the single active refresh token on the user record.
type TokenStore interface {
	// SetRefreshToken overwrites the stored refresh token unconditionally.
	SetRefreshToken(ctx context.Context, userID, token string) error
	// SwapRefreshToken replaces the stored token only when it still equals
	// previous; it returns ErrTokenSuperseded otherwise.
	SwapRefreshToken(ctx context.Context, userID, previous, next string) error
	// ClearRefreshToken removes the stored refresh token.
	ClearRefreshToken(ctx context.Context, userID string) error
}

type claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the signed access/refresh token pair.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	store TokenStore

	// NowFunc allows tests to control token timestamps.
	NowFunc func() time.Time
}

// NewTokenService constructs a TokenService backed by the provided store.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, store TokenStore) *TokenService {
	if store == nil {
		panic("auth: token store must not be nil")
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		store:         store,
	}
}

// Issue mints a new access/refresh pair for the user and stores the refresh
// token on the user record, overwriting any prior session.
func (s *TokenService) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	tokens, err := s.mint(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := s.store.SetRefreshToken(ctx, userID, tokens.RefreshToken); err != nil {
		return models.SessionTokens{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return tokens, nil
}

// Rotate exchanges a previously issued refresh token for a new pair. The
// swap is conditional on the presented token still being the stored one, so
// concurrent rotations for the same user cannot both succeed.
func (s *TokenService) Rotate(ctx context.Context, userID, presented string) (models.SessionTokens, error) {
	tokens, err := s.mint(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := s.store.SwapRefreshToken(ctx, userID, presented, tokens.RefreshToken); err != nil {
		return models.SessionTokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return tokens, nil
}

// Revoke clears the stored refresh token, ending the user's session.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	return s.store.ClearRefreshToken(ctx, userID)
}

// Verify checks a token's signature, expiry, and kind, returning the user id
// it was minted for. Every failure mode collapses into ErrInvalidToken; the
// caller logs the wrapped detail server side.
func (s *TokenService) Verify(tokenString string, kind Kind) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secretFor(kind), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || c.Kind != kind {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(c.Subject) == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

func (s *TokenService) mint(userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := s.now()
	accessExpiry := now.Add(s.accessTTL)
	refreshExpiry := now.Add(s.refreshTTL)

	accessToken, err := s.sign(userID, KindAccess, now, accessExpiry)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := s.sign(userID, KindRefresh, now, refreshExpiry)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (s *TokenService) sign(userID string, kind Kind, issuedAt, expiresAt time.Time) (string, error) {
	// The jti makes every mint unique. Without it two tokens minted within
	// the same second are byte-identical, and rotation would swap a refresh
	// token onto itself, leaving the superseded token redeemable.
	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secretFor(kind))
}

func (s *TokenService) secretFor(kind Kind) []byte {
	if kind == KindRefresh {
		return s.refreshSecret
	}
	return s.accessSecret
}

func (s *TokenService) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
