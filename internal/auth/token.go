// Package auth issues and verifies bearer tokens and authenticates users by
// password or Telegram login widget.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Proton-105/flowkat/pkg/config"
)

const defaultTokenTTL = 30 * 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims binds a token to a user.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService signs tokens with the active key and verifies them against every configured key.
type TokenService struct {
	keys       map[string][]byte
	signingKID string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenService builds a TokenService from config.
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("auth: no signing keys configured")
	}
	if _, ok := cfg.Keys[cfg.SigningKeyID]; !ok {
		return nil, fmt.Errorf("auth: signing key %q not configured", cfg.SigningKeyID)
	}

	keys := make(map[string][]byte, len(cfg.Keys))
	for kid, secret := range cfg.Keys {
		if secret == "" {
			return nil, fmt.Errorf("auth: key %q is empty", kid)
		}
		keys[kid] = []byte(secret)
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &TokenService{
		keys:       keys,
		signingKID: cfg.SigningKeyID,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// Issue returns a signed token for the user and its expiry.
func (s *TokenService) Issue(userID int64, email string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.signingKID

	signed, err := token.SignedString(s.keys[s.signingKID])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expires, nil
}

// Verify checks the signature against the key named in the kid header and rejects expired tokens.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, s.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenService) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	return key, nil
}
