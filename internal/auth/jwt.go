// Package auth issues the signed tokens that carry an anonymous voter identity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

const issuer = "livepoll"

// VoterClaims identifies one anonymous voter.
type VoterClaims struct {
	VoterID string `json:"voter_id"`
	jwt.RegisteredClaims
}

// VoterTokens signs and validates voter identity tokens.
type VoterTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewVoterTokens creates a token service. ttl bounds how long a browser keeps its identity.
func NewVoterTokens(secret string, ttl time.Duration) *VoterTokens {
	return &VoterTokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token for a new random voter ID.
func (s *VoterTokens) Issue() (voterID, token string, err error) {
	voterID = uuid.NewString()
	token, err = s.Sign(voterID)
	return voterID, token, err
}

// Sign creates a token for voterID.
func (s *VoterTokens) Sign(voterID string) (string, error) {
	now := s.now()
	claims := VoterClaims{
		VoterID: voterID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   voterID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a token, returning the voter ID.
func (s *VoterTokens) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &VoterClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*VoterClaims)
	if !ok || !token.Valid || claims.VoterID == "" {
		return "", ErrInvalidToken
	}
	return claims.VoterID, nil
}

// TTL returns the token lifetime.
func (s *VoterTokens) TTL() time.Duration {
	return s.ttl
}
