// Package auth issues the session token handed to the client once voice
// sign-in succeeds. Tokens are HS256 JWTs carrying the user ID as subject
// and the display name.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

const issuer = "papo-onboarding"

var (
	// ErrNoSecret is returned by NewIssuer for an empty secret.
	ErrNoSecret = errors.New("auth: empty signing secret")

	// ErrInvalidToken is returned by Verify for any token it does not accept.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the token payload.
type Claims struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an issuer. ttl <= 0 selects [DefaultTTL].
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for userID and its expiry.
func (i *Issuer) Issue(userID, name, phone string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("auth: issue: empty user id")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Name:  name,
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token issued by [Issuer.Issue] and returns its claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
