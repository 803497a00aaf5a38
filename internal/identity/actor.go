package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin may act on behalf of any account, for example to fund wallets.
const RoleAdmin = "admin"

// ActorClaims are the JWT claims of an actor token. The subject is the
// farmer, buyer or account id the bearer acts as.
type ActorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Actor returns the acting identity.
func (c *ActorClaims) Actor() string { return c.Subject }

// IsAdmin reports whether the token carries the admin role.
func (c *ActorClaims) IsAdmin() bool { return c.Role == RoleAdmin }

// ActorTokens issues and verifies HS256 actor tokens with a shared secret.
// Issuing happens out of band (cropctl actor-token); the server only verifies.
type ActorTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewActorTokens creates an ActorTokens. ttl defaults to 24 hours.
func NewActorTokens(secret, issuer string, ttl time.Duration) (*ActorTokens, error) {
	if len(secret) < 32 {
		return nil, errors.New("actor token secret must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &ActorTokens{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed token for actor. role may be empty.
func (a *ActorTokens) Issue(actor, role string) (string, error) {
	if actor == "" {
		return "", errors.New("actor is required")
	}
	now := time.Now().UTC()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.New().String(),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign actor token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an actor token, returning its claims.
func (a *ActorTokens) Verify(tokenStr string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&ActorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("verify actor token: %w", err)
	}
	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid actor token claims")
	}
	return claims, nil
}
