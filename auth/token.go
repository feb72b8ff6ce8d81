// Package auth is the relay's concrete identity provider: it resolves a
// connection-establishment credential (a signed JWT) to a stable numeric
// identity and its display name. Token issuance endpoints and credential
// verification against stored users live outside the relay.
package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChatClaims defines the structure of the data stored inside the JWT.
type ChatClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenProvider validates relay access tokens. The signing secret comes from
// configuration; in production it should be loaded from a secret manager.
type TokenProvider struct {
	secret   []byte
	duration time.Duration
}

func NewTokenProvider(secret string, duration time.Duration) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for a specific user. The relay itself
// never exposes issuance; this is for external issuers and tests.
func (p *TokenProvider) GenerateToken(userID int64, username string) (string, error) {
	expirationTime := time.Now().Add(p.duration)

	claims := &ChatClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-relay",
		},
	}

	// Create the token using the HS256 algorithm (HMAC with SHA256).
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// Resolve parses and validates a credential and returns the identity and
// display name it carries. Any parse, signature, or expiry problem collapses
// into ErrInvalidCredential: the connecting client only ever learns that the
// credential was rejected.
func (p *TokenProvider) Resolve(credential string) (domain.Identity, string, error) {
	token, err := jwt.ParseWithClaims(credential, &ChatClaims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil {
		return 0, "", errors.ErrInvalidCredential
	}

	claims, ok := token.Claims.(*ChatClaims)
	if !ok || !token.Valid || claims.UserID <= int64(domain.System) {
		return 0, "", errors.ErrInvalidCredential
	}

	identity := domain.Identity(claims.UserID)
	name := claims.Username
	if name == "" {
		name = identity.String()
	}
	return identity, name, nil
}
