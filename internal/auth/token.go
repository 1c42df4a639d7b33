// ABOUTME: HS256 bearer tokens scoped to the agentbus issuer
// ABOUTME: Verify enforces issuer and expiry; Generate mints operator and test tokens

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is stamped into every token this bus mints. Verification
// rejects tokens minted for any other system, even ones signed with the
// same secret.
const tokenIssuer = "agentbus"

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier authenticates one bearer token and yields the client
// identity the connection acts as.
type TokenVerifier interface {
	Verify(tokenString string) (clientID string, err error)
}

// JWTVerifier validates HS256 tokens carrying the bus issuer claim.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier bound to the given signing secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify validates the token and extracts the client ID from the "sub"
// claim. Signature, issuer, and expiry are all enforced by the parser.
func (v *JWTVerifier) Verify(tokenString string) (clientID string, err error) {
	var claims jwt.RegisteredClaims
	_, err = v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// Generate creates a bus token for the given client ID with expiration.
func (v *JWTVerifier) Generate(clientID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
