// Package auth mints and verifies the user-realm bearer tokens and
// performs the OAuth code exchange for first login.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of a user access token: sub, email, name,
// exp.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	jwt.RegisteredClaims
}

// TokenTTL is the fixed user-token lifetime ("7-day expiry").
const TokenTTL = 7 * 24 * time.Hour

// TokenManager mints and verifies RS384-signed user access tokens.
type TokenManager struct {
	encodingKey *rsa.PrivateKey
	decodingKey *rsa.PublicKey
}

// NewTokenManager parses PEM-encoded RSA keys and returns a TokenManager.
// encodingPEM is required for minting (the Dispatcher API); decodingPEM
// alone is sufficient for verification-only callers.
func NewTokenManager(encodingPEM, decodingPEM []byte) (*TokenManager, error) {
	tm := &TokenManager{}
	if len(encodingPEM) > 0 {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(encodingPEM)
		if err != nil {
			return nil, fmt.Errorf("auth: parse encoding key: %w", err)
		}
		tm.encodingKey = key
	}
	if len(decodingPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(decodingPEM)
		if err != nil {
			return nil, fmt.Errorf("auth: parse decoding key: %w", err)
		}
		tm.decodingKey = key
	}
	return tm, nil
}

// Mint signs a new access token for the given user.
func (tm *TokenManager) Mint(userID, email, name string) (string, error) {
	if tm.encodingKey == nil {
		return "", fmt.Errorf("auth: no encoding key configured")
	}
	now := time.Now()
	claims := Claims{
		Subject: userID,
		Email:   email,
		Name:    name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS384, claims)
	return token.SignedString(tm.encodingKey)
}

// DecodeResult distinguishes why a token failed to verify: a malformed or
// wrong-secret token is a decode error, while an expired token still
// carries its claims through Expired so callers can report which user's
// token lapsed.
type DecodeResult struct {
	Claims  Claims
	Expired bool
}

// ErrTokenMalformed is returned for signature/shape failures distinct from
// expiry.
var ErrTokenMalformed = fmt.Errorf("auth: token invalid")

// Decode verifies and parses a user access token.
func (tm *TokenManager) Decode(raw string) (DecodeResult, error) {
	if tm.decodingKey == nil {
		return DecodeResult{}, fmt.Errorf("auth: no decoding key configured")
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return tm.decodingKey, nil
	}, jwt.WithValidMethods([]string{"RS384"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return DecodeResult{Claims: claims, Expired: true}, nil
		}
		return DecodeResult{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid {
		return DecodeResult{}, ErrTokenMalformed
	}
	return DecodeResult{Claims: claims}, nil
}
