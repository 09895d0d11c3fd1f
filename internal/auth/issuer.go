// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum HMAC secret length in bytes.
const MinSecretLength = 32

// Supported access token signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmHS384 = "HS384"
	AlgorithmHS512 = "HS512"
)

// AccessClaims are the claims carried by a signed access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Wrap(err)
	}
	return id, nil
}

// AccessToken is a signed, stateless access credential.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies access tokens and mints opaque tokens.
type TokenIssuer struct {
	secret    []byte
	method    *jwt.SigningMethodHMAC
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenIssuer creates a TokenIssuer from cfg. The secret, algorithm and
// access TTL are validated here so a misconfigured issuer never signs.
func NewTokenIssuer(cfg Config) (*TokenIssuer, error) {
	if len(cfg.JWTSecret) < MinSecretLength {
		return nil, oops.Code("ISSUER_INVALID_SECRET").
			With("min_length", MinSecretLength).
			Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	method, err := signingMethod(cfg.JWTAlgorithm)
	if err != nil {
		return nil, oops.Code("ISSUER_INVALID_ALGORITHM").With("algorithm", cfg.JWTAlgorithm).Wrap(err)
	}
	if cfg.AccessTTL <= 0 {
		return nil, oops.Code("ISSUER_INVALID_TTL").Errorf("access token TTL must be positive")
	}

	return &TokenIssuer{
		secret:    []byte(cfg.JWTSecret),
		method:    method,
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		now:       time.Now,
	}, nil
}

// signingMethod returns an uncoded error so callers choose the code.
func signingMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	switch alg {
	case "", AlgorithmHS256:
		return jwt.SigningMethodHS256, nil
	case AlgorithmHS384:
		return jwt.SigningMethodHS384, nil
	case AlgorithmHS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

// SetClock overrides the time source. Intended for tests.
func (i *TokenIssuer) SetClock(now func() time.Time) {
	i.now = now
}

// AccessTTL returns the lifetime of issued access tokens.
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccessToken signs a short-lived access token for user.
func (i *TokenIssuer) IssueAccessToken(user *User) (AccessToken, error) {
	now := i.now()
	expiresAt := now.Add(i.accessTTL)
	claims := AccessClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, oops.Code("ISSUER_SIGN_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ParseAccessToken verifies signature, algorithm, issuer and expiry.
// Every failure is reported as the generic invalid token error.
func (i *TokenIssuer) ParseAccessToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, errInvalidToken()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, errInvalidToken()
	}
	if _, err := claims.UserID(); err != nil {
		return nil, errInvalidToken()
	}
	return claims, nil
}

// NewOpaqueToken mints a random token of the given type owned by userID.
// The returned Token carries only the hash; the plaintext goes to the caller.
func (i *TokenIssuer) NewOpaqueToken(tokenType TokenType, userID ulid.ULID, ttl time.Duration) (*Token, string, error) {
	if ttl <= 0 {
		return nil, "", oops.Code("TOKEN_INVALID_EXPIRY").
			With("type", string(tokenType)).
			Errorf("token TTL must be positive")
	}

	plaintext, hash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, "", err
	}

	now := i.now()
	token, err := NewToken(userID, tokenType, hash, now.Add(ttl))
	if err != nil {
		return nil, "", err
	}
	token.CreatedAt = now
	token.UpdatedAt = now
	return token, plaintext, nil
}
