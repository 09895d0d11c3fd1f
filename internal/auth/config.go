// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Default lifetimes and limits.
const (
	DefaultAccessTTL       = 60 * time.Minute
	DefaultRefreshTTL      = 7 * 24 * time.Hour
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
	DefaultMaxSessions     = 5
	DefaultIssuer          = "storefront"
)

// Config holds credential lifetimes and signing settings for Service.
type Config struct {
	JWTSecret       string
	JWTAlgorithm    string
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	// MaxSessions caps active refresh tokens per user. Zero or less disables the cap.
	MaxSessions int
}

// DefaultConfig returns a Config with default lifetimes. JWTSecret is left
// empty and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWTAlgorithm:    AlgorithmHS256,
		Issuer:          DefaultIssuer,
		AccessTTL:       DefaultAccessTTL,
		RefreshTTL:      DefaultRefreshTTL,
		VerificationTTL: DefaultVerificationTTL,
		ResetTTL:        DefaultResetTTL,
		MaxSessions:     DefaultMaxSessions,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if len(c.JWTSecret) < MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("field", "jwt_secret").
			Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if _, err := signingMethod(c.JWTAlgorithm); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("field", "jwt_algorithm").
			With("algorithm", c.JWTAlgorithm).
			Wrap(err)
	}
	ttls := []struct {
		field string
		value time.Duration
	}{
		{"access_ttl", c.AccessTTL},
		{"refresh_ttl", c.RefreshTTL},
		{"verification_ttl", c.VerificationTTL},
		{"reset_ttl", c.ResetTTL},
	}
	for _, ttl := range ttls {
		if ttl.value <= 0 {
			return oops.Code("CONFIG_INVALID").
				With("field", ttl.field).
				Errorf("%s must be positive, got %s", ttl.field, ttl.value)
		}
	}
	return nil
}
