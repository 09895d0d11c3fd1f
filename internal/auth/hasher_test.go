// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/storefront/storefront/internal/auth"
	"github.com/storefront/storefront/pkg/errutil"
)

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"), hash)
	assert.NotContains(t, hash, testPassword)

	again, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "each hash uses a fresh salt")

	_, err = hasher.Hash("")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeEmptyPassword)
	assert.Equal(t, auth.KindInvalid, auth.KindOf(err))
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := auth.NewArgon2idHasher()
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	ok, err := hasher.Verify(testPassword, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("p@ssw0rd1", hash)
	require.NoError(t, err)
	assert.False(t, ok, "passwords are case sensitive")
}

func TestArgon2idHasher_VerifyMalformed(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	tests := []struct {
		name    string
		hash    string
		message string
	}{
		{"not a PHC string", "not-a-valid-hash", "invalid hash format"},
		{"argon2i instead of argon2id", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"bad version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"bad parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA", ""},
		{"bad key encoding", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!", ""},
		{"threads overflow uint8", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
		{"truncated bcrypt", "$2a$10$short", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify(testPassword, tt.hash)
			require.Error(t, err)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestArgon2idHasher_LegacyBcrypt(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	imported, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	legacy := string(imported)

	current, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	assert.True(t, hasher.NeedsUpgrade(legacy))
	assert.False(t, hasher.NeedsUpgrade(current))

	ok, err := hasher.Verify(testPassword, legacy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong", legacy)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, prefix := range []string{"$2b$", "$2y$"} {
		variant := prefix + strings.TrimPrefix(legacy, "$2a$")
		ok, err := hasher.Verify(testPassword, variant)
		require.NoError(t, err, prefix)
		assert.True(t, ok, prefix)
	}
}
