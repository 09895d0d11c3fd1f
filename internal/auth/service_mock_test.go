// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storefront/storefront/internal/auth"
	"github.com/storefront/storefront/internal/auth/authtest"
	"github.com/storefront/storefront/internal/auth/mocks"
	"github.com/storefront/storefront/pkg/errutil"
)

type mockDeps struct {
	users    *mocks.MockUserRepository
	tokens   *mocks.MockTokenRepository
	hasher   *mocks.MockPasswordHasher
	notifier *mocks.MockNotifier
	svc      *auth.Service
}

func newMockService(t *testing.T) *mockDeps {
	t.Helper()
	d := &mockDeps{
		users:    mocks.NewMockUserRepository(t),
		tokens:   mocks.NewMockTokenRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		notifier: mocks.NewMockNotifier(t),
	}
	issuer, err := auth.NewTokenIssuer(testConfig())
	require.NoError(t, err)
	svc, err := auth.NewService(d.users, d.tokens, authtest.InlineTransactor{}, d.hasher, issuer, d.notifier, testConfig())
	require.NoError(t, err)
	d.svc = svc
	return d
}

func TestService_Register_UniqueViolationRace(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		createEr error
		code     string
	}{
		{"email", oops.Code("USER_CREATE_FAILED").Wrap(auth.ErrEmailTaken), auth.CodeEmailTaken},
		{"phone", oops.Code("USER_CREATE_FAILED").Wrap(auth.ErrPhoneTaken), auth.CodePhoneTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMockService(t)
			d.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, auth.ErrNotFound)
			d.users.On("GetByPhone", mock.Anything, "+84901234567").Return(nil, auth.ErrNotFound)
			d.hasher.On("Hash", testPassword).Return("hashed", nil)
			d.users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(tt.createEr)

			_, err := d.svc.Register(ctx, auth.RegisterInput{
				FullName: "Ada", Email: "a@x.com", Password: testPassword, PhoneNumber: "+84901234567",
			})
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
			assert.Equal(t, auth.KindConflict, auth.KindOf(err))

			d.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			d.notifier.AssertNotCalled(t, "SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_Register_LookupFailure(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	d.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, assert.AnError)

	_, err := d.svc.Register(ctx, auth.RegisterInput{
		FullName: "Ada", Email: "a@x.com", Password: testPassword, PhoneNumber: "+84901234567",
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "get user by email")
	d.hasher.AssertNotCalled(t, "Hash", mock.Anything)
}

func TestService_Login_VerifiesDummyHashForUnknownUser(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)

	d.users.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, auth.ErrNotFound)
	d.hasher.On("Verify", testPassword, mock.MatchedBy(func(hash string) bool {
		return len(hash) > len("$argon2id$")
	})).Return(false, nil).Once()

	_, err := d.svc.Login(ctx, "nobody@x.com", testPassword)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
}

func TestService_Login_DummyHashErrorIsGeneric(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)

	d.users.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, auth.ErrNotFound)
	d.hasher.On("Verify", testPassword, mock.Anything).Return(false, assert.AnError)

	_, err := d.svc.Login(ctx, "nobody@x.com", testPassword)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
}

func TestService_Login_CorruptHashIsInternal(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	user := &auth.User{ID: ulid.Make(), Email: "a@x.com", PasswordHash: "garbage", IsActive: true, IsEmailVerified: true}

	d.users.On("GetByEmail", mock.Anything, "a@x.com").Return(user, nil)
	d.hasher.On("Verify", testPassword, "garbage").Return(false, assert.AnError)

	_, err := d.svc.Login(ctx, "a@x.com", testPassword)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
}

func TestService_Refresh_LostRace(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	user := &auth.User{ID: ulid.Make(), Email: "a@x.com", IsActive: true, IsEmailVerified: true}
	token := &auth.Token{
		ID:        ulid.Make(),
		UserID:    user.ID,
		Type:      auth.TokenRefresh,
		TokenHash: auth.HashToken("presented"),
		IsActive:  true,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	d.tokens.On("GetActiveForUpdate", mock.Anything, token.TokenHash, auth.TokenRefresh, mock.AnythingOfType("time.Time")).
		Return(token, nil)
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	d.tokens.On("Consume", mock.Anything, token.ID, mock.AnythingOfType("time.Time")).Return(auth.ErrTokenConsumed)

	_, err := d.svc.Refresh(ctx, "presented")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	d.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Refresh_ConsumeFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	user := &auth.User{ID: ulid.Make(), IsActive: true}
	token := &auth.Token{ID: ulid.Make(), UserID: user.ID, Type: auth.TokenRefresh, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}

	d.tokens.On("GetActiveForUpdate", mock.Anything, auth.HashToken("presented"), auth.TokenRefresh, mock.Anything).Return(token, nil)
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	d.tokens.On("Consume", mock.Anything, token.ID, mock.Anything).Return(assert.AnError)

	_, err := d.svc.Refresh(ctx, "presented")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_TOKEN_CONSUME_FAILED")
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	errutil.AssertNoSecret(t, err, "presented")
}

func TestService_ForgotPassword_LookupFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	d.users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, assert.AnError)

	err := d.svc.ForgotPassword(ctx, "a@x.com")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_FORGOT_PASSWORD_FAILED")
}

func TestService_ChangePassword_HashesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	d := newMockService(t)
	user := &auth.User{ID: ulid.Make(), PasswordHash: "old-hash", IsActive: true}

	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	d.hasher.On("Verify", "current", "old-hash").Return(true, nil)
	d.hasher.On("Hash", "next").Return("", assert.AnError)

	err := d.svc.ChangePassword(ctx, user.ID, "current", "next")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_CHANGE_PASSWORD_FAILED")
	d.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
	d.tokens.AssertNotCalled(t, "DeactivateByUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
