// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package mocks provides testify mocks of the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/storefront/storefront/internal/auth"
)

// testingT is the subset of *testing.T the constructors need.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository whose expectations are
// asserted when the test ends.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phone string) (*auth.User, error) {
	args := m.Called(ctx, phone)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// MockTokenRepository is a mock auth.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

// NewMockTokenRepository creates a MockTokenRepository whose expectations
// are asserted when the test ends.
func NewMockTokenRepository(t testingT) *MockTokenRepository {
	m := &MockTokenRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenRepository) Create(ctx context.Context, token *auth.Token) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockTokenRepository) GetActiveForUpdate(ctx context.Context, tokenHash string, tokenType auth.TokenType, now time.Time) (*auth.Token, error) {
	args := m.Called(ctx, tokenHash, tokenType, now)
	token, _ := args.Get(0).(*auth.Token)
	return token, args.Error(1)
}

func (m *MockTokenRepository) Consume(ctx context.Context, id ulid.ULID, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

func (m *MockTokenRepository) DeactivateByUser(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType, now time.Time) (int64, error) {
	args := m.Called(ctx, userID, tokenType, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenRepository) ListActiveByUser(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType) ([]*auth.Token, error) {
	args := m.Called(ctx, userID, tokenType)
	tokens, _ := args.Get(0).([]*auth.Token)
	return tokens, args.Error(1)
}

func (m *MockTokenRepository) DeactivateIDs(ctx context.Context, ids []ulid.ULID, now time.Time) (int64, error) {
	args := m.Called(ctx, ids, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

var (
	_ auth.UserRepository  = (*MockUserRepository)(nil)
	_ auth.TokenRepository = (*MockTokenRepository)(nil)
)
