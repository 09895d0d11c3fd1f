// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/storefront/storefront/internal/auth"
)

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher whose expectations are
// asserted when the test ends.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockNotifier is a mock auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier whose expectations are asserted
// when the test ends.
func NewMockNotifier(t testingT) *MockNotifier {
	m := &MockNotifier{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) SendVerificationEmail(ctx context.Context, to, fullName, token string) error {
	return m.Called(ctx, to, fullName, token).Error(0)
}

func (m *MockNotifier) SendPasswordResetEmail(ctx context.Context, to, fullName, token string) error {
	return m.Called(ctx, to, fullName, token).Error(0)
}

func (m *MockNotifier) SendWelcomeEmail(ctx context.Context, to, fullName string) error {
	return m.Called(ctx, to, fullName).Error(0)
}

var (
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.Notifier       = (*MockNotifier)(nil)
)
