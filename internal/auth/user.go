// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the authorization role of a user.
type Role string

// User roles.
const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Field length limits.
const (
	MaxFullNameLength = 100
	MaxEmailLength    = 254
)

// phoneRegex accepts an optional leading + followed by 7-15 digits (E.164 shape).
var phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// User is a storefront account.
type User struct {
	ID              ulid.ULID
	FullName        string
	Email           string
	PasswordHash    string
	PhoneNumber     string
	Role            Role
	IsActive        bool
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewUser creates a validated, active, unverified customer.
// Email is normalized with NormalizeEmail and the phone number with NormalizePhone.
func NewUser(fullName, email, phoneNumber, passwordHash string) (*User, error) {
	name, err := ValidateFullName(fullName)
	if err != nil {
		return nil, err
	}
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	phone, err := ValidatePhone(phoneNumber)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		FullName:     name,
		Email:        normalized,
		PasswordHash: passwordHash,
		PhoneNumber:  phone,
		Role:         RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateFullName trims name and checks its length.
func ValidateFullName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", oops.Code(CodeInvalidInput).With("field", "full_name").Errorf("full name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxFullNameLength {
		return "", oops.Code(CodeInvalidInput).
			With("field", "full_name").
			With("max", MaxFullNameLength).
			Errorf("full name must be at most %d characters", MaxFullNameLength)
	}
	return name, nil
}

// ValidatePhone normalizes phone and checks it against phoneRegex.
func ValidatePhone(phone string) (string, error) {
	normalized := NormalizePhone(phone)
	if !phoneRegex.MatchString(normalized) {
		return "", oops.Code(CodeInvalidInput).With("field", "phone_number").Errorf("phone number is invalid")
	}
	return normalized, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and checks that it is a bare address.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", oops.Code(CodeInvalidInput).With("field", "email").Errorf("email cannot be empty")
	}
	if len(normalized) > MaxEmailLength {
		return "", oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is too long")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is invalid")
	}
	return normalized, nil
}

// NormalizePhone strips spaces, dashes, dots and parentheses from a phone number.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// ComparePassword checks plaintext against the user's stored hash.
// It has no side effects; hashing is delegated to hasher.
func (u *User) ComparePassword(hasher PasswordHasher, plaintext string) (bool, error) {
	if plaintext == "" {
		return false, nil
	}
	return hasher.Verify(plaintext, u.PasswordHash)
}

// CanAuthenticate reports whether the account may receive credentials.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && u.IsEmailVerified
}

// UserRepository manages user persistence. Implementations must participate
// in the transaction carried by ctx, if any.
type UserRepository interface {
	// Create stores a new user. Returns an error wrapping ErrEmailTaken or
	// ErrPhoneTaken on a uniqueness violation.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByPhone retrieves a user by normalized phone number.
	GetByPhone(ctx context.Context, phone string) (*User, error)

	// Update persists mutable fields (name, phone, role, flags, hash).
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
