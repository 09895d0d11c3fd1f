// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository sentinels. Implementations wrap these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when a user with the same email already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrPhoneTaken is returned when a user with the same phone number already exists.
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrTokenConsumed is returned when a conditional token deactivation
	// matched no active row (it was consumed by a concurrent caller).
	ErrTokenConsumed = errors.New("token already consumed")
)

// Error codes surfaced by Service operations.
const (
	CodeEmailTaken           = "AUTH_EMAIL_TAKEN"
	CodePhoneTaken           = "AUTH_PHONE_TAKEN"
	CodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	CodeEmailNotVerified     = "AUTH_EMAIL_NOT_VERIFIED"
	CodeEmailAlreadyVerified = "AUTH_EMAIL_ALREADY_VERIFIED"
	CodeInvalidToken         = "AUTH_INVALID_TOKEN"
	CodeWrongPassword        = "AUTH_WRONG_PASSWORD"
	CodeUserNotFound         = "AUTH_USER_NOT_FOUND"
	CodeInvalidInput         = "AUTH_INVALID_INPUT"
	CodeNotificationFailed   = "AUTH_NOTIFICATION_FAILED"
	CodeEmptyPassword        = "AUTH_EMPTY_PASSWORD"
)

// Kind classifies an error for callers that translate failures into
// transport-level responses.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindConflict
	KindUnauthorized
	KindNotFound
	KindInvalid
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

var codeKinds = map[string]Kind{
	CodeEmailTaken:           KindConflict,
	CodePhoneTaken:           KindConflict,
	CodeInvalidCredentials:   KindUnauthorized,
	CodeEmailNotVerified:     KindUnauthorized,
	CodeEmailAlreadyVerified: KindUnauthorized,
	CodeInvalidToken:         KindUnauthorized,
	CodeWrongPassword:        KindUnauthorized,
	CodeUserNotFound:         KindNotFound,
	CodeInvalidInput:         KindInvalid,
	CodeEmptyPassword:        KindInvalid,
}

// KindOf returns the Kind of err. Errors without a recognized code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	if kind, found := codeKinds[code]; found {
		return kind
	}
	return KindInternal
}

// errInvalidToken is deliberately identical for unknown, expired and consumed
// tokens so the response cannot be used as an oracle.
func errInvalidToken() error {
	return oops.Code(CodeInvalidToken).Errorf("invalid or expired token")
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func errEmailTaken() error {
	return oops.Code(CodeEmailTaken).Errorf("email already registered")
}

func errPhoneTaken() error {
	return oops.Code(CodePhoneTaken).Errorf("phone number already registered")
}

// errNotificationFailed starts a new chain because oops reports the innermost
// code, which would otherwise be the transport's. The cause is kept as context.
func errNotificationFailed(operation string, user *User, cause error) error {
	b := oops.Code(CodeNotificationFailed).
		With("operation", operation).
		With("user_id", user.ID.String()).
		With("cause", cause.Error())
	if oopsErr, ok := oops.AsOops(cause); ok {
		if code, _ := oopsErr.Code().(string); code != "" {
			b = b.With("cause_code", code)
		}
	}
	return b.Errorf("notification could not be delivered")
}

func errEmailAlreadyVerified() error {
	return oops.Code(CodeEmailAlreadyVerified).Errorf("email already verified")
}

func errUserNotFound() error {
	return oops.Code(CodeUserNotFound).Errorf("user not found")
}
