// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront/storefront/pkg/errutil"
)

var tracer = otel.Tracer("storefront/auth")

// TokenTypeBearer is the token_type reported alongside access tokens.
const TokenTypeBearer = "Bearer"

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	FullName    string
	Email       string
	Password    string
	PhoneNumber string
}

// RegisterResult is returned by Register. No credentials are issued until
// the email address is verified.
type RegisterResult struct {
	User                      *User
	RequiresEmailVerification bool
}

// AuthResult carries a freshly issued credential pair.
type AuthResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	ExpiresAt time.Time
}

// Service orchestrates registration, login, token rotation, password
// recovery and email verification. Every operation runs in a single unit of
// work; notifications are sent after commit.
type Service struct {
	users    UserRepository
	tokens   TokenRepository
	tx       Transactor
	hasher   PasswordHasher
	issuer   *TokenIssuer
	notifier Notifier
	limiter  *SessionLimiter
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables operation metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for token validity checks and
// timestamps. The TokenIssuer keeps its own clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service. Returns an error if a dependency is nil
// or cfg is invalid.
func NewService(
	users UserRepository,
	tokens TokenRepository,
	tx Transactor,
	hasher PasswordHasher,
	issuer *TokenIssuer,
	notifier Notifier,
	cfg Config,
	opts ...ServiceOption,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		users:    users,
		tokens:   tokens,
		tx:       tx,
		hasher:   hasher,
		issuer:   issuer,
		notifier: notifier,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	limiter, err := NewSessionLimiter(tokens, tx, s.logger)
	if err != nil {
		return nil, err
	}
	limiter.now = s.now
	s.limiter = limiter

	return s, nil
}

// begin starts a span for operation. The returned func ends it, recording
// err on the span and in metrics.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("auth.error_kind", KindOf(err).String()))
		}
		s.metrics.record(operation, err)
		span.End()
	}
}

// Register creates an unverified customer account and emails a
// verification link. No credentials are returned.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *RegisterResult, err error) {
	ctx, end := s.begin(ctx, "register")
	defer func() { end(err) }()

	fullName, err := ValidateFullName(in.FullName)
	if err != nil {
		return nil, err
	}
	email, err := ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := ValidatePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password").Errorf("password cannot be empty")
	}

	if err := s.checkAvailable(ctx, email, phone); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(fullName, email, phone, hash)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now

	var verification string
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return mapUserConflict(err, "create user")
		}
		plaintext, err := s.createToken(ctx, TokenEmailVerification, user.ID, s.cfg.VerificationTTL)
		if err != nil {
			return oops.Code("AUTH_REGISTER_FAILED").With("operation", "create verification token").Wrap(err)
		}
		verification = plaintext
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	s.bestEffort(ctx, "send_verification_email", user,
		s.notifier.SendVerificationEmail(ctx, user.Email, user.FullName, verification))

	return &RegisterResult{User: user, RequiresEmailVerification: true}, nil
}

// checkAvailable rejects an email or phone number that is already in use.
// The unique constraints still guard against races between the check and
// the insert.
func (s *Service) checkAvailable(ctx context.Context, email, phone string) error {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return errEmailTaken()
	} else if !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_REGISTER_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if _, err := s.users.GetByPhone(ctx, phone); err == nil {
		return errPhoneTaken()
	} else if !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_REGISTER_FAILED").With("operation", "get user by phone").Wrap(err)
	}
	return nil
}

func mapUserConflict(err error, operation string) error {
	switch {
	case errors.Is(err, ErrEmailTaken):
		return errEmailTaken()
	case errors.Is(err, ErrPhoneTaken):
		return errPhoneTaken()
	default:
		return oops.Code("AUTH_REGISTER_FAILED").With("operation", operation).Wrap(err)
	}
}

// Login authenticates a verified, active user by email and password.
// Uses constant-time operations to prevent timing-based email enumeration.
func (s *Service) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, "login")
	defer func() { end(err) }()

	user, lookupErr := s.users.GetByEmail(ctx, NormalizeEmail(email))

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	targetHash := dummyPasswordHash
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, errInvalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	if !userExists || !valid || !user.IsActive {
		return nil, errInvalidCredentials()
	}
	if !user.CanAuthenticate() {
		return nil, oops.Code(CodeEmailNotVerified).Errorf("email not verified")
	}

	s.upgradeHash(ctx, user, password)

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		res, err := s.issueSession(ctx, user)
		if err != nil {
			return err
		}
		s.limiter.Limit(ctx, user.ID, s.cfg.MaxSessions)
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// upgradeHash re-hashes a legacy password hash. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash", "user_id", user.ID.String(), "error", err.Error())
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash", "user_id", user.ID.String(), "error", err.Error())
		return
	}
	user.PasswordHash = newHash
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new credential pair is issued in the same transaction.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, "refresh")
	defer func() { end(err) }()

	if refreshToken == "" {
		return nil, errInvalidToken()
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		token, user, err := s.redeem(ctx, refreshToken, TokenRefresh)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, token); err != nil {
			return err
		}
		res, err := s.issueSession(ctx, user)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Logout deactivates every active refresh token of userID. Idempotent.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, end := s.begin(ctx, "logout", attribute.String("user.id", userID.String()))
	defer func() { end(err) }()

	return s.tx.InTransaction(ctx, func(ctx context.Context) error {
		n, err := s.tokens.DeactivateByUser(ctx, userID, TokenRefresh, s.now())
		if err != nil {
			return oops.Code("AUTH_LOGOUT_FAILED").
				With("operation", "deactivate refresh tokens").
				With("user_id", userID.String()).
				Wrap(err)
		}
		s.logger.DebugContext(ctx, "user logged out", "user_id", userID.String(), "sessions", n)
		return nil
	})
}

// ForgotPassword emails a password reset link to an active user. It
// returns nil for unknown and inactive emails so the response cannot be
// used to enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, end := s.begin(ctx, "forgot_password")
	defer func() { end(err) }()

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if !user.IsActive {
		return nil
	}

	var reset string
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.tokens.DeactivateByUser(ctx, user.ID, TokenPasswordReset, s.now()); err != nil {
			return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
				With("operation", "deactivate reset tokens").
				Wrap(err)
		}
		plaintext, err := s.createToken(ctx, TokenPasswordReset, user.ID, s.cfg.ResetTTL)
		if err != nil {
			return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
				With("operation", "create reset token").
				Wrap(err)
		}
		reset = plaintext
		return nil
	})
	if err != nil {
		return err
	}

	s.bestEffort(ctx, "send_password_reset_email", user,
		s.notifier.SendPasswordResetEmail(ctx, user.Email, user.FullName, reset))
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// consumed and every active session of the user is revoked.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	ctx, end := s.begin(ctx, "reset_password")
	defer func() { end(err) }()

	if newPassword == "" {
		return oops.Code(CodeInvalidInput).With("field", "new_password").Errorf("new password cannot be empty")
	}
	if resetToken == "" {
		return errInvalidToken()
	}

	return s.tx.InTransaction(ctx, func(ctx context.Context) error {
		token, user, err := s.redeem(ctx, resetToken, TokenPasswordReset)
		if err != nil {
			return err
		}
		if err := s.consume(ctx, token); err != nil {
			return err
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
		}
		if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
		}
		if _, err := s.tokens.DeactivateByUser(ctx, user.ID, TokenRefresh, s.now()); err != nil {
			return oops.Code("AUTH_RESET_PASSWORD_FAILED").
				With("operation", "deactivate refresh tokens").
				Wrap(err)
		}
		s.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
		return nil
	})
}

// VerifyEmail marks the token owner's email verified and signs them in.
// Verification, token consumption and session creation commit together;
// the welcome email is sent afterwards.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, "verify_email")
	defer func() { end(err) }()

	if verificationToken == "" {
		return nil, errInvalidToken()
	}

	var user *User
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		token, owner, err := s.redeem(ctx, verificationToken, TokenEmailVerification)
		if err != nil {
			return err
		}
		if owner.IsEmailVerified {
			return errEmailAlreadyVerified()
		}
		if err := s.consume(ctx, token); err != nil {
			return err
		}

		owner.IsEmailVerified = true
		owner.UpdatedAt = s.now()
		if err := s.users.Update(ctx, owner); err != nil {
			return oops.Code("AUTH_VERIFY_EMAIL_FAILED").With("operation", "mark verified").Wrap(err)
		}

		res, err := s.issueSession(ctx, owner)
		if err != nil {
			return err
		}
		s.limiter.Limit(ctx, owner.ID, s.cfg.MaxSessions)
		result, user = res, owner
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bestEffort(ctx, "send_welcome_email", user,
		s.notifier.SendWelcomeEmail(ctx, user.Email, user.FullName))
	return result, nil
}

// ResendVerificationEmail replaces any outstanding verification token with
// a new one and emails it. Unlike the other notifications, a delivery
// failure is returned to the caller.
func (s *Service) ResendVerificationEmail(ctx context.Context, email string) (err error) {
	ctx, end := s.begin(ctx, "resend_verification")
	defer func() { end(err) }()

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errUserNotFound()
		}
		return oops.Code("AUTH_RESEND_VERIFICATION_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if !user.IsActive {
		return errUserNotFound()
	}
	if user.IsEmailVerified {
		return errEmailAlreadyVerified()
	}

	var verification string
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.tokens.DeactivateByUser(ctx, user.ID, TokenEmailVerification, s.now()); err != nil {
			return oops.Code("AUTH_RESEND_VERIFICATION_FAILED").
				With("operation", "deactivate verification tokens").
				Wrap(err)
		}
		plaintext, err := s.createToken(ctx, TokenEmailVerification, user.ID, s.cfg.VerificationTTL)
		if err != nil {
			return oops.Code("AUTH_RESEND_VERIFICATION_FAILED").
				With("operation", "create verification token").
				Wrap(err)
		}
		verification = plaintext
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerificationEmail(ctx, user.Email, user.FullName, verification); err != nil {
		return errNotificationFailed("send verification email", user, err)
	}
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one, and revokes every active session.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) (err error) {
	ctx, end := s.begin(ctx, "change_password", attribute.String("user.id", userID.String()))
	defer func() { end(err) }()

	if newPassword == "" {
		return oops.Code(CodeInvalidInput).With("field", "new_password").Errorf("new password cannot be empty")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errUserNotFound()
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	ok, err := user.ComparePassword(s.hasher, currentPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !ok {
		return oops.Code(CodeWrongPassword).Errorf("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	return s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
		}
		if _, err := s.tokens.DeactivateByUser(ctx, user.ID, TokenRefresh, s.now()); err != nil {
			return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
				With("operation", "deactivate refresh tokens").
				Wrap(err)
		}
		return nil
	})
}

// Authenticate verifies an access token and returns its claims.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (claims *AccessClaims, err error) {
	_, end := s.begin(ctx, "authenticate")
	defer func() { end(err) }()

	return s.issuer.ParseAccessToken(accessToken)
}

// redeem locks the active token matching plaintext and loads its owner.
// Unknown, expired, consumed and orphaned tokens, as well as tokens of
// inactive users, all produce the same invalid token error.
func (s *Service) redeem(ctx context.Context, plaintext string, tokenType TokenType) (*Token, *User, error) {
	token, err := s.tokens.GetActiveForUpdate(ctx, HashToken(plaintext), tokenType, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errInvalidToken()
		}
		return nil, nil, oops.Code("AUTH_TOKEN_LOOKUP_FAILED").
			With("type", string(tokenType)).
			Wrap(err)
	}
	if !token.IsUsableAt(s.now()) {
		return nil, nil, errInvalidToken()
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errInvalidToken()
		}
		return nil, nil, oops.Code("AUTH_TOKEN_LOOKUP_FAILED").
			With("operation", "get token owner").
			With("type", string(tokenType)).
			Wrap(err)
	}
	if !user.IsActive {
		return nil, nil, errInvalidToken()
	}
	return token, user, nil
}

// consume deactivates token. Losing a race to a concurrent consumer is
// reported as an invalid token.
func (s *Service) consume(ctx context.Context, token *Token) error {
	if err := s.tokens.Consume(ctx, token.ID, s.now()); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return errInvalidToken()
		}
		return oops.Code("AUTH_TOKEN_CONSUME_FAILED").
			With("token_id", token.ID.String()).
			With("type", string(token.Type)).
			Wrap(err)
	}
	return nil
}

// createToken mints and persists an opaque token, returning the plaintext.
func (s *Service) createToken(ctx context.Context, tokenType TokenType, userID ulid.ULID, ttl time.Duration) (string, error) {
	token, plaintext, err := s.issuer.NewOpaqueToken(tokenType, userID, ttl)
	if err != nil {
		return "", err
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", err
	}
	return plaintext, nil
}

// issueSession signs an access token and persists a new refresh token.
func (s *Service) issueSession(ctx context.Context, user *User) (*AuthResult, error) {
	access, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "issue access token").Wrap(err)
	}
	refresh, err := s.createToken(ctx, TokenRefresh, user.ID, s.cfg.RefreshTTL)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "create refresh token").Wrap(err)
	}
	return &AuthResult{
		User:         user,
		AccessToken:  access.Token,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.issuer.AccessTTL() / time.Second),
		ExpiresAt:    access.ExpiresAt,
	}, nil
}

// bestEffort logs a failed post-commit side effect. The committed result
// stands regardless.
func (s *Service) bestEffort(ctx context.Context, operation string, user *User, err error) {
	if err == nil {
		return
	}
	attrs := append([]any{"operation", operation, "user_id", user.ID.String()}, errutil.Attrs(err)...)
	s.logger.WarnContext(ctx, "best-effort notification failed", attrs...)
}
