// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package authtest provides in-memory implementations of the auth
// persistence, hashing and notification interfaces for tests.
package authtest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/storefront/storefront/internal/auth"
)

type txKey struct{}

// Store is an in-memory UserRepository, TokenRepository and Transactor.
// Top-level transactions are serialized; a failed transaction or nested
// unit of work restores the state captured when it began.
type Store struct {
	mu     sync.Mutex
	users  map[ulid.ULID]auth.User
	tokens map[ulid.ULID]auth.Token
	fail   map[string]error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:  make(map[ulid.ULID]auth.User),
		tokens: make(map[ulid.ULID]auth.Token),
		fail:   make(map[string]error),
	}
}

// FailOn makes every subsequent call to method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// InTransaction implements auth.Transactor.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		users, tokens := s.snapshot()
		if err := fn(ctx); err != nil {
			s.users, s.tokens = users, tokens
			return err
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	users, tokens := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.users, s.tokens = users, tokens
		return err
	}
	return nil
}

func (s *Store) snapshot() (map[ulid.ULID]auth.User, map[ulid.ULID]auth.Token) {
	users := make(map[ulid.ULID]auth.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	tokens := make(map[ulid.ULID]auth.Token, len(s.tokens))
	for k, v := range s.tokens {
		tokens[k] = v
	}
	return users, tokens
}

// enter takes the store lock unless ctx already carries a transaction,
// and reports the injected failure for method, if any.
func (s *Store) enter(ctx context.Context, method string) (func(), error) {
	release := func() {}
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		release = s.mu.Unlock
	}
	if err := s.fail[method]; err != nil {
		release()
		return nil, oops.With("method", method).Wrap(err)
	}
	return release, nil
}

// Create implements auth.UserRepository.
func (s *Store) Create(ctx context.Context, user *auth.User) error {
	release, err := s.enter(ctx, "Users.Create")
	if err != nil {
		return err
	}
	defer release()

	for _, u := range s.users {
		if u.Email == user.Email {
			return oops.With("email", user.Email).Wrap(auth.ErrEmailTaken)
		}
		if u.PhoneNumber == user.PhoneNumber {
			return oops.With("phone_number", user.PhoneNumber).Wrap(auth.ErrPhoneTaken)
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) findUser(match func(auth.User) bool) (*auth.User, error) {
	for _, u := range s.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetByID implements auth.UserRepository.
func (s *Store) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	release, err := s.enter(ctx, "Users.GetByID")
	if err != nil {
		return nil, err
	}
	defer release()
	return s.findUser(func(u auth.User) bool { return u.ID == id })
}

// GetByEmail implements auth.UserRepository.
func (s *Store) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	release, err := s.enter(ctx, "Users.GetByEmail")
	if err != nil {
		return nil, err
	}
	defer release()
	return s.findUser(func(u auth.User) bool { return u.Email == email })
}

// GetByPhone implements auth.UserRepository.
func (s *Store) GetByPhone(ctx context.Context, phone string) (*auth.User, error) {
	release, err := s.enter(ctx, "Users.GetByPhone")
	if err != nil {
		return nil, err
	}
	defer release()
	return s.findUser(func(u auth.User) bool { return u.PhoneNumber == phone })
}

// Update implements auth.UserRepository.
func (s *Store) Update(ctx context.Context, user *auth.User) error {
	release, err := s.enter(ctx, "Users.Update")
	if err != nil {
		return err
	}
	defer release()
	if _, ok := s.users[user.ID]; !ok {
		return auth.ErrNotFound
	}
	s.users[user.ID] = *user
	return nil
}

// UpdatePassword implements auth.UserRepository.
func (s *Store) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	release, err := s.enter(ctx, "Users.UpdatePassword")
	if err != nil {
		return err
	}
	defer release()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

// Users returns the store as an auth.UserRepository. Token methods live on
// a separate view because both repositories declare Create.
func (s *Store) Users() auth.UserRepository { return s }

// Tokens returns the store as an auth.TokenRepository.
func (s *Store) Tokens() auth.TokenRepository { return tokenStore{s} }

// AddUser inserts user directly, bypassing failure injection.
func (s *Store) AddUser(user *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
}

// User returns a copy of the stored user, or nil.
func (s *Store) User(id ulid.ULID) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return &u
}

// AddToken inserts token directly, bypassing failure injection.
func (s *Store) AddToken(token *auth.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = *token
}

// Token returns a copy of the stored token, or nil.
func (s *Store) Token(id ulid.ULID) *auth.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil
	}
	return &t
}

// TokensOf returns copies of every token of tokenType owned by userID,
// newest first.
func (s *Store) TokensOf(userID ulid.ULID, tokenType auth.TokenType) []*auth.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByUser(userID, tokenType, false)
}

// ActiveTokensOf is TokensOf restricted to active tokens.
func (s *Store) ActiveTokensOf(userID ulid.ULID, tokenType auth.TokenType) []*auth.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByUser(userID, tokenType, true)
}

// TokenCount returns the total number of stored tokens.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *Store) listByUser(userID ulid.ULID, tokenType auth.TokenType, activeOnly bool) []*auth.Token {
	var out []*auth.Token
	for _, t := range s.tokens {
		if t.UserID != userID || t.Type != tokenType || (activeOnly && !t.IsActive) {
			continue
		}
		found := t
		out = append(out, &found)
	}
	slices.SortFunc(out, func(a, b *auth.Token) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return b.ID.Compare(a.ID)
	})
	return out
}

// tokenStore adapts Store to auth.TokenRepository.
type tokenStore struct {
	s *Store
}

func (ts tokenStore) Create(ctx context.Context, token *auth.Token) error {
	release, err := ts.s.enter(ctx, "Tokens.Create")
	if err != nil {
		return err
	}
	defer release()
	ts.s.tokens[token.ID] = *token
	return nil
}

func (ts tokenStore) GetActiveForUpdate(ctx context.Context, tokenHash string, tokenType auth.TokenType, now time.Time) (*auth.Token, error) {
	release, err := ts.s.enter(ctx, "Tokens.GetActiveForUpdate")
	if err != nil {
		return nil, err
	}
	defer release()
	for _, t := range ts.s.tokens {
		if t.TokenHash == tokenHash && t.Type == tokenType && t.IsUsableAt(now) {
			found := t
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (ts tokenStore) Consume(ctx context.Context, id ulid.ULID, now time.Time) error {
	release, err := ts.s.enter(ctx, "Tokens.Consume")
	if err != nil {
		return err
	}
	defer release()
	t, ok := ts.s.tokens[id]
	if !ok || !t.IsActive {
		return auth.ErrTokenConsumed
	}
	t.IsActive = false
	t.UpdatedAt = now
	ts.s.tokens[id] = t
	return nil
}

func (ts tokenStore) DeactivateByUser(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType, now time.Time) (int64, error) {
	release, err := ts.s.enter(ctx, "Tokens.DeactivateByUser")
	if err != nil {
		return 0, err
	}
	defer release()
	var n int64
	for id, t := range ts.s.tokens {
		if t.UserID == userID && t.Type == tokenType && t.IsActive {
			t.IsActive = false
			t.UpdatedAt = now
			ts.s.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (ts tokenStore) ListActiveByUser(ctx context.Context, userID ulid.ULID, tokenType auth.TokenType) ([]*auth.Token, error) {
	release, err := ts.s.enter(ctx, "Tokens.ListActiveByUser")
	if err != nil {
		return nil, err
	}
	defer release()
	return ts.s.listByUser(userID, tokenType, true), nil
}

func (ts tokenStore) DeactivateIDs(ctx context.Context, ids []ulid.ULID, now time.Time) (int64, error) {
	release, err := ts.s.enter(ctx, "Tokens.DeactivateIDs")
	if err != nil {
		return 0, err
	}
	defer release()
	var n int64
	for _, id := range ids {
		t, ok := ts.s.tokens[id]
		if !ok || !t.IsActive {
			continue
		}
		t.IsActive = false
		t.UpdatedAt = now
		ts.s.tokens[id] = t
		n++
	}
	return n, nil
}

func (ts tokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	release, err := ts.s.enter(ctx, "Tokens.DeleteExpired")
	if err != nil {
		return 0, err
	}
	defer release()
	var n int64
	for id, t := range ts.s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(ts.s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (ts tokenStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	release, err := ts.s.enter(ctx, "Tokens.DeleteInactiveBefore")
	if err != nil {
		return 0, err
	}
	defer release()
	var n int64
	for id, t := range ts.s.tokens {
		if !t.IsActive && t.UpdatedAt.Before(cutoff) {
			delete(ts.s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Verify interfaces are satisfied.
var (
	_ auth.UserRepository  = (*Store)(nil)
	_ auth.TokenRepository = tokenStore{}
	_ auth.Transactor      = (*Store)(nil)
)
