// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// ThrottleConfig limits how often one recipient can be emailed.
type ThrottleConfig struct {
	Every time.Duration // one message per Every once the burst is spent
	Burst int
	// IdleTTL drops limiters for recipients not seen for this long.
	IdleTTL time.Duration
}

// DefaultThrottleConfig allows a burst of three, then one per minute.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{Every: time.Minute, Burst: 3, IdleTTL: time.Hour}
}

type recipientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ThrottleSender rejects messages to a recipient that exceeded its rate.
// Limiters are keyed by the lower-cased address.
type ThrottleSender struct {
	next Sender
	cfg  ThrottleConfig
	now  func() time.Time

	mu        sync.Mutex
	limiters  map[string]*recipientLimiter
	lastPrune time.Time
}

// NewThrottleSender wraps next.
func NewThrottleSender(next Sender, cfg ThrottleConfig) *ThrottleSender {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultThrottleConfig().IdleTTL
	}
	return &ThrottleSender{
		next:     next,
		cfg:      cfg,
		now:      time.Now,
		limiters: make(map[string]*recipientLimiter),
	}
}

// Send forwards msg unless its recipient is over the limit.
func (s *ThrottleSender) Send(ctx context.Context, msg Message) error {
	if !s.allow(strings.ToLower(msg.To)) {
		return oops.Code("NOTIFY_THROTTLED").
			With("kind", string(msg.Kind)).
			Wrap(permanent(ErrThrottled))
	}
	return s.next.Send(ctx, msg)
}

// ErrThrottled is returned when a recipient exceeded its message rate.
var ErrThrottled = errors.New("too many messages to recipient")

func (s *ThrottleSender) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	entry, ok := s.limiters[key]
	if !ok {
		entry = &recipientLimiter{limiter: rate.NewLimiter(rate.Every(s.cfg.Every), s.cfg.Burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// prune drops idle limiters at most once per IdleTTL. Caller holds mu.
func (s *ThrottleSender) prune(now time.Time) {
	if now.Sub(s.lastPrune) < s.cfg.IdleTTL {
		return
	}
	s.lastPrune = now
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) >= s.cfg.IdleTTL {
			delete(s.limiters, key)
		}
	}
}

// tracked reports the number of recipients with a live limiter.
func (s *ThrottleSender) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
