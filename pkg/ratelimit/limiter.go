// Package ratelimit enforces per-user request and token budgets over a
// sliding 60 second window, keyed by subscription tier.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTier is applied when a user's tier is unknown.
const DefaultTier = "free-tier"

const window = 60 * time.Second

// Limits caps requests per minute and tokens per minute for one tier.
type Limits struct {
	RPM int `json:"rpm"`
	TPM int `json:"tpm"`
}

// DefaultTiers returns the built-in tier table.
func DefaultTiers() map[string]Limits {
	return map[string]Limits{
		"free-tier": {RPM: 5, TPM: 100},
		"paid-tier": {RPM: 50, TPM: 1000},
	}
}

// LimitError reports a denied request with the observed and allowed
// counts, suitable for surfacing to the caller.
type LimitError struct {
	Kind    string // "rate" or "token"
	UserID  string
	Tier    string
	Current int
	Limit   int
}

func (e *LimitError) Error() string {
	if e.Kind == "token" {
		return fmt.Sprintf("Token limit exceeded for %s (tier: %s): %d/%d TPM", e.UserID, e.Tier, e.Current, e.Limit)
	}
	return fmt.Sprintf("Rate limit exceeded for %s (tier: %s): %d/%d RPM", e.UserID, e.Tier, e.Current, e.Limit)
}

type record struct {
	at     time.Time
	tokens int
}

// Limiter tracks per-user request records in memory. All methods are
// safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	tiers   map[string]Limits
	records map[string][]record
	now     func() time.Time
}

func NewLimiter(tiers map[string]Limits) *Limiter {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &Limiter{
		tiers:   tiers,
		records: make(map[string][]record),
		now:     time.Now,
	}
}

// SetTiers replaces the tier table, used on config reload. Recorded
// requests are kept.
func (l *Limiter) SetTiers(tiers map[string]Limits) {
	if len(tiers) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tiers = tiers
}

// Check admits or rejects one request for the user. On admission the
// request is recorded with its estimated token cost; rejections record
// nothing.
func (l *Limiter) Check(userID, tier string, estTokens int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	limits, ok := l.tiers[tier]
	if !ok {
		tier = DefaultTier
		limits = l.tiers[DefaultTier]
	}

	now := l.now()
	kept := l.records[userID][:0]
	for _, r := range l.records[userID] {
		if now.Sub(r.at) < window {
			kept = append(kept, r)
		}
	}
	l.records[userID] = kept

	recentTokens := 0
	for _, r := range kept {
		recentTokens += r.tokens
	}

	if len(kept) >= limits.RPM {
		return &LimitError{Kind: "rate", UserID: userID, Tier: tier, Current: len(kept), Limit: limits.RPM}
	}
	if recentTokens >= limits.TPM {
		return &LimitError{Kind: "token", UserID: userID, Tier: tier, Current: recentTokens, Limit: limits.TPM}
	}

	l.records[userID] = append(kept, record{at: now, tokens: estTokens})
	return nil
}
