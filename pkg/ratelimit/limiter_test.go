package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	clock := start
	l := NewLimiter(nil)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestRequestLimitPerWindow(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user123", "free-tier", 10))
	}

	err := l.Check("user123", "free-tier", 10)
	require.Error(t, err)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "rate", limitErr.Kind)
	assert.Equal(t, 5, limitErr.Current)
}

func TestTokenLimitPerWindow(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	// 4 requests at 30 tokens each stays under the 5 RPM cap but
	// crosses 100 TPM.
	require.NoError(t, l.Check("user123", "free-tier", 30))
	require.NoError(t, l.Check("user123", "free-tier", 30))
	require.NoError(t, l.Check("user123", "free-tier", 30))
	require.NoError(t, l.Check("user123", "free-tier", 30))

	err := l.Check("user123", "free-tier", 30)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "token", limitErr.Kind)
	assert.Equal(t, 120, limitErr.Current)
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user123", "free-tier", 10))
	}
	require.Error(t, l.Check("user123", "free-tier", 10))

	*clock = clock.Add(61 * time.Second)
	assert.NoError(t, l.Check("user123", "free-tier", 10))
}

func TestRejectionRecordsNothing(t *testing.T) {
	l, clock := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user123", "free-tier", 10))
	}
	for i := 0; i < 10; i++ {
		require.Error(t, l.Check("user123", "free-tier", 10))
	}

	// Rejections must not extend the backlog past the original window.
	*clock = clock.Add(61 * time.Second)
	assert.NoError(t, l.Check("user123", "free-tier", 10))
}

func TestUsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user123", "free-tier", 10))
	}
	require.Error(t, l.Check("user123", "free-tier", 10))
	assert.NoError(t, l.Check("user456", "free-tier", 10))
}

func TestUnknownTierFallsBackToFree(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user123", "platinum-tier", 10))
	}
	err := l.Check("user123", "platinum-tier", 10)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, DefaultTier, limitErr.Tier)
	assert.Equal(t, 5, limitErr.Limit)
}

func TestPaidTierGetsHigherBudget(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 0; i < 50; i++ {
		require.NoError(t, l.Check("user456", "paid-tier", 10))
	}
	require.Error(t, l.Check("user456", "paid-tier", 10))
}

func TestSetTiersReload(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	l.SetTiers(map[string]Limits{
		"free-tier": {RPM: 1, TPM: 100},
	})
	require.NoError(t, l.Check("user123", "free-tier", 10))
	require.Error(t, l.Check("user123", "free-tier", 10))
}
