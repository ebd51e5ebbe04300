package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	v := NewVerifier(2, nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := v.GenerateCode()
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "code %q not numeric", code)
		}
		seen[code] = true
	}
	// 50 draws from 900000 values colliding into one would be miraculous.
	assert.Greater(t, len(seen), 1)
}

func TestThrottleFirstSendAllowed(t *testing.T) {
	v := NewVerifier(2, nil)
	pruned, err := v.Throttle(nil)
	assert.NoError(t, err)
	assert.Empty(t, pruned)
}

func TestThrottleMinInterval(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(2, func() time.Time { return now })

	attempts := []time.Time{now.Add(-30 * time.Second)}
	_, err := v.Throttle(attempts)
	assert.ErrorIs(t, err, ErrResendTooSoon)

	attempts = []time.Time{now.Add(-MinResendInterval)}
	_, err = v.Throttle(attempts)
	assert.NoError(t, err)
}

func TestThrottleWindowExhausted(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(2, func() time.Time { return now })

	attempts := []time.Time{
		now.Add(-20 * time.Minute),
		now.Add(-5 * time.Minute),
	}
	_, err := v.Throttle(attempts)
	assert.ErrorIs(t, err, ErrWindowExhausted)
}

func TestThrottlePrunesOldAttempts(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(2, func() time.Time { return now })

	attempts := []time.Time{
		now.Add(-2 * time.Hour),  // outside the window, dropped
		now.Add(-31 * time.Minute),
		now.Add(-25 * time.Minute),
	}
	pruned, err := v.Throttle(attempts)
	assert.NoError(t, err)
	assert.Equal(t, []time.Time{now.Add(-25 * time.Minute)}, pruned)
}

func TestThrottleWindowSlides(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	now := base
	v := NewVerifier(2, func() time.Time { return now })

	var attempts []time.Time

	// Two sends back to back (a minute apart) use up the budget.
	pruned, err := v.Throttle(attempts)
	require.NoError(t, err)
	attempts = v.Record(pruned)

	now = base.Add(time.Minute)
	pruned, err = v.Throttle(attempts)
	require.NoError(t, err)
	attempts = v.Record(pruned)

	now = base.Add(2 * time.Minute)
	_, err = v.Throttle(attempts)
	assert.ErrorIs(t, err, ErrWindowExhausted)

	// Half an hour after the first send, one attempt has aged out.
	now = base.Add(ResendWindow + time.Second)
	pruned, err = v.Throttle(attempts)
	assert.NoError(t, err)
	assert.Len(t, pruned, 1)
}

func TestRecordAppendsNow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(2, func() time.Time { return now })

	attempts := v.Record(nil)
	require.Len(t, attempts, 1)
	assert.Equal(t, now, attempts[0])
}
