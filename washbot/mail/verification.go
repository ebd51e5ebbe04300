package mail

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	// MinResendInterval is the shortest allowed gap between two sends for
	// one session.
	MinResendInterval = 60 * time.Second

	// ResendWindow is the rolling window the per-session send budget
	// applies to.
	ResendWindow = 30 * time.Minute
)

var (
	// ErrResendTooSoon rejects a send less than MinResendInterval after the
	// previous successful one.
	ErrResendTooSoon = errors.New("mail: resend requested too soon")

	// ErrWindowExhausted rejects a send once the rolling window already
	// holds the configured maximum of attempts.
	ErrWindowExhausted = errors.New("mail: resend window exhausted")
)

// Verifier generates verification codes and meters how often they may be
// (re)sent. The attempt history itself lives in the conversation session so
// it survives restarts; Verifier only applies the policy to it.
type Verifier struct {
	maxPerWindow int
	now          func() time.Time
}

func NewVerifier(maxPerWindow int, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{maxPerWindow: maxPerWindow, now: now}
}

// GenerateCode returns a fresh 6-digit numeric code.
func (v *Verifier) GenerateCode() string {
	return fmt.Sprintf("%06d", rand.Intn(900000)+100000)
}

// Throttle prunes attempts outside the rolling window and decides whether a
// send is allowed right now. It returns the pruned history; on success the
// caller appends the new send time via Record after the email goes out, so a
// failed delivery never consumes budget.
func (v *Verifier) Throttle(attempts []time.Time) ([]time.Time, error) {
	now := v.now()

	pruned := attempts[:0:0]
	for _, t := range attempts {
		if now.Sub(t) < ResendWindow {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= v.maxPerWindow {
		return pruned, ErrWindowExhausted
	}
	if len(pruned) > 0 && now.Sub(pruned[len(pruned)-1]) < MinResendInterval {
		return pruned, ErrResendTooSoon
	}
	return pruned, nil
}

// Record appends a successful send to the history.
func (v *Verifier) Record(attempts []time.Time) []time.Time {
	return append(attempts, v.now())
}
