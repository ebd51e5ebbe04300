package handlers

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiters meters free-text input per user so a spamming chat cannot
// flood the inventory store with reads. Button presses and slash commands
// already go through Discord's own interaction throttling.
type userLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	newLimit func() *rate.Limiter
}

func newUserLimiters(r rate.Limit, burst int) *userLimiters {
	return &userLimiters{
		limiters: make(map[string]*rate.Limiter),
		newLimit: func() *rate.Limiter { return rate.NewLimiter(r, burst) },
	}
}

func (l *userLimiters) allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = l.newLimit()
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
