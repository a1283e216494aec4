package command

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	pruneThreshold = 500
	maxIdle        = 10 * time.Minute
)

type userEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserLimiter hands out a token bucket per chat user and prunes idle users inline.
type UserLimiter struct {
	mu    sync.Mutex
	users map[string]*userEntry
	r     rate.Limit
	b     int
	now   func() time.Time
}

func NewUserLimiter(perSecond float64, burst int) *UserLimiter {
	return &UserLimiter{
		users: make(map[string]*userEntry),
		r:     rate.Limit(perSecond),
		b:     burst,
		now:   time.Now,
	}
}

// Allow spends one token for user.
func (l *UserLimiter) Allow(user string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.users) > pruneThreshold {
		cutoff := now.Add(-maxIdle)
		for k, e := range l.users {
			if e.lastSeen.Before(cutoff) {
				delete(l.users, k)
			}
		}
	}
	e, ok := l.users[user]
	if !ok {
		e = &userEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.users[user] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
