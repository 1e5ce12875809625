package gateway

import (
	"sync"
	"time"
)

// liveness records the last sign of life per user
type liveness struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newLiveness() *liveness {
	return &liveness{seen: make(map[string]time.Time)}
}

func (l *liveness) touch(userId string, at time.Time) {
	l.mu.Lock()
	if at.After(l.seen[userId]) {
		l.seen[userId] = at
	}
	l.mu.Unlock()
}

// expired removes and returns users last seen before cutoff
func (l *liveness) expired(cutoff time.Time) map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out map[string]time.Time
	for userId, at := range l.seen {
		if at.Before(cutoff) {
			if out == nil {
				out = make(map[string]time.Time)
			}
			out[userId] = at
			delete(l.seen, userId)
		}
	}
	return out
}
