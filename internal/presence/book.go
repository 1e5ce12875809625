package presence

import (
	"sync"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// View is what a reader knows about one user
type View struct {
	State entity.PresenceState
	Known bool // a state was ever recorded
	Stale bool // the local connection is down, State may be outdated
}

// Book keeps the last known presence per user. Writes are last-write-wins
// keyed by user id; users are independent of each other.
type Book struct {
	mu     sync.RWMutex
	states map[string]entity.PresenceState
	stale  bool
}

// NewBook creates an empty Book
func NewBook() *Book {
	return &Book{states: make(map[string]entity.PresenceState)}
}

// Apply records a state. A state whose LastActiveAt is older than the one
// already held is dropped. It reports whether the book changed.
func (b *Book) Apply(s entity.PresenceState) bool {
	if s.UserId == "" || !s.Status.Valid() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.states[s.UserId]; ok {
		if s.LastActiveAt < cur.LastActiveAt {
			return false
		}
		if cur == s {
			return false
		}
	}
	b.states[s.UserId] = s
	return true
}

// Get returns the view of one user
func (b *Book) Get(userId string) View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.states[userId]
	return View{State: s, Known: ok, Stale: b.stale}
}

// MarkStale flags every entry as unknown while the connection is down.
// Entries keep their last status; nothing is downgraded to offline.
func (b *Book) MarkStale(stale bool) {
	b.mu.Lock()
	b.stale = stale
	b.mu.Unlock()
}

// Stale reports whether the book is in the unknown period
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Snapshot returns every recorded state
func (b *Book) Snapshot() []entity.PresenceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]entity.PresenceState, 0, len(b.states))
	for _, s := range b.states {
		out = append(out, s)
	}
	return out
}
