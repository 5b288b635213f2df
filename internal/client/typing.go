package client

import (
	"sync"
	"time"
)

// DefaultTypingTTL bounds how long a typing indicator survives without an
// explicit stop event.
const DefaultTypingTTL = 6 * time.Second

// TypingSet holds the transient "currently typing" user ids for one room.
// Nothing persists: entries clear on an explicit stop or on TTL expiry,
// whichever comes first.
type TypingSet struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[int]time.Time
	clock func() time.Time
}

func NewTypingSet(ttl time.Duration) *TypingSet {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingSet{ttl: ttl, seen: make(map[int]time.Time), clock: time.Now}
}

// Start records (or refreshes) a typist.
func (t *TypingSet) Start(userID int) {
	t.mu.Lock()
	t.seen[userID] = t.clock()
	t.mu.Unlock()
}

// Stop clears a typist immediately.
func (t *TypingSet) Stop(userID int) {
	t.mu.Lock()
	delete(t.seen, userID)
	t.mu.Unlock()
}

// Active returns the user ids still inside the TTL window, pruning the rest.
func (t *TypingSet) Active() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	ids := make([]int, 0, len(t.seen))
	for id, at := range t.seen {
		if now.Sub(at) > t.ttl {
			delete(t.seen, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
