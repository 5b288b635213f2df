// Package presence maintains per-user online/offline state derived from
// connection lifecycle and foreground/background transitions.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulse-backend/internal/models"
	"pulse-backend/internal/realtime"
)

// DefaultOfflineDebounce absorbs app backgrounding quickly followed by
// foregrounding: the offline transition only fires if no connection for the
// user appears within the window.
const DefaultOfflineDebounce = 10 * time.Second

// Store persists PresenceRecords so last-seen survives restarts. Writes are
// best-effort; the in-memory state is authoritative while the process lives.
type Store interface {
	Save(ctx context.Context, rec models.PresenceRecord) error
	Load(ctx context.Context, userID int) (*models.PresenceRecord, error)
}

// OnlineChecker reports whether the user still holds any live connection.
// The connection registry satisfies it.
type OnlineChecker interface {
	IsUserOnline(userID int) bool
}

// Tracker owns online state and the debounced offline transition. Presence
// events go to the affected user's own room, so any open conversation or
// profile view showing that user updates regardless of friendship status.
type Tracker struct {
	rooms    *realtime.Rooms
	store    Store
	conns    OnlineChecker
	debounce time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	online map[int]bool
	timers map[int]*time.Timer
}

func NewTracker(rooms *realtime.Rooms, store Store, conns OnlineChecker, debounce time.Duration, log *zap.Logger) *Tracker {
	if debounce <= 0 {
		debounce = DefaultOfflineDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		rooms:    rooms,
		store:    store,
		conns:    conns,
		debounce: debounce,
		log:      log,
		online:   make(map[int]bool),
		timers:   make(map[int]*time.Timer),
	}
}

// SetOnline marks the user online. Any pending offline timer for the user is
// cancelled, so a reconnect inside the debounce window is invisible to
// observers. Idempotent: a user already online produces no event.
func (t *Tracker) SetOnline(userID int) {
	t.mu.Lock()
	if timer := t.timers[userID]; timer != nil {
		timer.Stop()
		delete(t.timers, userID)
	}
	already := t.online[userID]
	t.online[userID] = true
	t.mu.Unlock()

	if already {
		return
	}
	t.transition(userID, true)
}

// SetOffline arms the per-user debounce timer. The offline transition fires
// only once the window elapses without a new connection.
func (t *Tracker) SetOffline(userID int) {
	t.mu.Lock()
	if !t.online[userID] {
		t.mu.Unlock()
		return
	}
	if timer := t.timers[userID]; timer != nil {
		timer.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.debounce, func() { t.confirmOffline(userID) })
	t.mu.Unlock()
}

// SetOfflineNow skips the debounce, for explicit logouts.
func (t *Tracker) SetOfflineNow(userID int) {
	t.confirmOffline(userID)
}

func (t *Tracker) confirmOffline(userID int) {
	t.mu.Lock()
	if timer := t.timers[userID]; timer != nil {
		timer.Stop()
		delete(t.timers, userID)
	}
	t.mu.Unlock()

	// A backgrounded device can report offline over REST while another
	// device still holds a live connection; offline only fires once the
	// connection count is actually zero.
	if t.conns != nil && t.conns.IsUserOnline(userID) {
		return
	}

	t.mu.Lock()
	if !t.online[userID] {
		t.mu.Unlock()
		return
	}
	delete(t.online, userID)
	t.mu.Unlock()

	t.transition(userID, false)
}

// IsOnline reports the tracker's view of the user.
func (t *Tracker) IsOnline(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[userID]
}

// Heartbeat is the REST fallback path, used when the transport is torn down
// for background execution but the process can still make one call. Updates
// arriving via either path are de-duplicated: no state change, no event.
func (t *Tracker) Heartbeat(userID int, isOnline bool) {
	if isOnline {
		t.SetOnline(userID)
		return
	}
	t.SetOffline(userID)
}

func (t *Tracker) transition(userID int, online bool) {
	now := time.Now()
	if t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := t.store.Save(ctx, models.PresenceRecord{UserID: userID, Online: online, LastSeen: now})
		cancel()
		if err != nil {
			t.log.Warn("presence record save failed", zap.Int("user_id", userID), zap.Error(err))
		}
	}

	t.rooms.SendToUser(userID, models.ServerEvent{
		Event:    models.EvUserStatus,
		UserID:   userID,
		IsOnline: &online,
		LastSeen: now.UnixMilli(),
	})
	t.log.Debug("presence transition", zap.Int("user_id", userID), zap.Bool("online", online))
}

// LastSeen reads the persisted record, for profile views of offline users.
func (t *Tracker) LastSeen(ctx context.Context, userID int) (*models.PresenceRecord, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.Load(ctx, userID)
}
