package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulse-backend/internal/models"
	"pulse-backend/internal/realtime"
)

type captureTransport struct {
	mu    sync.Mutex
	wrote []models.ServerEvent
}

func (c *captureTransport) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := v.(models.ServerEvent); ok {
		c.wrote = append(c.wrote, ev)
	}
	return nil
}

func (c *captureTransport) Close() error { return nil }

func (c *captureTransport) events() []models.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ServerEvent(nil), c.wrote...)
}

type memStore struct {
	mu   sync.Mutex
	recs map[int]models.PresenceRecord
}

func newMemStore() *memStore { return &memStore{recs: make(map[int]models.PresenceRecord)} }

func (s *memStore) Save(_ context.Context, rec models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.UserID] = rec
	return nil
}

func (s *memStore) Load(_ context.Context, userID int) (*models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[userID]; ok {
		return &rec, nil
	}
	return nil, nil
}

type stubChecker struct {
	mu     sync.Mutex
	online bool
}

func (s *stubChecker) IsUserOnline(int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *stubChecker) set(v bool) {
	s.mu.Lock()
	s.online = v
	s.mu.Unlock()
}

// watch subscribes a second user's connection to userID's presence room so
// transitions are observable from outside.
func watch(rooms *realtime.Rooms, userID int) *captureTransport {
	ct := &captureTransport{}
	observer := realtime.NewConnection(999, "observer", ct)
	rooms.Join(observer, realtime.UserRoom(userID))
	return ct
}

func statusEvents(ct *captureTransport) []models.ServerEvent {
	var out []models.ServerEvent
	for _, ev := range ct.events() {
		if ev.Event == models.EvUserStatus {
			out = append(out, ev)
		}
	}
	return out
}

func TestTrackerTransitions(t *testing.T) {
	t.Run("online then confirmed offline emits one event each", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		tr := NewTracker(rooms, nil, nil, 30*time.Millisecond, nil)
		ct := watch(rooms, 1)

		tr.SetOnline(1)
		require.True(t, tr.IsOnline(1))

		tr.SetOffline(1)
		require.Eventually(t, func() bool { return !tr.IsOnline(1) }, time.Second, 5*time.Millisecond)

		require.Eventually(t, func() bool { return len(statusEvents(ct)) == 2 }, time.Second, 5*time.Millisecond)
		evs := statusEvents(ct)
		require.NotNil(t, evs[0].IsOnline)
		require.True(t, *evs[0].IsOnline)
		require.NotNil(t, evs[1].IsOnline)
		require.False(t, *evs[1].IsOnline)
	})

	t.Run("reconnect inside the debounce window cancels the offline event", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		tr := NewTracker(rooms, nil, nil, 50*time.Millisecond, nil)
		ct := watch(rooms, 2)

		tr.SetOnline(2)
		tr.SetOffline(2)
		tr.SetOnline(2) // back before the window elapses

		time.Sleep(120 * time.Millisecond)
		require.True(t, tr.IsOnline(2))
		require.Len(t, statusEvents(ct), 1) // only the initial online
	})

	t.Run("repeated online updates are de-duplicated", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		tr := NewTracker(rooms, nil, nil, 30*time.Millisecond, nil)
		ct := watch(rooms, 3)

		tr.SetOnline(3)
		tr.SetOnline(3)
		tr.Heartbeat(3, true)

		time.Sleep(30 * time.Millisecond)
		require.Len(t, statusEvents(ct), 1)
	})

	t.Run("offline for a user never seen online is a no-op", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		tr := NewTracker(rooms, nil, nil, 10*time.Millisecond, nil)
		ct := watch(rooms, 4)

		tr.SetOffline(4)
		time.Sleep(50 * time.Millisecond)
		require.Empty(t, statusEvents(ct))
	})

	t.Run("heartbeat offline is ignored while another device holds a connection", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		live := &stubChecker{online: true}
		tr := NewTracker(rooms, nil, live, 20*time.Millisecond, nil)
		ct := watch(rooms, 6)

		tr.SetOnline(6)
		tr.Heartbeat(6, false) // one backgrounded device reports out

		time.Sleep(80 * time.Millisecond)
		require.True(t, tr.IsOnline(6))
		require.Len(t, statusEvents(ct), 1) // the online event only

		live.set(false) // last connection gone
		tr.SetOffline(6)
		require.Eventually(t, func() bool { return !tr.IsOnline(6) }, time.Second, 5*time.Millisecond)
		require.Eventually(t, func() bool { return len(statusEvents(ct)) == 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("immediate offline skips the debounce", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		tr := NewTracker(rooms, nil, nil, time.Hour, nil)

		tr.SetOnline(5)
		tr.SetOfflineNow(5)
		require.False(t, tr.IsOnline(5))
	})
}

func TestTrackerStore(t *testing.T) {
	t.Run("transitions persist last seen", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		store := newMemStore()
		tr := NewTracker(rooms, store, nil, 10*time.Millisecond, nil)

		tr.SetOnline(9)
		rec, err := tr.LastSeen(context.Background(), 9)
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.True(t, rec.Online)

		tr.SetOffline(9)
		require.Eventually(t, func() bool {
			rec, err := tr.LastSeen(context.Background(), 9)
			return err == nil && rec != nil && !rec.Online
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("last seen without a store is nil", func(t *testing.T) {
		tr := NewTracker(realtime.NewRooms(nil), nil, nil, 0, nil)
		rec, err := tr.LastSeen(context.Background(), 1)
		require.NoError(t, err)
		require.Nil(t, rec)
	})
}
