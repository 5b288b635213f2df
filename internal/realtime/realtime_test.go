package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport records everything written to it, in write order.
type fakeTransport struct {
	mu     sync.Mutex
	wrote  []interface{}
	closed bool
}

func (f *fakeTransport) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wrote = append(f.wrote, v)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) received() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.wrote...)
}

func waitForCount(t *testing.T, f *fakeTransport, n int) []interface{} {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.received()) >= n
	}, time.Second, 5*time.Millisecond)
	return f.received()
}

func TestConnectionSend(t *testing.T) {
	t.Run("delivers payloads in order", func(t *testing.T) {
		ft := &fakeTransport{}
		conn := NewConnection(1, "ana", ft)
		defer conn.Close()

		require.NoError(t, conn.Send("a"))
		require.NoError(t, conn.Send("b"))
		require.NoError(t, conn.Send("c"))

		got := waitForCount(t, ft, 3)
		require.Equal(t, []interface{}{"a", "b", "c"}, got)
	})

	t.Run("send after close fails", func(t *testing.T) {
		ft := &fakeTransport{}
		conn := NewConnection(1, "ana", ft)
		conn.Close()

		require.ErrorIs(t, conn.Send("x"), ErrConnClosed)
		require.True(t, conn.Closed())
	})
}

func TestRoomsBroadcast(t *testing.T) {
	t.Run("every subscriber receives exactly one event per message in order", func(t *testing.T) {
		rooms := NewRooms(nil)
		ftA, ftB := &fakeTransport{}, &fakeTransport{}
		a := NewConnection(1, "ana", ftA)
		b := NewConnection(2, "bo", ftB)
		defer a.Close()
		defer b.Close()

		rooms.Join(a, ChannelRoom("general"))
		rooms.Join(b, ChannelRoom("general"))

		rooms.Broadcast(ChannelRoom("general"), "m1", "")
		rooms.Broadcast(ChannelRoom("general"), "m2", "")

		require.Equal(t, []interface{}{"m1", "m2"}, waitForCount(t, ftA, 2))
		require.Equal(t, []interface{}{"m1", "m2"}, waitForCount(t, ftB, 2))
	})

	t.Run("excluded connection is skipped", func(t *testing.T) {
		rooms := NewRooms(nil)
		ftA, ftB := &fakeTransport{}, &fakeTransport{}
		a := NewConnection(1, "ana", ftA)
		b := NewConnection(2, "bo", ftB)
		defer a.Close()
		defer b.Close()

		rooms.Join(a, ChannelRoom("general"))
		rooms.Join(b, ChannelRoom("general"))

		rooms.Broadcast(ChannelRoom("general"), "m1", a.ID)

		require.Equal(t, []interface{}{"m1"}, waitForCount(t, ftB, 1))
		time.Sleep(20 * time.Millisecond)
		require.Empty(t, ftA.received())
	})

	t.Run("leave stops delivery", func(t *testing.T) {
		rooms := NewRooms(nil)
		ft := &fakeTransport{}
		c := NewConnection(1, "ana", ft)
		defer c.Close()

		rooms.Join(c, ChannelRoom("general"))
		rooms.Leave(c, ChannelRoom("general"))
		rooms.Broadcast(ChannelRoom("general"), "m1", "")

		time.Sleep(20 * time.Millisecond)
		require.Empty(t, ft.received())
		require.Empty(t, rooms.SubscribersOf(ChannelRoom("general")))
	})

	t.Run("join racing a last-member leave is never lost", func(t *testing.T) {
		rooms := NewRooms(nil)
		for i := 0; i < 500; i++ {
			stayer := NewConnection(1, "ana", &fakeTransport{})
			leaver := NewConnection(2, "bo", &fakeTransport{})
			rooms.Join(leaver, ChannelRoom("busy"))

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				rooms.Leave(leaver, ChannelRoom("busy"))
			}()
			go func() {
				defer wg.Done()
				rooms.Join(stayer, ChannelRoom("busy"))
			}()
			wg.Wait()

			require.True(t, rooms.IsUserSubscribed(1, ChannelRoom("busy")),
				"subscription lost on iteration %d", i)
			rooms.Leave(stayer, ChannelRoom("busy"))
			stayer.Close()
			leaver.Close()
		}
	})

	t.Run("IsUserSubscribed sees any of the user's connections", func(t *testing.T) {
		rooms := NewRooms(nil)
		c1 := NewConnection(7, "kim", &fakeTransport{})
		c2 := NewConnection(7, "kim", &fakeTransport{})
		defer c1.Close()
		defer c2.Close()

		rooms.Join(c2, ConversationRoom("c-1"))

		require.True(t, rooms.IsUserSubscribed(7, ConversationRoom("c-1")))
		require.False(t, rooms.IsUserSubscribed(8, ConversationRoom("c-1")))

		rooms.Leave(c2, ConversationRoom("c-1"))
		require.False(t, rooms.IsUserSubscribed(7, ConversationRoom("c-1")))
	})
}

func TestRegistry(t *testing.T) {
	t.Run("first and last connection transitions", func(t *testing.T) {
		rooms := NewRooms(nil)
		reg := NewRegistry(rooms, nil)

		c1 := NewConnection(1, "ana", &fakeTransport{})
		c2 := NewConnection(1, "ana", &fakeTransport{})

		require.True(t, reg.Register(c1))
		require.False(t, reg.Register(c2))
		require.True(t, reg.IsUserOnline(1))
		require.Equal(t, 2, reg.CountFor(1))

		_, last := reg.Unregister(c1.ID)
		require.False(t, last)

		userID, last := reg.Unregister(c2.ID)
		require.True(t, last)
		require.Equal(t, 1, userID)
		require.False(t, reg.IsUserOnline(1))
	})

	t.Run("registration implies user room membership", func(t *testing.T) {
		rooms := NewRooms(nil)
		reg := NewRegistry(rooms, nil)

		ft := &fakeTransport{}
		c := NewConnection(3, "kit", ft)
		reg.Register(c)

		rooms.SendToUser(3, "hello")
		require.Equal(t, []interface{}{"hello"}, waitForCount(t, ft, 1))

		reg.Unregister(c.ID)
		require.Empty(t, rooms.SubscribersOf(UserRoom(3)))
	})

	t.Run("unregister of unknown id is a no-op", func(t *testing.T) {
		reg := NewRegistry(NewRooms(nil), nil)
		userID, last := reg.Unregister("missing")
		require.Zero(t, userID)
		require.False(t, last)
	})

	t.Run("connections for user", func(t *testing.T) {
		rooms := NewRooms(nil)
		reg := NewRegistry(rooms, nil)

		c1 := NewConnection(5, "pat", &fakeTransport{})
		c2 := NewConnection(5, "pat", &fakeTransport{})
		c3 := NewConnection(6, "lou", &fakeTransport{})
		reg.Register(c1)
		reg.Register(c2)
		reg.Register(c3)

		require.Len(t, reg.ConnectionsFor(5), 2)
		require.Len(t, reg.ConnectionsFor(6), 1)
		require.Empty(t, reg.ConnectionsFor(9))
	})
}

func TestSplitRoom(t *testing.T) {
	for _, tc := range []struct {
		roomID string
		kind   string
		key    string
	}{
		{ChannelRoom("abc"), KindChannel, "abc"},
		{ConversationRoom("c-1"), KindConversation, "c-1"},
		{UserRoom(42), KindUser, "42"},
	} {
		kind, key := SplitRoom(tc.roomID)
		require.Equal(t, tc.kind, kind)
		require.Equal(t, tc.key, key)
	}
}
