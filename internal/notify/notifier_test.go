package notify

import (
	"context"
	"encoding/json"
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

type stubOnline struct{ online map[int]bool }

func (s stubOnline) IsUserOnline(userID int) bool { return s.online[userID] }

type recordEnqueuer struct {
	mu    sync.Mutex
	tasks []PushPayload
}

func (r *recordEnqueuer) Enqueue(_ context.Context, taskType string, payload []byte) error {
	var p PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, p)
	return nil
}

func (r *recordEnqueuer) pushed() []PushPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PushPayload(nil), r.tasks...)
}

// connectUser registers a user-room subscription the way the registry does on
// connect, so notification events to that user are observable.
func connectUser(rooms *realtime.Rooms, userID int) (*realtime.Connection, *captureTransport) {
	ct := &captureTransport{}
	conn := realtime.NewConnection(userID, "u", ct)
	rooms.Join(conn, realtime.UserRoom(userID))
	return conn, ct
}

func channelMsg(id int, channelID string, senderID int, content string) *models.Message {
	return &models.Message{ID: id, ChannelID: channelID, UserID: senderID, Username: "sender", Content: &content}
}

func TestChannelNotifications(t *testing.T) {
	t.Run("subscriber in the room is suppressed, absent member is notified", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		online := stubOnline{online: map[int]bool{2: true, 3: true}}
		n := New(rooms, online, nil, nil, nil, nil)

		// user 2 has the channel open, user 3 does not
		inRoom, inRoomCT := connectUser(rooms, 2)
		rooms.Join(inRoom, realtime.ChannelRoom("general"))
		_, awayCT := connectUser(rooms, 3)

		n.ChannelMessage(channelMsg(1, "general", 1, "hello"), []int{2, 3})

		require.Eventually(t, func() bool { return len(awayCT.events()) == 1 }, time.Second, 5*time.Millisecond)
		ev := awayCT.events()[0]
		require.Equal(t, models.EvMessageNotify, ev.Event)
		require.NotNil(t, ev.Notification)
		require.Equal(t, "sender", ev.Notification.Title)
		require.Equal(t, "hello", ev.Notification.Body)
		require.Equal(t, 1, ev.Notification.SenderID)
		require.Equal(t, 1, ev.Notification.UnreadCount)

		time.Sleep(20 * time.Millisecond)
		require.Empty(t, inRoomCT.events())
	})

	t.Run("unread count grows per undelivered message and resets on read", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		online := stubOnline{online: map[int]bool{3: true}}
		n := New(rooms, online, nil, nil, nil, nil)
		_, ct := connectUser(rooms, 3)

		n.ChannelMessage(channelMsg(1, "general", 1, "one"), []int{3})
		n.ChannelMessage(channelMsg(2, "general", 1, "two"), []int{3})

		require.Eventually(t, func() bool { return len(ct.events()) == 2 }, time.Second, 5*time.Millisecond)
		require.Equal(t, 1, ct.events()[0].Notification.UnreadCount)
		require.Equal(t, 2, ct.events()[1].Notification.UnreadCount)
		require.Equal(t, 2, n.UnreadCount(3, realtime.ChannelRoom("general")))

		n.MarkRead(3, realtime.ChannelRoom("general"), time.Now())
		require.Equal(t, 0, n.UnreadCount(3, realtime.ChannelRoom("general")))
	})

	t.Run("offline recipient gets a push task instead of a room event", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		online := stubOnline{online: map[int]bool{}}
		enq := &recordEnqueuer{}
		n := New(rooms, online, nil, nil, enq, nil)

		n.ChannelMessage(channelMsg(1, "general", 1, "ping"), []int{4})

		pushed := enq.pushed()
		require.Len(t, pushed, 1)
		require.Equal(t, 4, pushed[0].UserID)
		require.Equal(t, "ping", pushed[0].Body)
		require.Equal(t, realtime.ChannelRoom("general"), pushed[0].RoomID)
	})
}

func TestDirectNotifications(t *testing.T) {
	dm := func(content string) *models.DirectMessage {
		return &models.DirectMessage{ID: 1, ConversationID: "c-1", SenderID: 1, SenderName: "ana", Content: &content}
	}

	t.Run("recipient away from the conversation is notified", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		online := stubOnline{online: map[int]bool{2: true}}
		n := New(rooms, online, nil, nil, nil, nil)
		_, ct := connectUser(rooms, 2)

		n.DirectMessage(dm("hey"), 2)

		require.Eventually(t, func() bool { return len(ct.events()) == 1 }, time.Second, 5*time.Millisecond)
		ev := ct.events()[0]
		require.Equal(t, models.EvDMNotify, ev.Event)
		require.Equal(t, "c-1", ev.ConversationID)
		require.Equal(t, "ana", ev.Notification.Title)
	})

	t.Run("recipient viewing the conversation is suppressed", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		online := stubOnline{online: map[int]bool{2: true}}
		n := New(rooms, online, nil, nil, nil, nil)
		conn, ct := connectUser(rooms, 2)
		rooms.Join(conn, realtime.ConversationRoom("c-1"))

		n.DirectMessage(dm("hey"), 2)

		time.Sleep(20 * time.Millisecond)
		require.Empty(t, ct.events())
		require.Equal(t, 0, n.UnreadCount(2, realtime.ConversationRoom("c-1")))
	})
}

type stubMarkers struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func (s *stubMarkers) Get(_ context.Context, userID int, roomID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks[roomID], nil
}

func (s *stubMarkers) Set(_ context.Context, userID int, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marks == nil {
		s.marks = make(map[string]time.Time)
	}
	s.marks[roomID] = at
	return nil
}

type stubCounters struct{ channel, conv int }

func (s stubCounters) CountChannel(context.Context, string, int, time.Time) (int, error) {
	return s.channel, nil
}

func (s stubCounters) CountConversation(context.Context, string, int, time.Time) (int, error) {
	return s.conv, nil
}

func TestUnreadDerivation(t *testing.T) {
	t.Run("cold cache is derived from the store", func(t *testing.T) {
		n := New(realtime.NewRooms(nil), nil, &stubMarkers{}, stubCounters{channel: 7}, nil, nil)
		require.Equal(t, 7, n.UnreadCount(1, realtime.ChannelRoom("general")))
	})

	t.Run("cold bump includes at least the triggering message", func(t *testing.T) {
		rooms := realtime.NewRooms(nil)
		n := New(rooms, stubOnline{}, &stubMarkers{}, stubCounters{channel: 0}, nil, nil)

		// recipient offline and no enqueuer; only the counter moves
		n.ChannelMessage(channelMsg(1, "general", 9, "x"), []int{5})
		require.Equal(t, 1, n.UnreadCount(5, realtime.ChannelRoom("general")))
	})

	t.Run("warm counter wins over the store", func(t *testing.T) {
		n := New(realtime.NewRooms(nil), nil, &stubMarkers{}, stubCounters{channel: 9}, nil, nil)
		n.MarkRead(1, realtime.ChannelRoom("general"), time.Now())
		require.Equal(t, 0, n.UnreadCount(1, realtime.ChannelRoom("general")))
	})
}
