// Package notify decides, for each delivered message and recipient, whether
// the recipient is actively viewing the relevant room (suppress, state
// already updated by the room broadcast) or not (emit a discrete
// notification event and bump the unread counter). Offline recipients
// additionally get a push task handed to the external sink boundary.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulse-backend/internal/models"
	"pulse-backend/internal/queue"
	"pulse-backend/internal/realtime"
)

// OnlineChecker is satisfied by the connection registry.
type OnlineChecker interface {
	IsUserOnline(userID int) bool
}

// MarkerStore persists last-read watermarks.
type MarkerStore interface {
	Get(ctx context.Context, userID int, roomID string) (time.Time, error)
	Set(ctx context.Context, userID int, roomID string, at time.Time) error
}

// Counters derives unread counts from the durable store when the in-memory
// cache is cold (fresh process, first touch of a room).
type Counters interface {
	CountChannel(ctx context.Context, channelID string, viewerID int, since time.Time) (int, error)
	CountConversation(ctx context.Context, conversationID string, viewerID int, since time.Time) (int, error)
}

// PushPayload is the task body handed to the push worker for offline
// recipients. Delivery to OS notification centers happens beyond that
// boundary and is not this subsystem's concern.
type PushPayload struct {
	UserID int    `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	RoomID string `json:"room_id"`
}

type counterKey struct {
	userID int
	roomID string
}

// Notifier implements the suppress-or-notify rule and owns unread counters.
type Notifier struct {
	rooms    *realtime.Rooms
	online   OnlineChecker
	markers  MarkerStore
	counters Counters
	enqueue  queue.Enqueuer
	log      *zap.Logger

	mu     sync.Mutex
	unread map[counterKey]int
	warm   map[counterKey]bool
}

func New(rooms *realtime.Rooms, online OnlineChecker, markers MarkerStore,
	counters Counters, enqueue queue.Enqueuer, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		rooms:    rooms,
		online:   online,
		markers:  markers,
		counters: counters,
		enqueue:  enqueue,
		log:      log,
		unread:   make(map[counterKey]int),
		warm:     make(map[counterKey]bool),
	}
}

// ChannelMessage evaluates every recipient of a channel message
// independently: the same fan-out pass can suppress for one subscriber and
// notify another.
func (n *Notifier) ChannelMessage(msg *models.Message, recipients []int) {
	roomID := realtime.ChannelRoom(msg.ChannelID)
	for _, userID := range recipients {
		if n.rooms.IsUserSubscribed(userID, roomID) {
			continue // looking at the channel, the room broadcast already updated them
		}
		count := n.bump(userID, roomID)
		n.deliver(userID, models.ServerEvent{
			Event:     models.EvMessageNotify,
			ChannelID: msg.ChannelID,
			Notification: &models.Notification{
				Title:       senderTitle(msg.DisplayName, msg.Username),
				Body:        msg.PreviewText(),
				RoomID:      roomID,
				SenderID:    msg.UserID,
				UnreadCount: count,
			},
		})
	}
}

// DirectMessage evaluates the single other participant of a conversation.
// The sender never receives a notification for their own message.
func (n *Notifier) DirectMessage(msg *models.DirectMessage, recipientID int) {
	roomID := realtime.ConversationRoom(msg.ConversationID)
	if n.rooms.IsUserSubscribed(recipientID, roomID) {
		return
	}
	count := n.bump(recipientID, roomID)
	n.deliver(recipientID, models.ServerEvent{
		Event:          models.EvDMNotify,
		ConversationID: msg.ConversationID,
		Notification: &models.Notification{
			Title:       senderTitle(msg.DisplayName, msg.SenderName),
			Body:        msg.Preview(),
			RoomID:      roomID,
			SenderID:    msg.SenderID,
			UnreadCount: count,
		},
	})
}

// deliver emits the notification event to the recipient's user room, and for
// offline recipients enqueues the push task instead.
func (n *Notifier) deliver(userID int, ev models.ServerEvent) {
	if n.online != nil && !n.online.IsUserOnline(userID) {
		n.push(userID, ev.Notification)
		return
	}
	n.rooms.SendToUser(userID, ev)
}

func (n *Notifier) push(userID int, note *models.Notification) {
	if n.enqueue == nil || note == nil {
		return
	}
	payload, err := json.Marshal(PushPayload{
		UserID: userID,
		Title:  note.Title,
		Body:   note.Body,
		RoomID: note.RoomID,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := n.enqueue.Enqueue(ctx, queue.TypePushNotification, payload); err != nil {
		n.log.Warn("push enqueue failed", zap.Int("user_id", userID), zap.Error(err))
	}
}

// MarkRead resets the unread counter and advances the persisted watermark.
func (n *Notifier) MarkRead(userID int, roomID string, at time.Time) {
	key := counterKey{userID, roomID}
	n.mu.Lock()
	n.unread[key] = 0
	n.warm[key] = true
	n.mu.Unlock()

	if n.markers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.markers.Set(ctx, userID, roomID, at); err != nil {
			n.log.Warn("read marker save failed", zap.Int("user_id", userID),
				zap.String("room", roomID), zap.Error(err))
		}
	}
}

// UnreadCount returns the viewer's unread count for the room. A cold cache
// entry is derived from the durable store: messages newer than the watermark
// authored by someone else.
func (n *Notifier) UnreadCount(userID int, roomID string) int {
	key := counterKey{userID, roomID}
	n.mu.Lock()
	if n.warm[key] {
		count := n.unread[key]
		n.mu.Unlock()
		return count
	}
	n.mu.Unlock()

	count := n.recount(userID, roomID)
	n.mu.Lock()
	if !n.warm[key] {
		n.unread[key] = count
		n.warm[key] = true
	}
	count = n.unread[key]
	n.mu.Unlock()
	return count
}

func (n *Notifier) bump(userID int, roomID string) int {
	key := counterKey{userID, roomID}
	n.mu.Lock()
	if n.warm[key] || n.counters == nil || n.markers == nil {
		n.warm[key] = true
		n.unread[key]++
		count := n.unread[key]
		n.mu.Unlock()
		return count
	}
	n.mu.Unlock()

	// Cold cache: derive from the store. The triggering message persisted
	// before fan-out, so the recount already includes it.
	base := n.recount(userID, roomID)
	if base < 1 {
		base = 1
	}
	n.mu.Lock()
	if n.warm[key] {
		n.unread[key]++
	} else {
		n.unread[key] = base
		n.warm[key] = true
	}
	count := n.unread[key]
	n.mu.Unlock()
	return count
}

func (n *Notifier) recount(userID int, roomID string) int {
	if n.counters == nil || n.markers == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	since, err := n.markers.Get(ctx, userID, roomID)
	if err != nil {
		n.log.Warn("read marker load failed", zap.Int("user_id", userID),
			zap.String("room", roomID), zap.Error(err))
		return 0
	}
	kind, key := realtime.SplitRoom(roomID)
	var count int
	switch kind {
	case realtime.KindChannel:
		count, err = n.counters.CountChannel(ctx, key, userID, since)
	case realtime.KindConversation:
		count, err = n.counters.CountConversation(ctx, key, userID, since)
	default:
		return 0
	}
	if err != nil {
		n.log.Warn("unread recount failed", zap.String("room", roomID), zap.Error(err))
		return 0
	}
	return count
}

func senderTitle(displayName, username string) string {
	if displayName != "" {
		return displayName
	}
	return username
}
