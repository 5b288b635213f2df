package realtime

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Room id constructors. The three kinds share one keyspace, so the prefix is
// part of the id.
func ChannelRoom(channelID string) string { return "channel:" + channelID }

func ConversationRoom(conversationID string) string { return "conv:" + conversationID }

func UserRoom(userID int) string { return "user:" + strconv.Itoa(userID) }

// Room kind prefixes, as produced by the constructors above.
const (
	KindChannel      = "channel"
	KindConversation = "conv"
	KindUser         = "user"
)

// SplitRoom breaks a room id into its kind and key.
func SplitRoom(roomID string) (kind, key string) {
	for i := 0; i < len(roomID); i++ {
		if roomID[i] == ':' {
			return roomID[:i], roomID[i+1:]
		}
	}
	return "", roomID
}

type room struct {
	mu      sync.RWMutex
	members map[string]*Connection
}

// Rooms is the subscription index over live connections. Each room carries
// its own lock so broadcasts to unrelated rooms never serialize against each
// other; the outer map locks only for room creation and removal.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   *zap.Logger
}

func NewRooms(log *zap.Logger) *Rooms {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rooms{rooms: make(map[string]*room), log: log}
}

func (rs *Rooms) get(roomID string, create bool) *room {
	rs.mu.RLock()
	r := rs.rooms[roomID]
	rs.mu.RUnlock()
	if r != nil || !create {
		return r
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r = rs.rooms[roomID]; r == nil {
		r = &room{members: make(map[string]*Connection)}
		rs.rooms[roomID] = r
	}
	return r
}

// Join subscribes the connection to the room. Membership does not persist
// across reconnects; clients re-join rooms of interest after each reconnect.
func (rs *Rooms) Join(conn *Connection, roomID string) {
	for {
		r := rs.get(roomID, true)
		r.mu.Lock()
		r.members[conn.ID] = conn
		r.mu.Unlock()

		// A concurrent last-member Leave can drop the room from the map
		// between the fetch and the insert, stranding the membership in an
		// orphaned room. Re-check and retry against the live entry.
		rs.mu.RLock()
		current := rs.rooms[roomID]
		rs.mu.RUnlock()
		if current == r {
			return
		}
	}
}

// Leave removes the connection from the room, dropping the room once empty.
func (rs *Rooms) Leave(conn *Connection, roomID string) {
	r := rs.get(roomID, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.members, conn.ID)
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		rs.dropIfEmpty(roomID)
	}
}

// LeaveAll removes the connection from every room it joined, including the
// implicit user room.
func (rs *Rooms) LeaveAll(conn *Connection) {
	rs.mu.RLock()
	ids := make([]string, 0, len(rs.rooms))
	for id := range rs.rooms {
		ids = append(ids, id)
	}
	rs.mu.RUnlock()

	for _, id := range ids {
		rs.Leave(conn, id)
	}
}

func (rs *Rooms) dropIfEmpty(roomID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r := rs.rooms[roomID]; r != nil {
		r.mu.RLock()
		empty := len(r.members) == 0
		r.mu.RUnlock()
		if empty {
			delete(rs.rooms, roomID)
		}
	}
}

// SubscribersOf returns the connections currently subscribed to the room.
func (rs *Rooms) SubscribersOf(roomID string) []*Connection {
	r := rs.get(roomID, false)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	return out
}

// IsUserSubscribed reports whether any of the user's connections is a member
// of the room. This is the notification suppression test: subscribed means
// the user is looking at that room right now.
func (rs *Rooms) IsUserSubscribed(userID int, roomID string) bool {
	r := rs.get(roomID, false)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.members {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// Broadcast fans a payload out to every subscriber of the room, excluding the
// connection id in except when non-empty. Delivery is fire-and-forget: each
// connection's write pump handles its own slow-client failure.
func (rs *Rooms) Broadcast(roomID string, payload interface{}, except string) {
	r := rs.get(roomID, false)
	if r == nil {
		return
	}
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.members))
	for id, c := range r.members {
		if id == except {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(payload); err != nil {
			rs.log.Debug("broadcast drop", zap.String("room", roomID),
				zap.String("conn_id", c.ID), zap.Error(err))
		}
	}
}

// SendToUser delivers a payload to every connection in the user's own room.
func (rs *Rooms) SendToUser(userID int, payload interface{}) {
	rs.Broadcast(UserRoom(userID), payload, "")
}
