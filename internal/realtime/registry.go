package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Registry tracks live connections and maps each to its owning user. A user
// may hold any number of simultaneous connections (multi-device); the
// first/last return values drive presence transitions.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[int]map[string]*Connection
	rooms  *Rooms
	log    *zap.Logger
}

func NewRegistry(rooms *Rooms, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[int]map[string]*Connection),
		rooms:  rooms,
		log:    log,
	}
}

// Register adds an authenticated connection. Every connection is implicitly a
// member of its own user room for its whole lifetime; that membership is not
// part of the explicit join/leave bookkeeping. Returns true when this is the
// user's first live connection (the user just came online).
func (r *Registry) Register(conn *Connection) (first bool) {
	r.mu.Lock()
	r.conns[conn.ID] = conn
	set := r.byUser[conn.UserID]
	if set == nil {
		set = make(map[string]*Connection)
		r.byUser[conn.UserID] = set
	}
	first = len(set) == 0
	set[conn.ID] = conn
	r.mu.Unlock()

	r.rooms.Join(conn, UserRoom(conn.UserID))
	r.log.Debug("connection registered",
		zap.String("conn_id", conn.ID), zap.Int("user_id", conn.UserID))
	return first
}

// Unregister removes the connection, releases all of its room memberships and
// closes it. Returns the owning user id and true when this was the user's
// last connection (the user just went offline).
func (r *Registry) Unregister(connID string) (userID int, last bool) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return 0, false
	}
	delete(r.conns, connID)
	userID = conn.UserID
	if set := r.byUser[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
			last = true
		}
	}
	r.mu.Unlock()

	r.rooms.LeaveAll(conn)
	conn.Close()
	r.log.Debug("connection unregistered",
		zap.String("conn_id", connID), zap.Int("user_id", userID), zap.Bool("last", last))
	return userID, last
}

// ConnectionsFor returns all live connections owned by the user, e.g. to mark
// every device of a recipient as having read a conversation.
func (r *Registry) ConnectionsFor(userID int) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// CountFor returns the number of live connections for the user.
func (r *Registry) CountFor(userID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// IsUserOnline reports whether the user owns at least one live connection.
func (r *Registry) IsUserOnline(userID int) bool {
	return r.CountFor(userID) > 0
}

// Get returns a connection by id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}
