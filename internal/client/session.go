package client

import (
	"errors"
	"sync"

	"pulse-backend/internal/models"
)

// RoomState is the per-room connection lifecycle.
type RoomState int

const (
	Idle RoomState = iota
	Joining
	Joined
	Disconnected
	Rejoining
)

func (s RoomState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Disconnected:
		return "disconnected"
	case Rejoining:
		return "rejoining"
	default:
		return "unknown"
	}
}

// SendFunc forwards an event over the active transport.
type SendFunc func(ev models.ClientEvent) error

// ErrNotJoined is returned for sends to a room never joined.
var ErrNotJoined = errors.New("client: room not joined")

type roomEntry struct {
	state  RoomState
	join   models.ClientEvent
	outbox []models.ClientEvent
}

// Session owns the per-room state machines and outboxes behind one
// transport. Sends made while disconnected queue in order and flush FIFO on
// rejoin before any new send is accepted, so per-room send order survives a
// disconnection.
type Session struct {
	mu    sync.Mutex
	send  SendFunc
	rooms map[string]*roomEntry
}

func NewSession(send SendFunc) *Session {
	return &Session{send: send, rooms: make(map[string]*roomEntry)}
}

// Join starts the room lifecycle: Idle -> Joining. The join event is kept so
// a reconnect can replay it.
func (s *Session) Join(roomID string, join models.ClientEvent) error {
	s.mu.Lock()
	entry := s.rooms[roomID]
	if entry == nil {
		entry = &roomEntry{}
		s.rooms[roomID] = entry
	}
	entry.join = join
	switch entry.state {
	case Idle, Disconnected:
		if entry.state == Idle {
			entry.state = Joining
		} else {
			entry.state = Rejoining
		}
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.send(join)
}

// Ack moves Joining/Rejoining -> Joined on the server's joined event, then
// flushes the outbox in enqueue order. The lock holds through the flush, so
// no new send can interleave ahead of queued ones.
func (s *Session) Ack(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.rooms[roomID]
	if entry == nil {
		return ErrNotJoined
	}
	entry.state = Joined

	for len(entry.outbox) > 0 {
		ev := entry.outbox[0]
		if err := s.send(ev); err != nil {
			// transport died mid-flush; keep the rest queued
			entry.state = Disconnected
			return err
		}
		entry.outbox = entry.outbox[1:]
	}
	return nil
}

// Send forwards immediately while Joined and queues in order otherwise. A
// queued send is not acknowledged as delivered until flushed.
func (s *Session) Send(roomID string, ev models.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.rooms[roomID]
	if entry == nil {
		return ErrNotJoined
	}
	if entry.state == Joined {
		if err := s.send(ev); err != nil {
			entry.state = Disconnected
			entry.outbox = append(entry.outbox, ev)
			return nil
		}
		return nil
	}
	entry.outbox = append(entry.outbox, ev)
	return nil
}

// TransportLost marks every room Disconnected. Queued and future sends hold
// until Reconnect.
func (s *Session) TransportLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.rooms {
		if entry.state != Idle {
			entry.state = Disconnected
		}
	}
}

// Reconnect replays the join event for every previously joined room.
// Outboxes flush on each room's Ack, not here: the server must confirm the
// membership before queued sends go out.
func (s *Session) Reconnect() {
	s.mu.Lock()
	joins := make([]models.ClientEvent, 0, len(s.rooms))
	for _, entry := range s.rooms {
		if entry.state == Disconnected {
			entry.state = Rejoining
			joins = append(joins, entry.join)
		}
	}
	s.mu.Unlock()

	for _, join := range joins {
		_ = s.send(join)
	}
}

// Leave drops the room back to Idle and discards its queue.
func (s *Session) Leave(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// State reports the room's lifecycle state.
func (s *Session) State(roomID string) RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.rooms[roomID]; entry != nil {
		return entry.state
	}
	return Idle
}

// Pending returns the number of queued sends for the room.
func (s *Session) Pending(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.rooms[roomID]; entry != nil {
		return len(entry.outbox)
	}
	return 0
}
