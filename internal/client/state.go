package client

import (
	"sync"

	"pulse-backend/internal/models"
)

// RoomLog is the local per-room message list, merged by id. Events arrive in
// per-room order from the server; merges never reorder what is already held.
type RoomLog struct {
	mu       sync.Mutex
	messages []models.Message
	index    map[int]int // id -> slice position
}

func NewRoomLog() *RoomLog {
	return &RoomLog{index: make(map[int]int)}
}

// ApplyHistory replaces local state with the server's replay, e.g. after a
// rejoin.
func (l *RoomLog) ApplyHistory(history []models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append([]models.Message(nil), history...)
	l.reindex()
}

// ApplyNew appends a message. A duplicate id (redelivery) is ignored.
func (l *RoomLog) ApplyNew(msg models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.index[msg.ID]; ok {
		return
	}
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
}

// ApplyEdit patches content in place and sets the edited flag. Unknown ids
// are ignored; the message scrolled out of the local window.
func (l *RoomLog) ApplyEdit(msg models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[msg.ID]; ok {
		l.messages[i].Content = msg.Content
		l.messages[i].Edited = true
		l.messages[i].UpdatedAt = msg.UpdatedAt
	}
}

// ApplyDelete removes the item entirely rather than patching its content, so
// a deleted message never flashes its placeholder before disappearing.
func (l *RoomLog) ApplyDelete(messageID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[messageID]
	if !ok {
		return
	}
	l.messages = append(l.messages[:i], l.messages[i+1:]...)
	l.reindex()
}

// ApplyReactions replaces the reaction set on the matching id.
func (l *RoomLog) ApplyReactions(messageID int, reactions []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[messageID]; ok {
		l.messages[i].Reactions = append([]string(nil), reactions...)
	}
}

// Messages returns a copy of the local list in order.
func (l *RoomLog) Messages() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Message(nil), l.messages...)
}

func (l *RoomLog) reindex() {
	l.index = make(map[int]int, len(l.messages))
	for i, m := range l.messages {
		l.index[m.ID] = i
	}
}
