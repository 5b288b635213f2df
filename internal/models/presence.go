package models

import "time"

// PresenceRecord survives restarts so last-seen timestamps are not lost when
// the process recycles. It is mutated at connection-lifecycle frequency.
type PresenceRecord struct {
	UserID   int       `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// ReadMarker is the per-user, per-room last-read watermark. Unread counts are
// derived from it rather than stored.
type ReadMarker struct {
	UserID     int       `json:"user_id"`
	RoomID     string    `json:"room_id"`
	LastReadAt time.Time `json:"last_read_at"`
}
