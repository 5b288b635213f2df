package models

// Client -> server event names.
const (
	EvChannelJoin  = "channel:join"
	EvChannelLeave = "channel:leave"
	EvMessageSend  = "message:send"
	EvMessageEdit  = "message:edit"
	EvMessageDel   = "message:delete"
	EvMessageReact = "message:react"
	EvMessageRead  = "message:read"
	EvTypingStart  = "typing:start"
	EvTypingStop   = "typing:stop"

	EvDMJoin        = "dm:join"
	EvDMLeave       = "dm:leave"
	EvDMSend        = "dm:send"
	EvDMEdit        = "dm:edit"
	EvDMDel         = "dm:delete"
	EvDMReact       = "dm:react"
	EvDMTypingStart = "dm:typing:start"
	EvDMTypingStop  = "dm:typing:stop"
)

// Server -> client event names.
const (
	EvConnected      = "connected"
	EvError          = "error"
	EvMessageNew     = "message:new"
	EvMessageEdited  = "message:edited"
	EvMessageGone    = "message:deleted"
	EvMessageReacted = "message:reaction"
	EvMessageNotify  = "message:notification"
	EvDMNew          = "dm:new"
	EvDMEdited       = "dm:edited"
	EvDMGone         = "dm:deleted"
	EvDMReacted      = "dm:reaction"
	EvDMNotify       = "dm:notification"
	EvUserStatus     = "user:status"
	EvFriendRequest  = "friend:request"
	EvFriendAccept   = "friend:accepted"
	EvServerAdded    = "server:added"
	EvHistory        = "history"
	EvJoined         = "joined"
	EvLeft           = "left"
	EvRead           = "messages:read"
)

// ClientEvent is the inbound websocket envelope. Only the fields relevant to
// the named event are set.
type ClientEvent struct {
	Event          string  `json:"event"`
	ChannelID      string  `json:"channel_id,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Content        string  `json:"content,omitempty"`
	AttachmentURL  string  `json:"attachment_url,omitempty"`
	ReplyToID      int     `json:"reply_to_id,omitempty"`
	MessageID      int     `json:"message_id,omitempty"`
	Emoji          string  `json:"emoji,omitempty"`
	ClientTag      string  `json:"client_tag,omitempty"`
	Timestamp      int64   `json:"timestamp,omitempty"`
}

// ServerEvent is the outbound websocket envelope. Exactly one payload field is
// populated per event; the rest are omitted from the wire encoding.
type ServerEvent struct {
	Event          string           `json:"event"`
	ChannelID      string           `json:"channel_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Message        *Message         `json:"message,omitempty"`
	DM             *DirectMessage   `json:"dm,omitempty"`
	MessageID      int              `json:"message_id,omitempty"`
	Reactions      []string         `json:"reactions,omitempty"`
	Notification   *Notification    `json:"notification,omitempty"`
	UserID         int              `json:"user_id,omitempty"`
	Username       string           `json:"username,omitempty"`
	IsOnline       *bool            `json:"is_online,omitempty"`
	LastSeen       int64            `json:"last_seen,omitempty"`
	History        []Message        `json:"history,omitempty"`
	DMHistory      []DirectMessage  `json:"dm_history,omitempty"`
	OtherUser      *UserInfo        `json:"other_user,omitempty"`
	Friend         *UserInfo        `json:"friend,omitempty"`
	ServerID       string           `json:"server_id,omitempty"`
	Error          string           `json:"error,omitempty"`
	Code           string           `json:"code,omitempty"`
	For            string           `json:"for,omitempty"`
	ReadBy         int              `json:"read_by,omitempty"`
	ClientTag      string           `json:"client_tag,omitempty"`
	Timestamp      int64            `json:"timestamp,omitempty"`
}

// Notification is the discrete alert payload emitted to a user room when a
// delivered message should surface a toast/badge instead of (or in addition
// to) a silent state update.
type Notification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	RoomID      string `json:"room_id"`
	SenderID    int    `json:"sender_id"`
	UnreadCount int    `json:"unread_count"`
}
