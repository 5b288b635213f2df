package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulse-backend/internal/models"
	"pulse-backend/internal/realtime"
	"pulse-backend/internal/repo"
)

// Store interfaces consumed by the relay. The pgx repositories in
// internal/repo are the production implementations.

type MessageStore interface {
	Insert(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int) (*models.Message, error)
	Edit(ctx context.Context, id int, content string) (*models.Message, error)
	SoftDelete(ctx context.Context, id int) error
	AddReaction(ctx context.Context, id int, emoji string) ([]string, error)
	Recent(ctx context.Context, channelID string, limit int) ([]models.Message, error)
}

type DirectStore interface {
	Insert(ctx context.Context, msg *models.DirectMessage) error
	GetByID(ctx context.Context, id int) (*models.DirectMessage, error)
	Edit(ctx context.Context, id int, content string) (*models.DirectMessage, error)
	SoftDelete(ctx context.Context, id int) error
	AddReaction(ctx context.Context, id int, emoji string) ([]string, error)
	Recent(ctx context.Context, conversationID string, limit int) ([]models.DirectMessage, error)
	MarkRead(ctx context.Context, conversationID string, readerID int) (int, error)
}

type ConversationStore interface {
	GetOrCreate(ctx context.Context, userA, userB int) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	UpdatePreview(ctx context.Context, id, preview string, at time.Time) error
	ListFor(ctx context.Context, userID int) ([]models.ConversationListItem, error)
}

type ChannelStore interface {
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	Role(ctx context.Context, channelID string, userID int) (string, error)
	MemberIDs(ctx context.Context, channelID string) ([]int, error)
	UpdateLastActivity(ctx context.Context, id, preview string, at time.Time) error
}

type SocialStore interface {
	IsBlocked(ctx context.Context, userA, userB int) (bool, error)
	AreFriends(ctx context.Context, userA, userB int) (bool, error)
}

// Alerter decides suppress-versus-notify per recipient after a message has
// been fanned out, and tracks unread state.
type Alerter interface {
	ChannelMessage(msg *models.Message, recipients []int)
	DirectMessage(msg *models.DirectMessage, recipientID int)
	MarkRead(userID int, roomID string, at time.Time)
	UnreadCount(userID int, roomID string) int
}

// Relay validates and persists inbound messages, assigns server-side
// ordering, and fans the resulting events out to room subscribers. The store
// is always the last writer before any fan-out: a failed write means no
// broadcast, and a crash can never leave clients holding content the store
// lost.
type Relay struct {
	msgs     MessageStore
	dms      DirectStore
	convs    ConversationStore
	channels ChannelStore
	social   SocialStore
	users    UserStore
	rooms    *realtime.Rooms
	alerter  Alerter
	log      *zap.Logger

	// Per-room write sections: persistence and broadcast happen inside one
	// critical section per room, so fan-out order equals store write order.
	// Cross-room sends never serialize against each other.
	roomLocks sync.Map // roomID -> *sync.Mutex
}

func NewRelay(msgs MessageStore, dms DirectStore, convs ConversationStore,
	channels ChannelStore, social SocialStore, users UserStore,
	rooms *realtime.Rooms, alerter Alerter, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		msgs:     msgs,
		dms:      dms,
		convs:    convs,
		channels: channels,
		social:   social,
		users:    users,
		rooms:    rooms,
		alerter:  alerter,
		log:      log,
	}
}

// UserInfo resolves display attributes for history and list payloads.
func (r *Relay) UserInfo(ctx context.Context, userID int) (*models.UserInfo, error) {
	info, err := r.users.GetInfo(ctx, userID)
	if err != nil {
		return nil, asNotFound(err, "user %d", userID)
	}
	return info, nil
}

func (r *Relay) lockRoom(roomID string) func() {
	v, _ := r.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func validateContent(content, attachmentURL string) error {
	if content == "" && attachmentURL == "" {
		return fmt.Errorf("%w: content or attachment required", ErrValidation)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SendChannelMessage persists a channel message and fans it out to the
// channel room. Non-subscribed members are evaluated for notification
// afterwards, off the caller's path: the sender's acknowledgment depends only
// on persistence, not on delivery.
func (r *Relay) SendChannelMessage(ctx context.Context, senderID int, channelID, content, attachmentURL string, replyToID int) (*models.Message, error) {
	if err := validateContent(content, attachmentURL); err != nil {
		return nil, err
	}
	if _, err := r.channels.GetByID(ctx, channelID); err != nil {
		return nil, asNotFound(err, "channel %s", channelID)
	}
	if _, err := r.channels.Role(ctx, channelID, senderID); err != nil {
		if errors.Is(err, repo.ErrNoRow) {
			return nil, fmt.Errorf("%w: not a channel member", ErrAccessDenied)
		}
		return nil, err
	}

	msg := &models.Message{
		ChannelID:     channelID,
		UserID:        senderID,
		Content:       optional(content),
		AttachmentURL: optional(attachmentURL),
		Reactions:     []string{},
	}
	if replyToID != 0 {
		if ref, err := r.msgs.GetByID(ctx, replyToID); err == nil && ref.ChannelID == channelID {
			msg.ReplyToID = &ref.ID
			msg.ReplyTo = ref
		}
	}

	roomID := realtime.ChannelRoom(channelID)
	unlock := r.lockRoom(roomID)
	if err := r.msgs.Insert(ctx, msg); err != nil {
		unlock()
		return nil, err
	}
	if err := r.channels.UpdateLastActivity(ctx, channelID, msg.PreviewText(), msg.CreatedAt); err != nil {
		r.log.Warn("channel last-activity update failed", zap.String("channel", channelID), zap.Error(err))
	}
	full, err := r.msgs.GetByID(ctx, msg.ID)
	if err != nil {
		unlock()
		return nil, err
	}
	full.ReplyTo = msg.ReplyTo
	r.rooms.Broadcast(roomID, models.ServerEvent{
		Event:     models.EvMessageNew,
		ChannelID: channelID,
		Message:   full,
	}, "")
	unlock()

	go r.notifyChannelRecipients(full)
	return full, nil
}

func (r *Relay) notifyChannelRecipients(msg *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	members, err := r.channels.MemberIDs(ctx, msg.ChannelID)
	if err != nil {
		r.log.Error("channel member lookup failed", zap.String("channel", msg.ChannelID), zap.Error(err))
		return
	}
	recipients := members[:0]
	for _, id := range members {
		if id != msg.UserID {
			recipients = append(recipients, id)
		}
	}
	r.alerter.ChannelMessage(msg, recipients)
}

// SendDirectMessage persists a DM and fans it out to the conversation room.
// Either direction of block suppresses delivery before anything is persisted.
func (r *Relay) SendDirectMessage(ctx context.Context, senderID int, conversationID, content, attachmentURL string, replyToID int) (*models.DirectMessage, error) {
	if err := validateContent(content, attachmentURL); err != nil {
		return nil, err
	}
	conv, err := r.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, asNotFound(err, "conversation %s", conversationID)
	}
	if !conv.Has(senderID) {
		return nil, fmt.Errorf("%w: not a conversation participant", ErrAccessDenied)
	}
	blocked, err := r.social.IsBlocked(ctx, conv.UserAID, conv.UserBID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%w: blocked", ErrAccessDenied)
	}

	msg := &models.DirectMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        optional(content),
		AttachmentURL:  optional(attachmentURL),
		Reactions:      []string{},
	}
	if replyToID != 0 {
		if ref, err := r.dms.GetByID(ctx, replyToID); err == nil && ref.ConversationID == conversationID {
			msg.ReplyToID = &ref.ID
			msg.ReplyTo = ref
		}
	}

	roomID := realtime.ConversationRoom(conversationID)
	unlock := r.lockRoom(roomID)
	if err := r.dms.Insert(ctx, msg); err != nil {
		unlock()
		return nil, err
	}
	if err := r.convs.UpdatePreview(ctx, conversationID, msg.Preview(), msg.CreatedAt); err != nil {
		r.log.Warn("conversation preview update failed", zap.String("conversation", conversationID), zap.Error(err))
	}
	full, err := r.dms.GetByID(ctx, msg.ID)
	if err != nil {
		unlock()
		return nil, err
	}
	full.ReplyTo = msg.ReplyTo
	r.rooms.Broadcast(roomID, models.ServerEvent{
		Event:          models.EvDMNew,
		ConversationID: conversationID,
		DM:             full,
	}, "")
	unlock()

	go r.alerter.DirectMessage(full, conv.Other(senderID))
	return full, nil
}

// EditChannelMessage is permitted for the author, or for channel moderators
// and admins. The edited flag is set and the full message re-broadcast.
func (r *Relay) EditChannelMessage(ctx context.Context, editorID, messageID int, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrValidation)
	}
	m, err := r.fetchLiveMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := r.requireAuthorOrModerator(ctx, m, editorID); err != nil {
		return nil, err
	}

	roomID := realtime.ChannelRoom(m.ChannelID)
	unlock := r.lockRoom(roomID)
	defer unlock()
	updated, err := r.msgs.Edit(ctx, messageID, content)
	if err != nil {
		return nil, asNotFound(err, "message %d", messageID)
	}
	r.rooms.Broadcast(roomID, models.ServerEvent{
		Event:     models.EvMessageEdited,
		ChannelID: m.ChannelID,
		Message:   updated,
	}, "")
	return updated, nil
}

// SoftDeleteChannelMessage replaces the content with the fixed placeholder
// and broadcasts a deletion event carrying only the id, so subscribers remove
// the item from local state instead of re-rendering placeholder text.
func (r *Relay) SoftDeleteChannelMessage(ctx context.Context, requesterID, messageID int) error {
	m, err := r.fetchLiveMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := r.requireAuthorOrModerator(ctx, m, requesterID); err != nil {
		return err
	}

	roomID := realtime.ChannelRoom(m.ChannelID)
	unlock := r.lockRoom(roomID)
	defer unlock()
	if err := r.msgs.SoftDelete(ctx, messageID); err != nil {
		return asNotFound(err, "message %d", messageID)
	}
	r.rooms.Broadcast(roomID, models.ServerEvent{
		Event:     models.EvMessageGone,
		ChannelID: m.ChannelID,
		MessageID: messageID,
	}, "")
	return nil
}

// AddChannelReaction adds an emoji to the message's flat reaction set.
// Idempotent at the set level: a duplicate add still re-broadcasts the
// unchanged set.
func (r *Relay) AddChannelReaction(ctx context.Context, messageID int, emoji string) ([]string, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji required", ErrValidation)
	}
	m, err := r.fetchLiveMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	reactions, err := r.msgs.AddReaction(ctx, messageID, emoji)
	if err != nil {
		return nil, asNotFound(err, "message %d", messageID)
	}
	r.rooms.Broadcast(realtime.ChannelRoom(m.ChannelID), models.ServerEvent{
		Event:     models.EvMessageReacted,
		ChannelID: m.ChannelID,
		MessageID: messageID,
		Reactions: reactions,
	}, "")
	return reactions, nil
}

// EditDirectMessage is permitted only for the original sender.
func (r *Relay) EditDirectMessage(ctx context.Context, editorID, messageID int, content string) (*models.DirectMessage, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrValidation)
	}
	m, err := r.fetchLiveDM(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("%w: not the sender", ErrAccessDenied)
	}

	roomID := realtime.ConversationRoom(m.ConversationID)
	unlock := r.lockRoom(roomID)
	defer unlock()
	updated, err := r.dms.Edit(ctx, messageID, content)
	if err != nil {
		return nil, asNotFound(err, "message %d", messageID)
	}
	r.rooms.Broadcast(roomID, models.ServerEvent{
		Event:          models.EvDMEdited,
		ConversationID: m.ConversationID,
		DM:             updated,
	}, "")
	return updated, nil
}

// SoftDeleteDirectMessage enforces delete-before-read: once the recipient has
// read the message it can no longer be removed.
func (r *Relay) SoftDeleteDirectMessage(ctx context.Context, requesterID, messageID int) error {
	m, err := r.fetchLiveDM(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		return fmt.Errorf("%w: not the sender", ErrAccessDenied)
	}
	if m.IsRead {
		return ErrAlreadyRead
	}

	roomID := realtime.ConversationRoom(m.ConversationID)
	unlock := r.lockRoom(roomID)
	defer unlock()
	if err := r.dms.SoftDelete(ctx, messageID); err != nil {
		return asNotFound(err, "message %d", messageID)
	}
	r.rooms.Broadcast(roomID, models.ServerEvent{
		Event:          models.EvDMGone,
		ConversationID: m.ConversationID,
		MessageID:      messageID,
	}, "")
	return nil
}

func (r *Relay) AddDMReaction(ctx context.Context, messageID int, emoji string) ([]string, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji required", ErrValidation)
	}
	m, err := r.fetchLiveDM(ctx, messageID)
	if err != nil {
		return nil, err
	}

	reactions, err := r.dms.AddReaction(ctx, messageID, emoji)
	if err != nil {
		return nil, asNotFound(err, "message %d", messageID)
	}
	r.rooms.Broadcast(realtime.ConversationRoom(m.ConversationID), models.ServerEvent{
		Event:          models.EvDMReacted,
		ConversationID: m.ConversationID,
		MessageID:      messageID,
		Reactions:      reactions,
	}, "")
	return reactions, nil
}

// MarkConversationRead flags the reader's unread DMs as read, resets the
// unread counter and tells every device of the reader plus the other
// participant about it.
func (r *Relay) MarkConversationRead(ctx context.Context, readerID int, conversationID string) (int, error) {
	conv, err := r.convs.GetByID(ctx, conversationID)
	if err != nil {
		return 0, asNotFound(err, "conversation %s", conversationID)
	}
	if !conv.Has(readerID) {
		return 0, fmt.Errorf("%w: not a conversation participant", ErrAccessDenied)
	}

	updated, err := r.dms.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	roomID := realtime.ConversationRoom(conversationID)
	r.alerter.MarkRead(readerID, roomID, now)

	ev := models.ServerEvent{
		Event:          models.EvRead,
		ConversationID: conversationID,
		ReadBy:         readerID,
		Timestamp:      now.UnixMilli(),
	}
	r.rooms.Broadcast(roomID, ev, "")
	// Reach devices of the reader that are not subscribed to the room so
	// their badges clear too.
	r.rooms.SendToUser(readerID, ev)
	return updated, nil
}

// MarkChannelRead moves the reader's watermark to the given message.
func (r *Relay) MarkChannelRead(ctx context.Context, readerID, messageID int) error {
	m, err := r.msgs.GetByID(ctx, messageID)
	if err != nil {
		return asNotFound(err, "message %d", messageID)
	}
	if _, err := r.channels.Role(ctx, m.ChannelID, readerID); err != nil {
		if errors.Is(err, repo.ErrNoRow) {
			return fmt.Errorf("%w: not a channel member", ErrAccessDenied)
		}
		return err
	}
	r.alerter.MarkRead(readerID, realtime.ChannelRoom(m.ChannelID), m.CreatedAt)
	return nil
}

// GetOrCreateConversation is the idempotent pair lookup used before the first
// DM between two users. Blocked pairs cannot open conversations, and opening
// one requires an accepted friendship; messages inside an already-open
// conversation only re-check the block.
func (r *Relay) GetOrCreateConversation(ctx context.Context, userID, recipientID int) (*models.ConversationResponse, error) {
	if recipientID == 0 || recipientID == userID {
		return nil, fmt.Errorf("%w: invalid recipient", ErrValidation)
	}
	blocked, err := r.social.IsBlocked(ctx, userID, recipientID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%w: blocked", ErrAccessDenied)
	}
	friends, err := r.social.AreFriends(ctx, userID, recipientID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, fmt.Errorf("%w: not friends", ErrAccessDenied)
	}

	conv, created, err := r.convs.GetOrCreate(ctx, userID, recipientID)
	if err != nil {
		return nil, err
	}
	return &models.ConversationResponse{ConversationID: conv.ID, IsNew: created}, nil
}

// ChannelHistory returns recent messages for a member joining the room.
func (r *Relay) ChannelHistory(ctx context.Context, userID int, channelID string, limit int) ([]models.Message, error) {
	if _, err := r.channels.Role(ctx, channelID, userID); err != nil {
		if errors.Is(err, repo.ErrNoRow) {
			return nil, fmt.Errorf("%w: not a channel member", ErrAccessDenied)
		}
		return nil, err
	}
	return r.msgs.Recent(ctx, channelID, limit)
}

// ConversationHistory returns recent DMs plus the other participant's info.
func (r *Relay) ConversationHistory(ctx context.Context, userID int, conversationID string, limit int) ([]models.DirectMessage, *models.Conversation, error) {
	conv, err := r.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, asNotFound(err, "conversation %s", conversationID)
	}
	if !conv.Has(userID) {
		return nil, nil, fmt.Errorf("%w: not a conversation participant", ErrAccessDenied)
	}
	history, err := r.dms.Recent(ctx, conversationID, limit)
	if err != nil {
		return nil, nil, err
	}
	return history, conv, nil
}

// ListConversations returns the user's conversation list with unread counts.
func (r *Relay) ListConversations(ctx context.Context, userID int) ([]models.ConversationListItem, error) {
	items, err := r.convs.ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].UnreadCount = r.alerter.UnreadCount(userID, realtime.ConversationRoom(items[i].ConversationID))
	}
	return items, nil
}

// CanJoinChannel authorizes a channel:join.
func (r *Relay) CanJoinChannel(ctx context.Context, userID int, channelID string) error {
	_, err := r.channels.Role(ctx, channelID, userID)
	if errors.Is(err, repo.ErrNoRow) {
		return fmt.Errorf("%w: not a channel member", ErrAccessDenied)
	}
	return err
}

// CanJoinConversation authorizes a dm:join.
func (r *Relay) CanJoinConversation(ctx context.Context, userID int, conversationID string) error {
	conv, err := r.convs.GetByID(ctx, conversationID)
	if err != nil {
		return asNotFound(err, "conversation %s", conversationID)
	}
	if !conv.Has(userID) {
		return fmt.Errorf("%w: not a conversation participant", ErrAccessDenied)
	}
	return nil
}

func (r *Relay) fetchLiveMessage(ctx context.Context, id int) (*models.Message, error) {
	m, err := r.msgs.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "message %d", id)
	}
	if m.Deleted {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
	}
	return m, nil
}

func (r *Relay) fetchLiveDM(ctx context.Context, id int) (*models.DirectMessage, error) {
	m, err := r.dms.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "message %d", id)
	}
	if m.Deleted {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
	}
	return m, nil
}

func (r *Relay) requireAuthorOrModerator(ctx context.Context, m *models.Message, userID int) error {
	if m.UserID == userID {
		return nil
	}
	role, err := r.channels.Role(ctx, m.ChannelID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNoRow) {
			return fmt.Errorf("%w: not a channel member", ErrAccessDenied)
		}
		return err
	}
	if role != models.RoleModerator && role != models.RoleAdmin {
		return fmt.Errorf("%w: author or moderator required", ErrAccessDenied)
	}
	return nil
}

func asNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, repo.ErrNoRow) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
