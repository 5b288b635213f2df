package handlers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pulse-backend/internal/models"
	"pulse-backend/internal/realtime"
	"pulse-backend/internal/services"
	"pulse-backend/internal/utils"
)

const (
	historyLimit = 50
	opTimeout    = 10 * time.Second
)

func connectedEvent() models.ServerEvent {
	return models.ServerEvent{
		Event:     models.EvConnected,
		Timestamp: time.Now().UnixMilli(),
	}
}

// dispatch routes one inbound frame. Failures go back to the sending
// connection as named error events; they never tear the session down.
func (h *SocketHandler) dispatch(conn *realtime.Connection, raw []byte) {
	var ev models.ClientEvent
	if err := utils.SafeJSONParse(raw, &ev); err != nil {
		h.sendError(conn, "", "", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch ev.Event {
	case models.EvChannelJoin:
		h.handleChannelJoin(ctx, conn, &ev)
	case models.EvChannelLeave:
		h.rooms.Leave(conn, realtime.ChannelRoom(ev.ChannelID))
	case models.EvMessageSend:
		h.handleChannelSend(ctx, conn, &ev)
	case models.EvMessageEdit:
		h.result(conn, &ev, func() error {
			_, err := h.relay.EditChannelMessage(ctx, conn.UserID, ev.MessageID, ev.Content)
			return err
		})
	case models.EvMessageDel:
		h.result(conn, &ev, func() error {
			return h.relay.SoftDeleteChannelMessage(ctx, conn.UserID, ev.MessageID)
		})
	case models.EvMessageReact:
		h.result(conn, &ev, func() error {
			_, err := h.relay.AddChannelReaction(ctx, ev.MessageID, ev.Emoji)
			return err
		})
	case models.EvMessageRead:
		h.result(conn, &ev, func() error {
			return h.relay.MarkChannelRead(ctx, conn.UserID, ev.MessageID)
		})
	case models.EvTypingStart, models.EvTypingStop:
		h.relayTyping(conn, realtime.ChannelRoom(ev.ChannelID), ev.Event, ev.ChannelID, "")
	case models.EvDMJoin:
		h.handleDMJoin(ctx, conn, &ev)
	case models.EvDMLeave:
		h.rooms.Leave(conn, realtime.ConversationRoom(ev.ConversationID))
	case models.EvDMSend:
		h.handleDMSend(ctx, conn, &ev)
	case models.EvDMEdit:
		h.result(conn, &ev, func() error {
			_, err := h.relay.EditDirectMessage(ctx, conn.UserID, ev.MessageID, ev.Content)
			return err
		})
	case models.EvDMDel:
		h.result(conn, &ev, func() error {
			return h.relay.SoftDeleteDirectMessage(ctx, conn.UserID, ev.MessageID)
		})
	case models.EvDMReact:
		h.result(conn, &ev, func() error {
			_, err := h.relay.AddDMReaction(ctx, ev.MessageID, ev.Emoji)
			return err
		})
	case models.EvDMTypingStart:
		h.relayTyping(conn, realtime.ConversationRoom(ev.ConversationID), models.EvTypingStart, "", ev.ConversationID)
	case models.EvDMTypingStop:
		h.relayTyping(conn, realtime.ConversationRoom(ev.ConversationID), models.EvTypingStop, "", ev.ConversationID)
	default:
		h.log.Debug("unknown event", zap.String("event", ev.Event))
	}
}

// handleChannelJoin subscribes the connection and replays recent history in a
// single packed frame. Membership does not survive reconnects, so clients
// re-join after every reconnect and the history replay doubles as
// missed-delivery recovery.
func (h *SocketHandler) handleChannelJoin(ctx context.Context, conn *realtime.Connection, ev *models.ClientEvent) {
	if ev.ChannelID == "" {
		return
	}
	if err := h.relay.CanJoinChannel(ctx, conn.UserID, ev.ChannelID); err != nil {
		h.sendError(conn, ev.Event, ev.ClientTag, err)
		return
	}
	h.rooms.Join(conn, realtime.ChannelRoom(ev.ChannelID))

	_ = conn.Send(models.ServerEvent{
		Event:     models.EvJoined,
		ChannelID: ev.ChannelID,
		Timestamp: time.Now().UnixMilli(),
	})

	history, err := h.relay.ChannelHistory(ctx, conn.UserID, ev.ChannelID, historyLimit)
	if err != nil {
		h.log.Warn("history fetch failed", zap.String("channel", ev.ChannelID), zap.Error(err))
		return
	}
	_ = conn.Send(models.ServerEvent{
		Event:     models.EvHistory,
		ChannelID: ev.ChannelID,
		History:   history,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *SocketHandler) handleDMJoin(ctx context.Context, conn *realtime.Connection, ev *models.ClientEvent) {
	if ev.ConversationID == "" {
		return
	}
	if err := h.relay.CanJoinConversation(ctx, conn.UserID, ev.ConversationID); err != nil {
		h.sendError(conn, ev.Event, ev.ClientTag, err)
		return
	}
	h.rooms.Join(conn, realtime.ConversationRoom(ev.ConversationID))

	_ = conn.Send(models.ServerEvent{
		Event:          models.EvJoined,
		ConversationID: ev.ConversationID,
		Timestamp:      time.Now().UnixMilli(),
	})

	history, convo, err := h.relay.ConversationHistory(ctx, conn.UserID, ev.ConversationID, historyLimit)
	if err != nil {
		h.log.Warn("history fetch failed", zap.String("conversation", ev.ConversationID), zap.Error(err))
		return
	}
	var other *models.UserInfo
	if info, err := h.relay.UserInfo(ctx, convo.Other(conn.UserID)); err == nil {
		info.IsOnline = h.presence.IsOnline(info.ID)
		other = info
	}
	_ = conn.Send(models.ServerEvent{
		Event:          models.EvHistory,
		ConversationID: ev.ConversationID,
		DMHistory:      history,
		OtherUser:      other,
		Timestamp:      time.Now().UnixMilli(),
	})
}

func (h *SocketHandler) handleChannelSend(ctx context.Context, conn *realtime.Connection, ev *models.ClientEvent) {
	_, err := h.relay.SendChannelMessage(ctx, conn.UserID, ev.ChannelID, ev.Content, ev.AttachmentURL, ev.ReplyToID)
	if err != nil {
		h.sendError(conn, ev.Event, ev.ClientTag, err)
	}
}

func (h *SocketHandler) handleDMSend(ctx context.Context, conn *realtime.Connection, ev *models.ClientEvent) {
	_, err := h.relay.SendDirectMessage(ctx, conn.UserID, ev.ConversationID, ev.Content, ev.AttachmentURL, ev.ReplyToID)
	if err != nil {
		h.sendError(conn, ev.Event, ev.ClientTag, err)
	}
}

// relayTyping forwards transient typing signals to current subscribers,
// excluding the typist. Nothing is persisted.
func (h *SocketHandler) relayTyping(conn *realtime.Connection, roomID, event, channelID, conversationID string) {
	if channelID == "" && conversationID == "" {
		return
	}
	h.rooms.Broadcast(roomID, models.ServerEvent{
		Event:          event,
		ChannelID:      channelID,
		ConversationID: conversationID,
		UserID:         conn.UserID,
		Username:       conn.Username,
		Timestamp:      time.Now().UnixMilli(),
	}, conn.ID)
}

func (h *SocketHandler) result(conn *realtime.Connection, ev *models.ClientEvent, op func() error) {
	if err := op(); err != nil {
		h.sendError(conn, ev.Event, ev.ClientTag, err)
	}
}

// sendError maps the failure taxonomy onto a named error event. The client
// tag echoes back so the reconciliation layer can revert the matching
// optimistic update.
func (h *SocketHandler) sendError(conn *realtime.Connection, event, clientTag string, err error) {
	_ = conn.Send(models.ServerEvent{
		Event:     models.EvError,
		Code:      errorCode(err),
		Error:     err.Error(),
		For:       event,
		ClientTag: clientTag,
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, services.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrAlreadyRead):
		return "already_read"
	case errors.Is(err, services.ErrValidation):
		return "validation_failed"
	default:
		return "internal"
	}
}
