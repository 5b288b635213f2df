package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"pulse-backend/internal/models"
	"pulse-backend/internal/notify"
	"pulse-backend/internal/presence"
	"pulse-backend/internal/services"
)

// RestHandler serves the fallback endpoints the realtime core exposes over
// plain HTTP: presence heartbeats for torn-down transports, read receipts and
// reactions for clients that lost the socket mid-action.
type RestHandler struct {
	relay    *services.Relay
	presence *presence.Tracker
	notifier *notify.Notifier
	users    *services.UserService
}

func NewRestHandler(relay *services.Relay, tracker *presence.Tracker,
	notifier *notify.Notifier, users *services.UserService) *RestHandler {
	return &RestHandler{relay: relay, presence: tracker, notifier: notifier, users: users}
}

// PutStatus is the presence heartbeat outside the live connection, used when
// the app backgrounds but stays alive long enough for one call. Duplicate
// updates are absorbed by the tracker.
func (h *RestHandler) PutStatus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)

	var body struct {
		IsOnline bool `json:"isOnline"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	h.presence.Heartbeat(userID, body.IsOnline)
	return c.JSON(fiber.Map{"ok": true})
}

// PutConversationRead marks the conversation read for the caller on every
// device and resets the unread counter.
func (h *RestHandler) PutConversationRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)
	conversationID := c.Params("conversationId")

	updated, err := h.relay.MarkConversationRead(c.Context(), userID, conversationID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

func (h *RestHandler) PostMessageReaction(c *fiber.Ctx) error {
	messageID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	reactions, err := h.relay.AddChannelReaction(c.Context(), messageID, body.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reactions": reactions})
}

func (h *RestHandler) PostDMReaction(c *fiber.Ctx) error {
	messageID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	reactions, err := h.relay.AddDMReaction(c.Context(), messageID, body.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reactions": reactions})
}

// PostConversation is the idempotent get-or-create for the pair.
func (h *RestHandler) PostConversation(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)

	var req models.CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	res, err := h.relay.GetOrCreateConversation(c.Context(), userID, req.RecipientID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// GetConversations lists the caller's conversations with online status and
// unread counts.
func (h *RestHandler) GetConversations(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)

	items, err := h.relay.ListConversations(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	for i := range items {
		items[i].OtherUser.IsOnline = h.presence.IsOnline(items[i].OtherUser.ID)
	}
	if items == nil {
		items = []models.ConversationListItem{}
	}
	return c.JSON(items)
}

// PostFriendRequest emits the friend:request event after the social-graph
// write, which itself belongs to the CRUD layer outside this subsystem.
func (h *RestHandler) PostFriendRequest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)

	var body struct {
		UserID int `json:"user_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserID == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	from, err := h.users.GetInfo(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	from.IsOnline = h.presence.IsOnline(userID)
	h.notifier.FriendRequest(from, body.UserID)
	return c.JSON(fiber.Map{"ok": true})
}

// PostFriendAccept emits friend:accepted to the original requester.
func (h *RestHandler) PostFriendAccept(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)

	var body struct {
		UserID int `json:"user_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserID == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	by, err := h.users.GetInfo(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	by.IsOnline = h.presence.IsOnline(userID)
	h.notifier.FriendAccepted(by, body.UserID)
	return c.JSON(fiber.Map{"ok": true})
}

// respondError maps the failure taxonomy to HTTP statuses: 400 validation,
// 401 unauthenticated, 403 denied/blocked, 404 missing, 409 already read.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthenticated):
		status = fiber.StatusUnauthorized
	case errors.Is(err, services.ErrAccessDenied):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrAlreadyRead):
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
