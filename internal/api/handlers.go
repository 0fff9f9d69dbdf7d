package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/internal/engine"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/store"
)

type createChatRequest struct {
	Participants []string `json:"participants"`
	IsGroup      bool     `json:"is_group"`
	GroupName    string   `json:"group_name"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) listChats(c *fiber.Ctx) error {
	chats, err := s.eng.ListChats(c.Context(), currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	if chats == nil {
		chats = []*models.Chat{}
	}
	return c.JSON(fiber.Map{"status": "success", "data": chats})
}

func (s *Server) createChat(c *fiber.Ctx) error {
	var req createChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	chat, created, err := s.eng.CreateChat(c.Context(), currentUser(c), req.Participants, req.IsGroup, req.GroupName)
	if err != nil {
		return s.fail(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"status": "success", "data": chat})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	msgs, err := s.eng.ListMessages(c.Context(), c.Params("chatID"), currentUser(c))
	if err != nil {
		return s.fail(c, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(fiber.Map{"status": "success", "data": msgs})
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	msg, counts, err := s.eng.SendMessage(c.Context(), c.Params("chatID"), currentUser(c), req.Content, nil)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"data":   fiber.Map{"message": msg, "unread_counts": counts},
	})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	counts, err := s.eng.MarkRead(c.Context(), c.Params("chatID"), c.Params("messageID"), currentUser(c), nil)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "data": fiber.Map{"unread_counts": counts}})
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	userID := c.Params("userID")
	status := models.StatusOffline
	if s.registry.IsOnline(userID) {
		status = models.StatusOnline
	}
	resp := fiber.Map{"user_id": userID, "status": status}
	if lastSeen, ok := s.registry.LastSeen(userID); ok && !lastSeen.IsZero() {
		resp["last_seen"] = lastSeen
	}
	return c.JSON(fiber.Map{"status": "success", "data": resp})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrChatNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
	case errors.Is(err, engine.ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a participant"})
	case errors.Is(err, engine.ErrEmptyContent), errors.Is(err, engine.ErrInvalidParticipants):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		s.log.Errorw("request failed", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
