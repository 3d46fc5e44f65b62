package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/storage/models"
	"github.com/rescue-agent/backend/internal/storage/sqlite"
	"github.com/rescue-agent/backend/pkg/logger"
)

type SessionHandler struct {
	db *sqlite.Client
}

func NewSessionHandler(db *sqlite.Client) *SessionHandler {
	return &SessionHandler{db: db}
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
		Title  string `json:"title"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.db.CreateSession(c.Context(), session); err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)

	sessions, err := h.db.ListSessions(c.Context(), userID, limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	return c.JSON(fiber.Map{
		"sessions": sessions,
	})
}

func (h *SessionHandler) GetSessionHistory(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	limit := c.QueryInt("limit", 50)

	messages, err := h.db.GetSessionHistory(c.Context(), sessionID, limit)
	if err != nil {
		logger.Error("Failed to get session history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get session history",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (h *SessionHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID       string `json:"query_id"`
		Helpful       bool   `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id is required",
		})
	}

	feedback := &models.Feedback{
		QueryID:       req.QueryID,
		Helpful:       req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
	}

	if err := h.db.StoreFeedback(c.Context(), feedback); err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}
