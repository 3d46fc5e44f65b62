package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	cacheredis "github.com/rescue-agent/backend/internal/cache/redis"
	"github.com/rescue-agent/backend/internal/ingestion"
	"github.com/rescue-agent/backend/internal/metrics"
	"github.com/rescue-agent/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	cache     *cacheredis.Client
}

func NewDocumentHandler(processor *ingestion.Processor, cache *cacheredis.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		cache:     cache,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		HTMLContent string `json:"html_content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL and HTML content are required",
		})
	}

	err := h.processor.ProcessDocument(c.Context(), req.URL, req.HTMLContent)
	if err != nil {
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	metrics.DocumentsProcessed.Inc()

	// New knowledge invalidates previously cached answers.
	if h.cache != nil {
		if err := h.cache.InvalidateResponseCache(c.Context()); err != nil {
			logger.Warn("Failed to invalidate response cache", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"message": "Document processed successfully",
		"url":     req.URL,
	})
}
