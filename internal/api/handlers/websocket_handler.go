package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *engine.Engine
}

func NewWebSocketHandler(eng *engine.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: eng}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type       string   `json:"type"`
			Content    string   `json:"content"`
			SessionID  string   `json:"session_id"`
			UserID     string   `json:"user_id"`
			ImageRefs  []string `json:"image_refs"`
			Location   string   `json:"location"`
			RadiusKM   int      `json:"radius_km"`
			WebEnabled bool     `json:"web_enabled"`
			MapEnabled bool     `json:"map_enabled"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		req := engine.Request{
			Query:      msg.Content,
			SessionID:  msg.SessionID,
			UserID:     msg.UserID,
			ImageRefs:  msg.ImageRefs,
			Location:   msg.Location,
			RadiusKM:   msg.RadiusKM,
			WebEnabled: msg.WebEnabled,
			MapEnabled: msg.MapEnabled,
		}

		if err := h.streamResponse(c, req); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req engine.Request) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Assessing the situation...")

	result := h.engine.Handle(ctx, req)
	recordMetrics(result)

	words := splitIntoWords(result.ResponseText)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result engine.Result) error {
	msg := map[string]interface{}{
		"type":               "complete",
		"message_id":         result.ID,
		"mode":               string(result.Gate.Mode),
		"sufficiency_level":  string(result.Verdict.Level),
		"followup_questions": result.Verdict.FollowupQuestions,
		"map_results":        result.Bundle.MapResults,
		"latency_ms":         result.LatencyMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
