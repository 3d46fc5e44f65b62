package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cacheredis "github.com/rescue-agent/backend/internal/cache/redis"
	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/internal/metrics"
	"github.com/rescue-agent/backend/internal/storage/models"
	"github.com/rescue-agent/backend/internal/storage/sqlite"
	"github.com/rescue-agent/backend/pkg/logger"
	"github.com/rescue-agent/backend/pkg/utils"
)

// historyLimit caps how much prior conversation is fed back into a request.
const historyLimit = 10

// responseCacheTTL bounds how long a cached answer can serve follow-up
// identical queries; emergency answers are never cached at all.
const responseCacheTTL = time.Hour

type RescueHandler struct {
	engine *engine.Engine
	db     *sqlite.Client
	cache  *cacheredis.Client
}

func NewRescueHandler(eng *engine.Engine, db *sqlite.Client, cache *cacheredis.Client) *RescueHandler {
	return &RescueHandler{engine: eng, db: db, cache: cache}
}

// cachedAnswer is the response body persisted in the cache for stateless
// repeat queries.
type cachedAnswer struct {
	ID                string               `json:"id"`
	Response          string               `json:"response"`
	Mode              string               `json:"mode"`
	SufficiencyLevel  string               `json:"sufficiency_level"`
	FollowupQuestions []string             `json:"followup_questions"`
	MapResults        []engine.PlaceRecord `json:"map_results"`
	LatencyMS         int                  `json:"latency_ms"`
	Cached            bool                 `json:"cached"`
}

type rescueRequest struct {
	Query      string   `json:"query"`
	SessionID  string   `json:"session_id"`
	UserID     string   `json:"user_id"`
	ImageRefs  []string `json:"image_refs"`
	Location   string   `json:"location"`
	RadiusKM   int      `json:"radius_km"`
	WebEnabled bool     `json:"web_enabled"`
	MapEnabled bool     `json:"map_enabled"`
}

func (h *RescueHandler) HandleRescue(c *fiber.Ctx) error {
	var req rescueRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	// Session-free requests are deterministic in the query alone, so a cached
	// answer is safe to replay. Anything with history goes through the engine.
	cacheKey := ""
	if h.cache != nil && req.SessionID == "" {
		cacheKey = utils.HashString(req.Query + "|" + req.Location)
		var answer cachedAnswer
		if ok, err := h.cache.GetResponse(c.Context(), cacheKey, &answer); err == nil && ok {
			metrics.CacheHits.WithLabelValues("response").Inc()
			answer.Cached = true
			return c.JSON(answer)
		}
		metrics.CacheMisses.WithLabelValues("response").Inc()
	}

	history := h.loadHistory(c, req.SessionID)

	result := h.engine.Handle(c.Context(), engine.Request{
		Query:      req.Query,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		History:    history,
		ImageRefs:  req.ImageRefs,
		Location:   req.Location,
		RadiusKM:   req.RadiusKM,
		WebEnabled: req.WebEnabled,
		MapEnabled: req.MapEnabled,
	})

	recordMetrics(result)
	h.appendTurns(c, req, result)

	answer := cachedAnswer{
		ID:                result.ID,
		Response:          result.ResponseText,
		Mode:              string(result.Gate.Mode),
		SufficiencyLevel:  string(result.Verdict.Level),
		FollowupQuestions: result.Verdict.FollowupQuestions,
		MapResults:        result.Bundle.MapResults,
		LatencyMS:         result.LatencyMS,
	}

	if cacheKey != "" && result.Gate.Mode != engine.ModeEmergency {
		if err := h.cache.SetResponse(c.Context(), cacheKey, answer, responseCacheTTL); err != nil {
			logger.Debug("Failed to cache response", zap.Error(err))
		}
	}

	return c.JSON(answer)
}

// GetTrace exposes the stored decision trace for one request.
func (h *RescueHandler) GetTrace(c *fiber.Ctx) error {
	requestID := c.Params("id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Request ID is required",
		})
	}

	trace, err := h.db.GetRequestTrace(c.Context(), requestID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Trace not found",
		})
	}

	return c.JSON(fiber.Map{
		"request_id": requestID,
		"trace":      trace,
	})
}

func (h *RescueHandler) loadHistory(c *fiber.Ctx, sessionID string) []engine.Turn {
	if sessionID == "" {
		return nil
	}

	messages, err := h.db.GetSessionHistory(c.Context(), sessionID, historyLimit)
	if err != nil {
		logger.Warn("Failed to load session history", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}

	turns := make([]engine.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, engine.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (h *RescueHandler) appendTurns(c *fiber.Ctx, req rescueRequest, result engine.Result) {
	if req.SessionID == "" {
		return
	}

	now := time.Now()
	pairs := []models.Message{
		{ID: uuid.New().String(), SessionID: req.SessionID, Role: "user", Content: req.Query, CreatedAt: now},
		{ID: uuid.New().String(), SessionID: req.SessionID, Role: "assistant", Content: result.ResponseText, CreatedAt: now},
	}
	for i := range pairs {
		if err := h.db.AppendMessage(c.Context(), &pairs[i]); err != nil {
			logger.Warn("Failed to append message", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}
}

func recordMetrics(result engine.Result) {
	mode := string(result.Gate.Mode)

	metrics.RequestTotal.WithLabelValues("ok").Inc()
	metrics.ModeTotal.WithLabelValues(mode).Inc()
	metrics.SufficiencyLevel.WithLabelValues(string(result.Verdict.Level)).Inc()
	metrics.RequestDuration.WithLabelValues(mode).Observe(float64(result.LatencyMS) / 1000)
	metrics.RetrievalAttempts.Observe(float64(len(result.Bundle.Attempts)))
	metrics.KBDocsKept.Observe(float64(len(result.Bundle.KBDocs)))

	for _, f := range result.Bundle.Failures {
		metrics.ToolFailures.WithLabelValues(f.Tool).Inc()
	}

	for _, e := range result.Trace {
		if e.Node == "respond" && e.Outputs["status"] == "fallback" {
			metrics.FallbackResponses.WithLabelValues(mode).Inc()
		}
	}
}
