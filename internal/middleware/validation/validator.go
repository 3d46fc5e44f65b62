// Package validation screens incoming request bodies before they reach the
// handlers.
package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|create|alter|exec)\s`)
	xssPattern          = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	MaxQueryLength      int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" && !allowedContentType(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()

		if strings.Contains(path, "/api/v1/rescue") && c.Method() == "POST" {
			if msg, status := checkQueryBody(c, cfg); msg != "" {
				return c.Status(status).JSON(fiber.Map{"error": msg})
			}
		}

		if strings.Contains(path, "/api/v1/documents") && c.Method() == "POST" {
			if msg, status := checkDocumentBody(c, cfg); msg != "" {
				return c.Status(status).JSON(fiber.Map{"error": msg})
			}
		}

		return c.Next()
	}
}

// checkQueryBody returns a rejection message and status, or "" to accept.
func checkQueryBody(c *fiber.Ctx, cfg Config) (string, int) {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		return "Invalid JSON format", fiber.StatusBadRequest
	}

	query, ok := req["query"].(string)
	if !ok || query == "" {
		return "Query is required and must be a string", fiber.StatusBadRequest
	}

	if len(query) > cfg.MaxQueryLength {
		return "Query exceeds maximum length", fiber.StatusBadRequest
	}

	if sqlInjectionPattern.MatchString(query) || xssPattern.MatchString(query) {
		cfg.Logger.Warn("Suspicious query content rejected",
			zap.String("ip", c.IP()),
			zap.String("path", c.Path()),
		)
		return "Invalid query content", fiber.StatusBadRequest
	}

	return "", 0
}

func checkDocumentBody(c *fiber.Ctx, cfg Config) (string, int) {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		return "Invalid JSON format", fiber.StatusBadRequest
	}

	urlStr, ok := req["url"].(string)
	if !ok || urlStr == "" {
		return "URL is required and must be a string", fiber.StatusBadRequest
	}

	if !isValidURL(urlStr) {
		return "Invalid URL format", fiber.StatusBadRequest
	}

	content, ok := req["html_content"].(string)
	if ok && len(content) > cfg.MaxDocumentSize {
		return "Document content exceeds maximum size", fiber.StatusRequestEntityTooLarge
	}

	return "", 0
}

func allowedContentType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
