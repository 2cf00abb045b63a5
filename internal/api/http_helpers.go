package api

import (
	"errors"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/gofiber/fiber/v2"
)

func apiError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// respondValidation maps ValidationError to 400 and anything else to 500.
func respondValidation(c *fiber.Ctx, err error) error {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return apiError(c, fiber.StatusBadRequest, validationErr.Error())
	}
	return apiError(c, fiber.StatusInternalServerError, "internal error")
}

func currentUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(contextUserKey).(string)
	return userID
}

func (handler *Handler) requestLanguage(c *fiber.Ctx) string {
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" {
		return handler.catalog.NormalizeLanguage(lang)
	}
	return handler.catalog.DetectFromAcceptLanguage(c.Get(fiber.HeaderAcceptLanguage))
}

// parseTimeQuery reports ok=false when the parameter is absent.
func parseTimeQuery(c *fiber.Ctx, name string) (time.Time, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, false, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, &models.ValidationError{Field: name, Reason: "must be an RFC3339 timestamp"}
	}
	return parsed.UTC(), true, nil
}

func parseEventTypeQuery(c *fiber.Ctx) (models.EventType, error) {
	raw := strings.TrimSpace(c.Query("type"))
	if raw == "" {
		return "", nil
	}
	eventType, ok := models.ParseEventType(raw)
	if !ok {
		return "", &models.ValidationError{Field: "type", Reason: "must be symptom, relief, activity or message"}
	}
	return eventType, nil
}

func sendNoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
