package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/Ash-Blanc/migru/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (handler *Handler) CreateEvent(c *fiber.Ctx) error {
	payload := eventPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid payload")
	}

	eventType, ok := models.ParseEventType(payload.Type)
	if !ok {
		return respondValidation(c, &models.ValidationError{Field: "type", Reason: "must be symptom, relief, activity or message"})
	}
	metadata, err := models.ParseMetadata(payload.Metadata)
	if err != nil {
		return respondValidation(c, err)
	}

	id, err := handler.analytics.RecordEvent(c.UserContext(), currentUserID(c), services.EventInput{
		Type:       eventType,
		Text:       payload.Text,
		Metadata:   metadata,
		OccurredAt: payload.OccurredAt,
	})
	if err != nil {
		return respondValidation(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        id,
		"persisted": id != 0,
	})
}

// ListEvents reads [from, to) when either bound is given, otherwise the last `hours`.
func (handler *Handler) ListEvents(c *fiber.Ctx) error {
	eventType, err := parseEventTypeQuery(c)
	if err != nil {
		return respondValidation(c, err)
	}
	from, hasFrom, err := parseTimeQuery(c, "from")
	if err != nil {
		return respondValidation(c, err)
	}
	to, hasTo, err := parseTimeQuery(c, "to")
	if err != nil {
		return respondValidation(c, err)
	}

	userID := currentUserID(c)
	ctx := c.UserContext()

	if !hasFrom && !hasTo {
		window, err := parseHoursQuery(c)
		if err != nil {
			return respondValidation(c, err)
		}
		return c.JSON(fiber.Map{"events": handler.analytics.RecentEvents(ctx, userID, window, eventType)})
	}

	now := handler.now().UTC()
	if !hasTo {
		to = now.Add(time.Nanosecond)
	}
	if !hasFrom {
		from = to.Add(-defaultRecentEventsWindow)
	}
	if !from.Before(to) {
		return respondValidation(c, &models.ValidationError{Field: "from", Reason: "must be before to"})
	}

	found := handler.analytics.Range(ctx, userID, from, to)
	if eventType != "" {
		filtered := make([]models.Event, 0, len(found))
		for _, event := range found {
			if event.Type == eventType {
				filtered = append(filtered, event)
			}
		}
		found = filtered
	}
	return c.JSON(fiber.Map{"events": found})
}

func parseHoursQuery(c *fiber.Ctx) (time.Duration, error) {
	raw := strings.TrimSpace(c.Query("hours"))
	if raw == "" {
		return defaultRecentEventsWindow, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 0, &models.ValidationError{Field: "hours", Reason: "must be a positive integer"}
	}
	return time.Duration(hours) * time.Hour, nil
}
