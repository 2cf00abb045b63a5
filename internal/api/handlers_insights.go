package api

import (
	"net/url"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/gofiber/fiber/v2"
)

// CheckInsight records the reported conversation count before evaluating.
func (handler *Handler) CheckInsight(c *fiber.Ctx) error {
	payload := insightCheckPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if payload.ConversationCount == nil || *payload.ConversationCount < 0 {
		return respondValidation(c, &models.ValidationError{Field: "conversation_count", Reason: "must be a non-negative integer"})
	}

	ctx := c.UserContext()
	userID := currentUserID(c)
	count := *payload.ConversationCount

	handler.analytics.RecordConversation(ctx, userID, count)
	insight := handler.analytics.CheckForInsight(ctx, userID, count, handler.requestLanguage(c))

	return c.JSON(fiber.Map{
		"insight": insight,
		"phase":   handler.analytics.SharingPhase(ctx, userID),
	})
}

func (handler *Handler) MarkInsightShared(c *fiber.Ctx) error {
	insightID, err := url.PathUnescape(c.Params("id"))
	if err != nil {
		return respondValidation(c, &models.ValidationError{Field: "insight_id", Reason: "is not a valid path segment"})
	}
	if err := handler.analytics.MarkInsightShared(c.UserContext(), currentUserID(c), insightID); err != nil {
		return respondValidation(c, err)
	}
	return sendNoContent(c)
}
