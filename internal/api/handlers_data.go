package api

import "github.com/gofiber/fiber/v2"

func (handler *Handler) DeleteUserData(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if err := handler.analytics.DeleteUserData(c.UserContext(), userID); err != nil {
		handler.logger.Error("delete user data failed", "user", handler.tagger.Tag(userID), "error", err)
		return apiError(c, fiber.StatusServiceUnavailable, "storage unavailable")
	}
	return sendNoContent(c)
}
