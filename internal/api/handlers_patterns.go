package api

import (
	"github.com/Ash-Blanc/migru/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (handler *Handler) GetTemporalPatterns(c *fiber.Ctx) error {
	patterns := handler.analytics.GetTemporalPatterns(c.UserContext(), currentUserID(c))
	return c.JSON(fiber.Map{
		"patterns": patterns,
		"peaks":    services.Peaks(patterns),
	})
}

func (handler *Handler) GetReliefPatterns(c *fiber.Ctx) error {
	patterns := handler.analytics.GetReliefPatterns(c.UserContext(), currentUserID(c))
	return c.JSON(fiber.Map{
		"patterns": patterns,
		"peaks":    services.Peaks(patterns),
	})
}

func (handler *Handler) GetEnvironmentalCorrelation(c *fiber.Ctx) error {
	return c.JSON(handler.analytics.GetEnvironmentalCorrelation(c.UserContext(), currentUserID(c)))
}

func (handler *Handler) GetConfirmedTriggers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"triggers": handler.analytics.GetConfirmedTriggers(c.UserContext(), currentUserID(c))})
}
