package api

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, handler *Handler) {
	app.Get("/healthz", handler.Health)
	app.Get("/favicon.ico", sendNoContent)

	api := app.Group("/api", handler.AuthRequired)

	events := api.Group("/events")
	events.Post("", handler.CreateEvent)
	events.Get("", handler.ListEvents)

	patterns := api.Group("/patterns")
	patterns.Get("/temporal", handler.GetTemporalPatterns)
	patterns.Get("/relief", handler.GetReliefPatterns)
	patterns.Get("/environment", handler.GetEnvironmentalCorrelation)

	api.Get("/triggers", handler.GetConfirmedTriggers)

	insights := api.Group("/insights")
	insights.Post("/check", handler.CheckInsight)
	insights.Post("/:id/shared", handler.MarkInsightShared)

	api.Delete("/data", handler.DeleteUserData)
}
