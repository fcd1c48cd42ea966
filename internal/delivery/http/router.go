package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes. gatherer may be nil to skip /metrics.
func SetupRoutes(app *fiber.App, handler *Handler, gatherer prometheus.Gatherer) {
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/health", handler.HealthCheck)
		api.Get("/lookups", handler.RecentLookups)

		// One session per mounted view
		api.Post("/sessions", handler.CreateSession)
		api.Get("/sessions/:id", handler.GetSession)
		api.Delete("/sessions/:id", handler.DeleteSession)
		api.Get("/sessions/:id/events", handler.StreamEvents)

		// View events
		api.Put("/sessions/:id/query", handler.SetQuery)
		api.Post("/sessions/:id/search", handler.Search)
		api.Post("/sessions/:id/keys", handler.KeyPress)
		api.Put("/sessions/:id/unit", handler.SetUnit)
		api.Delete("/sessions/:id/error", handler.DismissError)
		api.Post("/sessions/:id/map/toggle", handler.ToggleMap)
		api.Post("/sessions/:id/geolocation", handler.ReportGeolocation)
	}
}
