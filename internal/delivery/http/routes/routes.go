package routes

import (
	"jobpulse/internal/delivery/http/handler"
	"jobpulse/internal/delivery/http/middleware"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	InternalToken string

	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Postings    *handler.PostingHandler
	Maintenance *handler.MaintenanceHandler
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}
	r.registerV1(app.Group("/api/v1", middleware.InternalToken(r.InternalToken)))
}

func (r *Registry) registerV1(v1 fiber.Router) {
	if r.Status != nil {
		r.Status.RegisterRoutes(v1)
	}
	if r.Postings != nil {
		r.Postings.RegisterRoutes(v1)
	}
	if r.Maintenance != nil {
		r.Maintenance.RegisterRoutes(v1)
	}
}
