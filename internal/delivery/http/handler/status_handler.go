package handler

import (
	"context"

	"jobpulse/internal/delivery/http/middleware"
	"jobpulse/internal/pkg/response"
	"jobpulse/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type statusReader interface {
	Get(ctx context.Context) (usecase.Status, error)
}

type reactivationStatsReader interface {
	Stats(ctx context.Context) (usecase.ReactivationStats, error)
}

type StatusHandler struct {
	status       statusReader
	reactivation reactivationStatsReader
}

func NewStatusHandler(status statusReader, reactivation reactivationStatsReader) *StatusHandler {
	return &StatusHandler{status: status, reactivation: reactivation}
}

func (h *StatusHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/status", h.HandleStatus)
	r.Get("/reactivation/stats", h.HandleReactivationStats)
}

func (h *StatusHandler) HandleStatus(c fiber.Ctx) error {
	st, err := h.status.Get(c.Context())
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, st)
}

func (h *StatusHandler) HandleReactivationStats(c fiber.Ctx) error {
	if h.reactivation == nil {
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "", nil, nil)
	}
	stats, err := h.reactivation.Stats(c.Context())
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, stats)
}
