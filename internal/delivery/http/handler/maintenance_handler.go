package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"jobpulse/internal/delivery/http/dto"
	"jobpulse/internal/delivery/http/middleware"
	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pipeline"
	"jobpulse/internal/pkg/response"
	"jobpulse/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

// MaintenanceRunner is the pipeline as seen by the trigger endpoints.
type MaintenanceRunner interface {
	Crawl(ctx context.Context) (pipeline.CrawlReport, error)
	CrawlRunning() bool
	Validate(ctx context.Context, params usecase.ValidationParams) (usecase.ValidationReport, error)
	Sweep(ctx context.Context, params usecase.SweepParams) (usecase.SweepReport, error)
	Reactivate(ctx context.Context, params usecase.ReactivationParams) (usecase.ReactivationReport, error)
	Backfill(ctx context.Context, params usecase.BackfillParams) (usecase.BackfillReport, error)
	Go(name string, fn func(ctx context.Context) error)
}

type MaintenanceHandler struct {
	runner MaintenanceRunner
}

func NewMaintenanceHandler(runner MaintenanceRunner) *MaintenanceHandler {
	return &MaintenanceHandler{runner: runner}
}

func (h *MaintenanceHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/crawl", h.HandleCrawl)
	r.Post("/validate", h.HandleValidate)
	r.Post("/backfill", h.HandleBackfill)
	r.Post("/sweep", h.HandleSweep)
	r.Post("/reactivate", h.HandleReactivate)
}

func (h *MaintenanceHandler) HandleCrawl(c fiber.Ctx) error {
	if h.runner.CrawlRunning() {
		return middleware.NewAppError(fiber.StatusConflict, "Crawl already running", nil, pipeline.ErrCrawlInProgress)
	}
	h.runner.Go("crawl", func(ctx context.Context) error {
		_, err := h.runner.Crawl(ctx)
		return err
	})
	return accepted(c, posting.RunCrawl)
}

func (h *MaintenanceHandler) HandleValidate(c fiber.Ctx) error {
	limit, err := parseQueryIntStrict(c, "limit", 0)
	if err != nil || limit < 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	force, err := parseQueryBool(c, "force")
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}

	params := usecase.ValidationParams{Limit: limit, Force: force}
	h.runner.Go("validate", func(ctx context.Context) error {
		_, err := h.runner.Validate(ctx, params)
		return err
	})
	return accepted(c, posting.RunValidate)
}

func (h *MaintenanceHandler) HandleBackfill(c fiber.Ctx) error {
	limit, err := parseQueryIntStrict(c, "limit", 0)
	if err != nil || limit < 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}

	params := usecase.BackfillParams{Limit: limit}
	h.runner.Go("backfill", func(ctx context.Context) error {
		_, err := h.runner.Backfill(ctx, params)
		return err
	})
	return accepted(c, posting.RunBackfill)
}

func (h *MaintenanceHandler) HandleSweep(c fiber.Ctx) error {
	dryRun, err := parseQueryBool(c, "dry_run")
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	var staleAfter time.Duration
	if raw := strings.TrimSpace(c.Query("stale_after")); raw != "" {
		staleAfter, err = time.ParseDuration(raw)
		if err != nil || staleAfter <= 0 {
			return middleware.NewAppError(fiber.StatusBadRequest, "Invalid stale_after", nil, err)
		}
	}

	report, err := h.runner.Sweep(c.Context(), usecase.SweepParams{StaleAfter: staleAfter, DryRun: dryRun})
	if err != nil {
		return mapRunError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, report)
}

func (h *MaintenanceHandler) HandleReactivate(c fiber.Ctx) error {
	dryRun, err := parseQueryBool(c, "dry_run")
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	limit, err := parseQueryIntStrict(c, "limit", 0)
	if err != nil || limit < 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}

	report, err := h.runner.Reactivate(c.Context(), usecase.ReactivationParams{Limit: limit, DryRun: dryRun})
	if err != nil {
		return mapRunError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, report)
}

func accepted(c fiber.Ctx, kind posting.RunKind) error {
	return response.Success(c, fiber.StatusAccepted, response.MessageAccepted, dto.TriggerResponse{Kind: string(kind), Accepted: true})
}

func mapRunError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidStaleAfter):
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid stale_after", nil, err)
	case errors.Is(err, pipeline.ErrNotConfigured):
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "", nil, err)
	case errors.Is(err, pipeline.ErrCrawlInProgress):
		return middleware.NewAppError(fiber.StatusConflict, "Crawl already running", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
}
