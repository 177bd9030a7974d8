package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"jobpulse/internal/delivery/http/dto"
	"jobpulse/internal/delivery/http/middleware"
	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/response"
	"jobpulse/internal/repository"

	"github.com/gofiber/fiber/v3"
)

const maxRunsLimit = 200

type postingReader interface {
	Get(ctx context.Context, naturalID string) (posting.Posting, error)
}

type runLister interface {
	ListRecent(ctx context.Context, limit int) ([]posting.Run, error)
}

type PostingHandler struct {
	postings postingReader
	runs     runLister
}

func NewPostingHandler(postings postingReader, runs runLister) *PostingHandler {
	return &PostingHandler{postings: postings, runs: runs}
}

func (h *PostingHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/postings/:id", h.HandleGetPosting)
	r.Get("/runs", h.HandleListRuns)
}

func (h *PostingHandler) HandleGetPosting(c fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, nil)
	}

	p, err := h.postings.Get(c.Context(), id)
	if errors.Is(err, repository.ErrPostingNotFound) {
		return middleware.NewAppError(fiber.StatusNotFound, "Posting not found", nil, err)
	}
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewPostingResponse(p))
}

func (h *PostingHandler) HandleListRuns(c fiber.Ctx) error {
	limit, err := parseQueryIntStrict(c, "limit", 20)
	if err != nil || limit <= 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := h.runs.ListRecent(c.Context(), limit)
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
	if runs == nil {
		runs = []posting.Run{}
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, runs)
}

func parseQueryIntStrict(c fiber.Ctx, key string, defaultVal int) (int, error) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}

func parseQueryBool(c fiber.Ctx, key string) (bool, error) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
