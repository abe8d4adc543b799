package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/cache"
	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
	"github.com/gongdel/promptview/internal/app/service"
	infraProm "github.com/gongdel/promptview/internal/infra/prometheus"
)

// userIDHeader carries the pre-authenticated viewer id. Authentication itself
// lives in front of this service; an empty header means a guest.
const userIDHeader = "X-User-ID"

// anonymousIDHeader carries the client-generated anonymous identity.
const anonymousIDHeader = "X-Anonymous-ID"

// ViewDeps groups dependencies required by view handlers.
type ViewDeps struct {
	Logger        *zap.Logger
	PromptService service.PromptService
	ViewService   service.ViewService
}

// ViewHandler implements the view recording and query endpoints.
type ViewHandler struct {
	logger  *zap.Logger
	prompts service.PromptService
	views   service.ViewService
}

// NewViewHandler creates a view handler with the provided dependencies.
func NewViewHandler(deps ViewDeps) *ViewHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewHandler{
		logger:  logger,
		prompts: deps.PromptService,
		views:   deps.ViewService,
	}
}

// Register wires view routes onto the provided router.
func (h *ViewHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		prompts := api.Group("/prompts")
		{
			prompts.Post("/:uuid/view", h.RecordView)
			prompts.Get("/:uuid/view-count", h.GetViewCount)
			prompts.Get("/top", h.GetTopViewed)
		}
	}
}

// RecordViewRequest is the optional body for recording a view.
type RecordViewRequest struct {
	AnonymousID string `json:"anonymous_id,omitempty"`
}

// RecordViewResponse reports the dedup outcome and the resulting count.
type RecordViewResponse struct {
	PromptUUID     string `json:"prompt_uuid"`
	Accepted       bool   `json:"accepted"`
	TotalViewCount int64  `json:"total_view_count"`
}

// ViewCountResponse is the query-side payload.
type ViewCountResponse struct {
	PromptID       int64     `json:"prompt_id"`
	TotalViewCount int64     `json:"total_view_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RecordView handles POST /api/prompts/:uuid/view
func (h *ViewHandler) RecordView(c *fiber.Ctx) error {
	promptUUID, ok := parsePromptUUID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid prompt uuid",
		})
	}

	var req RecordViewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}
	if req.AnonymousID == "" {
		req.AnonymousID = c.Get(anonymousIDHeader)
	}

	userID, ok := parseUserID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id header",
		})
	}

	ctx := userContext(c)

	promptID, err := h.prompts.ResolvePromptID(ctx, promptUUID)
	if err != nil {
		if errors.Is(err, repository.ErrPromptNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "prompt not found",
			})
		}
		h.logger.Error("failed to resolve prompt", zap.String("uuid", promptUUID.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to resolve prompt",
		})
	}

	result, err := h.views.RecordView(ctx, service.RecordViewInput{
		PromptID:    promptID,
		UserID:      userID,
		AnonymousID: req.AnonymousID,
		IPAddress:   c.IP(),
	})
	if err != nil {
		return h.viewError(c, "failed to record view", promptUUID, err)
	}

	infraProm.ObserveViewRecorded(result.Accepted)

	return c.JSON(RecordViewResponse{
		PromptUUID:     promptUUID.String(),
		Accepted:       result.Accepted,
		TotalViewCount: result.TotalViewCount,
	})
}

// GetViewCount handles GET /api/prompts/:uuid/view-count
func (h *ViewHandler) GetViewCount(c *fiber.Ctx) error {
	promptUUID, ok := parsePromptUUID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid prompt uuid",
		})
	}

	ctx := userContext(c)

	promptID, err := h.prompts.ResolvePromptID(ctx, promptUUID)
	if err != nil {
		if errors.Is(err, repository.ErrPromptNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "prompt not found",
			})
		}
		h.logger.Error("failed to resolve prompt", zap.String("uuid", promptUUID.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to resolve prompt",
		})
	}

	vc, err := h.views.GetViewCount(ctx, promptID)
	if err != nil {
		return h.viewError(c, "failed to load view count", promptUUID, err)
	}

	return c.JSON(ViewCountResponse{
		PromptID:       vc.PromptID,
		TotalViewCount: vc.TotalViewCount,
		UpdatedAt:      vc.UpdatedAt,
	})
}

// GetTopViewed handles GET /api/prompts/top
func (h *ViewHandler) GetTopViewed(c *fiber.Ctx) error {
	limit := 10
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}

	counts, err := h.views.GetTopViewed(userContext(c), limit)
	if err != nil {
		h.logger.Error("failed to load top viewed prompts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load top viewed prompts",
		})
	}

	response := make([]ViewCountResponse, len(counts))
	for i, vc := range counts {
		response[i] = ViewCountResponse{
			PromptID:       vc.PromptID,
			TotalViewCount: vc.TotalViewCount,
			UpdatedAt:      vc.UpdatedAt,
		}
	}

	return c.JSON(fiber.Map{
		"prompts": response,
		"limit":   limit,
		"count":   len(response),
	})
}

// viewError translates the cache error taxonomy into HTTP statuses: an
// unavailable store is a retryable 503, never a silently wrong count.
func (h *ViewHandler) viewError(c *fiber.Ctx, msg string, promptUUID uuid.UUID, err error) error {
	fields := []zap.Field{zap.String("uuid", promptUUID.String()), zap.Error(err)}

	switch {
	case errors.Is(err, cache.ErrStoreUnavailable):
		h.logger.Error(msg+": store unavailable", fields...)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "view store temporarily unavailable, retry the request",
		})
	case errors.Is(err, model.ErrInvalidViewIdentifier):
		h.logger.Warn(msg+": invalid identifier", fields...)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.logger.Error(msg, fields...)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": msg,
		})
	}
}

func parsePromptUUID(c *fiber.Ctx) (uuid.UUID, bool) {
	raw := c.Params("uuid")
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func parseUserID(c *fiber.Ctx) (*int64, bool) {
	raw := c.Get(userIDHeader)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
