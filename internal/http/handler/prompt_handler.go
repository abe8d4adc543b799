package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
	"github.com/gongdel/promptview/internal/app/service"
)

// PromptDeps groups dependencies required by prompt handlers.
type PromptDeps struct {
	Logger        *zap.Logger
	PromptService service.PromptService
}

// PromptHandler implements the prompt management endpoints. These are thin
// callers around the view subsystem's content entity.
type PromptHandler struct {
	logger  *zap.Logger
	prompts service.PromptService
}

// NewPromptHandler creates a prompt handler with the provided dependencies.
func NewPromptHandler(deps PromptDeps) *PromptHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptHandler{
		logger:  logger,
		prompts: deps.PromptService,
	}
}

// Register wires prompt routes onto the provided router.
func (h *PromptHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		prompts := api.Group("/prompts")
		{
			prompts.Post("/", h.CreatePrompt)
			prompts.Get("/", h.ListPrompts)
			prompts.Get("/:uuid", h.GetPrompt)
		}
	}
}

// CreatePromptRequest represents the request body for creating a prompt.
type CreatePromptRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

// PromptResponse represents a prompt in API responses.
type PromptResponse struct {
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPromptResponse(p *model.Prompt) PromptResponse {
	return PromptResponse{
		UUID:        p.UUID.String(),
		Title:       p.Title,
		Content:     p.Content,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

// CreatePrompt handles POST /api/prompts
func (h *PromptHandler) CreatePrompt(c *fiber.Ctx) error {
	var req CreatePromptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title is required",
		})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content is required",
		})
	}

	prompt, err := h.prompts.CreatePrompt(userContext(c), service.CreatePromptInput{
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("failed to create prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create prompt",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toPromptResponse(prompt))
}

// ListPrompts handles GET /api/prompts
func (h *PromptHandler) ListPrompts(c *fiber.Ctx) error {
	limit := 20
	offset := 0

	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	prompts, err := h.prompts.ListPrompts(userContext(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list prompts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list prompts",
		})
	}

	response := make([]PromptResponse, len(prompts))
	for i := range prompts {
		response[i] = toPromptResponse(&prompts[i])
	}

	return c.JSON(fiber.Map{
		"prompts": response,
		"limit":   limit,
		"offset":  offset,
		"count":   len(response),
	})
}

// GetPrompt handles GET /api/prompts/:uuid
func (h *PromptHandler) GetPrompt(c *fiber.Ctx) error {
	promptUUID, ok := parsePromptUUID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid prompt uuid",
		})
	}

	prompt, err := h.prompts.GetPrompt(userContext(c), promptUUID)
	if err != nil {
		if errors.Is(err, repository.ErrPromptNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "prompt not found",
			})
		}
		h.logger.Error("failed to get prompt", zap.Error(err), zap.String("uuid", promptUUID.String()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get prompt",
		})
	}

	return c.JSON(toPromptResponse(prompt))
}
