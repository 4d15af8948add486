package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/scriptreel/api/internal/model"
	"github.com/scriptreel/api/internal/service"
	"github.com/scriptreel/api/pkg/response"
)

type RenderHandler struct {
	service   *service.RenderJobService
	validator *validator.Validate
}

func NewRenderHandler(svc *service.RenderJobService, v *validator.Validate) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/render/jobs
// @Summary      Create render job
// @Description  Register a new render job for an approved script
// @Tags         Render
// @Accept       json
// @Produce      json
// @Param        request body model.CreateJobRequest true "Job creation request"
// @Success      201 {object} model.CreateJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/jobs [post]
func (h *RenderHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.Create(c.Context(), req.VideoID, req.ScriptID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Created(c, model.CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

// Start handles POST /api/render/jobs/:jobId/start
// @Summary      Start render job
// @Description  Freeze the render spec and schedule pipeline execution. Idempotent.
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      202 {object} model.JobActionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/jobs/{jobId}/start [post]
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Start(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, model.JobActionResponse{JobID: job.ID, Status: job.Status})
}

// Retry handles POST /api/render/jobs/:jobId/retry
// @Summary      Retry render job
// @Description  Re-run a finished job against its stored render spec
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      202 {object} model.JobActionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/jobs/{jobId}/retry [post]
func (h *RenderHandler) Retry(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Retry(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, model.JobActionResponse{JobID: job.ID, Status: job.Status})
}

// Cancel handles POST /api/render/jobs/:jobId/cancel
// @Summary      Cancel render job
// @Description  Request cooperative cancellation of a pending or running job
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobActionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/jobs/{jobId}/cancel [post]
func (h *RenderHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.JobActionResponse{JobID: job.ID, Status: job.Status})
}

// Status handles GET /api/render/jobs/:jobId
// @Summary      Get render job status
// @Description  Get the current status, progress and result of a render job
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/render/jobs/{jobId} [get]
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// serviceError maps a typed service error onto the response envelope.
func serviceError(c *fiber.Ctx, err error) error {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return response.Error(c, svcErr.HTTPStatus, svcErr.Code, svcErr.Message, nil)
	}
	return response.ServiceError(c, err.Error())
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
