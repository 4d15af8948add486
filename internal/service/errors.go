package service

import "github.com/gofiber/fiber/v2"

// Error is a caller-visible service error with a stable machine code.
// Handlers map it onto the response envelope via errors.As.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	return e.Message
}

// Synchronous error surface of the job control operations (spec'd codes).
var (
	ErrScriptNotApproved = &Error{"SCRIPT_NOT_APPROVED", "no approved script exists for this script id", fiber.StatusUnprocessableEntity}
	ErrDuplicateJob      = &Error{"DUPLICATE_JOB", "a non-terminal render job already exists for this video", fiber.StatusConflict}
	ErrJobNotFound       = &Error{"JOB_NOT_FOUND", "render job not found", fiber.StatusNotFound}

	ErrScriptNotFound          = &Error{"SCRIPT_NOT_FOUND", "render spec not found for script", fiber.StatusNotFound}
	ErrScriptFetchUnauthorized = &Error{"SCRIPT_FETCH_UNAUTHORIZED", "script authority rejected credentials", fiber.StatusBadGateway}
	ErrScriptFetchServerError  = &Error{"SCRIPT_FETCH_SERVER_ERROR", "script authority unavailable", fiber.StatusBadGateway}
	ErrEmptyRenderSpec         = &Error{"EMPTY_RENDER_SPEC", "render spec has no scenes", fiber.StatusUnprocessableEntity}

	ErrNoRenderSpecForRetry = &Error{"NO_RENDER_SPEC_FOR_RETRY", "job has no stored render spec; it never started successfully", fiber.StatusConflict}
	ErrJobAlreadyRunning    = &Error{"JOB_ALREADY_RUNNING", "job is currently running", fiber.StatusConflict}
	ErrJobCanceled          = &Error{"JOB_CANCELED", "job was canceled; create a new job to resume work", fiber.StatusConflict}
	ErrCannotCancel         = &Error{"CANNOT_CANCEL", "job is in a terminal state and cannot be canceled", fiber.StatusConflict}

	ErrScheduling = &Error{"SCHEDULING_FAILED", "failed to schedule pipeline execution", fiber.StatusInternalServerError}
)
