package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/service/auth"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/task"
)

// Request-level errors raised by the handlers themselves.
var (
	// ErrUnauthorized is returned when a request reaches a handler without an identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRequest wraps malformed bodies, path parameters and query strings.
	ErrInvalidRequest = errors.New("invalid request")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	case errors.Is(err, task.ErrJobNotFound),
		store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, task.ErrJobNotReady),
		store.IsDuplicateError(err):
		return http.StatusConflict

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, task.ErrUnknownTaskType),
		errors.Is(err, task.ErrInvalidSubmission),
		errors.Is(err, task.ErrInvalidFilter),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that never
// includes the underlying error text.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, ErrUnauthorized):
		return "User ID not found or invalid"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, task.ErrJobNotFound),
		store.IsNotFoundError(err):
		return "Job not found"

	case errors.Is(err, task.ErrJobNotReady):
		return "Job has not finished yet"

	case store.IsDuplicateError(err):
		return "Job already exists"

	case errors.Is(err, task.ErrUnknownTaskType):
		return "Unknown task type"

	case errors.Is(err, task.ErrInvalidSubmission):
		return "Invalid job submission"

	case errors.Is(err, task.ErrInvalidFilter):
		return "Invalid job filter"

	case errors.Is(err, ErrInvalidRequest):
		return "Invalid request"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid job data"

	case errors.Is(err, task.ErrQueueClosed):
		return "Service is shutting down"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator output into a short message naming
// the first failing field, e.g. "Invalid task_type: required field".
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}

	fe := verrs[0]
	field := toSnakeCase(fe.Field())
	if msg := validationTagMessage(fe.Tag()); msg != "" {
		return fmt.Sprintf("Invalid %s: %s", field, msg)
	}
	return fmt.Sprintf("Invalid %s", field)
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// toSnakeCase converts a Go field name such as TaskType to task_type.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted error. A non-empty message overrides the safe default.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
