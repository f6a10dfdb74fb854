package server

import (
	"errors"
	"net/http"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// errorResponse is the uniform error envelope. Validation failures enumerate
// every violated field so producers can fix their payload in one round trip.
type errorResponse struct {
	Status  string                   `json:"status"`
	Message string                   `json:"message,omitempty"`
	Errors  []domain.ValidationError `json:"errors,omitempty"`
}

// ErrorHandlingMiddleware turns errors recorded on the gin context into the
// uniform JSON envelope, after the handler chain has run.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidJSONError() error {
	return &domain.ValidationErrors{
		Errors: []domain.ValidationError{
			{
				Field:   "body",
				Code:    "invalid_json",
				Message: "request body must be a json object",
			},
		},
	}
}

func mapError(err error) (int, errorResponse) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Message: "internal server error",
		}
	case errors.Is(err, domain.ErrMissingCompanyName):
		return http.StatusUnprocessableEntity, errorResponse{
			Status: "error",
			Errors: []domain.ValidationError{
				{
					Field:   "company_name",
					Code:    "missing_company_name",
					Message: "company_name must not be blank",
				},
			},
		}
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorResponse{
			Status:  "error",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{
			Status:  "error",
			Message: "service unavailable",
		}
	}

	if vErr := domain.AsValidationErrors(err); vErr != nil {
		return http.StatusUnprocessableEntity, errorResponse{
			Status: "error",
			Errors: vErr.Errors,
		}
	}

	return http.StatusInternalServerError, errorResponse{
		Status:  "error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code fields.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, domain.ErrMissingCompanyName):
		return "validation_error", "missing_company_name"
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return "not_found", "not_found"
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable", "service_unavailable"
	}

	if vErr := domain.AsValidationErrors(err); vErr != nil {
		code := "validation_error"
		if len(vErr.Errors) > 0 {
			code = vErr.Errors[0].Code
		}
		return "validation_error", code
	}

	return "internal_error", "internal_error"
}
