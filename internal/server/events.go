package server

import (
	"net/http"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"github.com/gin-gonic/gin"
)

// IngestEvent accepts one raw bankruptcy payload and runs it through the
// pipeline. Payloads that omit a source are attributed to manual entry.
func (s *Server) IngestEvent(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		AbortWithError(c, invalidJSONError())
		return
	}

	stored, err := s.eventSvc.Ingest(c.Request.Context(), domain.IngestRequest{
		Payload:        raw,
		FallbackSource: domain.SourceManual,
		Path:           metrics.PathEndpoint,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, stored)
}

// ListEvents returns a filtered page of stored events, newest detection first.
func (s *Server) ListEvents(c *gin.Context) {
	var req domain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidQueryError())
		return
	}

	resp, err := s.eventSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func invalidQueryError() error {
	return &domain.ValidationErrors{
		Errors: []domain.ValidationError{
			{
				Field:   "query",
				Code:    "invalid_query",
				Message: "query parameters could not be parsed",
			},
		},
	}
}
