package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stats returns the aggregate bundle plus backend liveness signals.
func (s *Server) Stats(c *gin.Context) {
	resp, err := s.eventSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
