package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status   string          `json:"status"`
	Database componentHealth `json:"database"`
	Redis    componentHealth `json:"redis"`
}

type componentHealth struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Health reports process liveness. Any failing dependency check degrades the
// service and turns the response non-2xx.
func (s *Server) Health(c *gin.Context) {
	ctx := c.Request.Context()

	resp := healthResponse{Status: "ok"}

	if err := s.repo.Ping(ctx); err != nil {
		resp.Database = componentHealth{Connected: false, Error: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Database.Connected = true
	}

	if s.channel != nil {
		if err := s.channel.Ping(ctx); err != nil {
			resp.Redis = componentHealth{Connected: false, Error: err.Error()}
			resp.Status = "degraded"
		} else {
			resp.Redis.Connected = true
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
