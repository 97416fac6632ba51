// Operational endpoints: GET / and GET /health.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Stelgent API is running"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status" example:"healthy"`
	Database  string `json:"database,omitempty" example:"connected"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Root godoc
// @ID          root
// @Summary     API status
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.StatusResponse
// @Router      / [get]
func (h *Handlers) Root(c *gin.Context) {
	ok(c, http.StatusOK, StatusResponse{Status: "ok", Message: "Stelgent API is running"})
}

// Health godoc
// @ID          health
// @Summary     Health check
// @Description Pings the database.
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			ok(c, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
			return
		}
	}
	ok(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
