package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weibaohui/decision-council/internal/service/orchestrator"
)

type statusProvider interface {
	GetStatus() *orchestrator.Status
}

type HealthHandler struct {
	backend string
	status  statusProvider
}

func NewHealthHandler(backend string, status statusProvider) *HealthHandler {
	return &HealthHandler{backend: backend, status: status}
}

// Health GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok", "backend": h.backend}
	if h.status != nil {
		resp["orchestrator"] = h.status.GetStatus()
	}
	c.JSON(http.StatusOK, resp)
}
