package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusUp       = "UP"
	statusDown     = "DOWN"
	statusDegraded = "DEGRADED"
)

// Check is a named dependency probe. A failing critical check takes readiness down; a
// failing non-critical one only marks it degraded.
type Check struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

type Handler struct {
	checks  []Check
	timeout time.Duration
}

func NewHandler(checks ...Check) *Handler {
	return &Handler{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusUp})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := statusUp
	components := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			components[check.Name] = statusDown
			if check.Critical {
				status = statusDown
			} else if status == statusUp {
				status = statusDegraded
			}
			continue
		}
		components[check.Name] = statusUp
	}

	code := http.StatusOK
	if status == statusDown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "components": components})
}
