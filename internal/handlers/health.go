package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/database"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/models"
)

// Version is reported by the deep health check.
const Version = "2.0.0"

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Healthy() error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	geminiConfigured bool
	provider         llm.Provider
	redis            *database.Redis
	events           HealthChecker
}

// NewHealthHandler creates a new health handler. redis and events may be nil.
func NewHealthHandler(geminiConfigured bool, provider llm.Provider, redis *database.Redis, events HealthChecker) *HealthHandler {
	return &HealthHandler{
		geminiConfigured: geminiConfigured,
		provider:         provider,
		redis:            redis,
		events:           events,
	}
}

// Health returns basic health status
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthStatus{
		Status:           "ok",
		GeminiConfigured: h.geminiConfigured,
	})
}

// DeepHealth returns health status with dependency checks
func (h *HealthHandler) DeepHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string)
	allHealthy := true

	// Check Gemini
	if h.geminiConfigured && h.provider != nil {
		candidates, err := h.provider.ListModels(ctx)
		if err != nil {
			deps["gemini"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps["gemini"] = fmt.Sprintf("healthy (%d models)", countGenerative(candidates))
		}
	} else {
		deps["gemini"] = "not configured"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			deps["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps["redis"] = "healthy"
		}
	} else {
		deps["redis"] = "not configured"
	}

	// Check NATS
	if h.events != nil {
		if err := h.events.Healthy(); err != nil {
			deps["nats"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps["nats"] = "healthy"
		}
	} else {
		deps["nats"] = "not configured"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, models.DeepHealthStatus{
		Status:       status,
		Service:      "nowastelife-api",
		Version:      Version,
		Dependencies: deps,
	})
}

func countGenerative(candidates []llm.ModelCandidate) int {
	n := 0
	for _, c := range candidates {
		if c.SupportsGeneration {
			n++
		}
	}
	return n
}
