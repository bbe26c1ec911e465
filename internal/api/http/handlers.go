package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/history"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/config"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/bashautom/internal/process"
	"github.com/GriffinCanCode/bashautom/internal/registry"
	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *registry.Registry
	history  *history.Store
	profiles *config.ProfileStore
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	started  time.Time
}

// NewHandlers creates a new handler set. metrics and profiles may be nil.
func NewHandlers(
	reg *registry.Registry,
	hist *history.Store,
	profiles *config.ProfileStore,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profiles == nil {
		profiles, _ = config.NewProfileStore("", logger)
	}
	return &Handlers{
		registry: reg,
		history:  hist,
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
		started:  time.Now(),
	}
}

// Root reports the service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "bashautom",
		"version": Version,
	})
}

// Health reports registry and breaker state.
func (h *Handlers) Health(c *gin.Context) {
	breaker := h.registry.Breaker().Status()
	status := "healthy"
	if breaker.State != resilience.StateClosed {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"sessions": gin.H{
			"registered": h.registry.Len(),
			"alive":      len(h.registry.Active()),
		},
		"spawn_breaker": breaker,
		"uptime":        time.Since(h.started).Round(time.Second).String(),
	})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, config.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, shell.ErrInvalidName),
		errors.Is(err, shell.ErrInvalidValue),
		errors.Is(err, process.ErrUnknownSignal),
		errors.Is(err, shell.ErrInvalidTimeout),
		errors.Is(err, history.ErrUnknownCompression):
		return http.StatusBadRequest
	case errors.Is(err, shell.ErrStateQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrSpawnCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, shell.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON with its mapped status.
func (h *Handlers) respondError(c *gin.Context, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// badRequest writes a 400 with msg.
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// session resolves the :name parameter.
func (h *Handlers) session(c *gin.Context) (*shell.Session, bool) {
	s, err := h.registry.Get(c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}
