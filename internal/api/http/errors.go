package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/utils"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrValidation), errors.Is(err, execution.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, dialog.ErrUnknownDialog):
		return http.StatusNotFound
	case errors.Is(err, dialog.ErrNotPresented):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrClosed), errors.Is(err, bridge.ErrNoRealm):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
