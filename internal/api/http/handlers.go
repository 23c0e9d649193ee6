package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/id"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/utils"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// Bridge is the supervisor surface the API drives
type Bridge interface {
	RunCode(ctx context.Context, code string) (string, error)
	ResolveDialog(ctx context.Context, dialogID string, ans dialog.Answer) error
	CurrentDialog(ctx context.Context) (dialog.Pending, bool, error)
	Dialogs(ctx context.Context) ([]dialog.Pending, error)
	Recycle(ctx context.Context) error
	Clear(ctx context.Context) error
	Status(ctx context.Context) (bridge.Status, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	bridge   Bridge
	registry *execution.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(b Bridge, registry *execution.Registry, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		bridge:   b,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Runs
	r.POST("/runs", h.RunCode)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)

	// Console view
	r.GET("/console", h.Console)
	r.DELETE("/console", h.ClearConsole)
	r.PUT("/console/mode", h.SetMode)
	r.POST("/console/mode/toggle", h.ToggleMode)

	// Dialogs
	r.GET("/dialogs", h.ListDialogs)
	r.GET("/dialogs/current", h.CurrentDialog)
	r.POST("/dialogs/:id/resolve", h.ResolveDialog)

	// Sandbox
	r.POST("/sandbox/recycle", h.Recycle)
	r.GET("/sandbox/status", h.SandboxStatus)
	r.GET("/stats", h.Stats)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Sandbox Bridge",
		"version": Version,
	})
}

// Health reports whether a realm is bound
func (h *Handlers) Health(c *gin.Context) {
	st, err := h.bridge.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	status := "healthy"
	if !st.Bound {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"realm_id":   st.RealmID,
		"generation": st.Generation,
		"breaker":    st.Breaker,
	})
}

// RunRequest is the body of POST /runs
type RunRequest struct {
	Code string `json:"code"`
}

// RunCode starts a run
func (h *Handlers) RunCode(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := utils.ValidateCode(req.Code); err != nil {
		h.fail(c, err)
		return
	}

	runID, err := h.bridge.RunCode(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// ListRuns returns every run in creation order
func (h *Handlers) ListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"runs":  h.registry.Runs(),
		"count": h.registry.Len(),
	})
}

// GetRun returns one run
func (h *Handlers) GetRun(c *gin.Context) {
	runID := c.Param("id")
	if err := utils.ValidateID(runID, "run_id", true); err != nil {
		h.fail(c, err)
		return
	}

	if !id.IsPrefixed(runID, id.RunPrefix) {
		h.fail(c, fmt.Errorf("%w: run_id is not a run id", utils.ErrValidation))
		return
	}

	run, ok := h.registry.Run(runID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// Console returns the message view. ?mode overrides the registry's mode
// for this read only.
func (h *Handlers) Console(c *gin.Context) {
	mode := h.registry.DisplayMode()
	if raw := c.Query("mode"); raw != "" {
		parsed, err := execution.ParseDisplayMode(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		mode = parsed
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    mode,
		"entries": h.registry.ViewMode(mode),
	})
}

// ClearConsole removes every run
func (h *Handlers) ClearConsole(c *gin.Context) {
	if err := h.bridge.Clear(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ModeRequest is the body of PUT /console/mode
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode changes the default display mode
func (h *Handlers) SetMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.registry.SetDisplayMode(execution.DisplayMode(req.Mode)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.registry.DisplayMode()})
}

// ToggleMode flips between all and lastOnly
func (h *Handlers) ToggleMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.registry.ToggleDisplayMode()})
}

// ListDialogs returns the dialog queue, presented dialog first
func (h *Handlers) ListDialogs(c *gin.Context) {
	queue, err := h.bridge.Dialogs(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dialogs": queue})
}

// CurrentDialog returns the presented dialog or null
func (h *Handlers) CurrentDialog(c *gin.Context) {
	current, ok, err := h.bridge.CurrentDialog(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"dialog": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dialog": current})
}

// ResolveRequest is the body of POST /dialogs/:id/resolve
type ResolveRequest struct {
	Value     *string `json:"value"`
	Confirmed bool    `json:"confirmed"`
}

// ResolveDialog answers the presented dialog
func (h *Handlers) ResolveDialog(c *gin.Context) {
	dialogID := c.Param("id")
	if err := utils.ValidateID(dialogID, "dialog_id", true); err != nil {
		h.fail(c, err)
		return
	}

	var req ResolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if err := utils.ValidateAnswer(req.Value); err != nil {
		h.fail(c, err)
		return
	}

	err := h.bridge.ResolveDialog(c.Request.Context(), dialogID, dialog.Answer{
		Value:     req.Value,
		Confirmed: req.Confirmed,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dialog_id": dialogID})
}

// Recycle replaces the realm
func (h *Handlers) Recycle(c *gin.Context) {
	if err := h.bridge.Recycle(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.SandboxStatus(c)
}

// SandboxStatus returns the supervisor status
func (h *Handlers) SandboxStatus(c *gin.Context) {
	st, err := h.bridge.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Stats combines registry statistics with process counters
func (h *Handlers) Stats(c *gin.Context) {
	resp := gin.H{"registry": h.registry.Stats()}
	if h.metrics != nil {
		resp["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}
