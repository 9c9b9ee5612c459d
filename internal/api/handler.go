package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/circadia/internal/logger"
	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/render"
	"github.com/rewired-gh/circadia/internal/session"
	"github.com/rewired-gh/circadia/internal/view"
)

// Handler serves profiles and per-session view state
type Handler struct {
	store       *session.Store
	chartWidth  int
	chartHeight int
}

// NewHandler creates a new handler
func NewHandler(store *session.Store, chartWidth, chartHeight int) *Handler {
	return &Handler{store: store, chartWidth: chartWidth, chartHeight: chartHeight}
}

// StateView is the JSON form of view.State
type StateView struct {
	Filters []models.Phase `json:"filters"`
	Zoom    *models.Window `json:"zoom"`
	Metric  models.Metric  `json:"metric"`
}

// Snapshot is everything a renderer needs to redraw one session
type Snapshot struct {
	SessionID string            `json:"session_id"`
	State     StateView         `json:"state"`
	Visible   []*models.Profile `json:"visible"`
	Range     view.Range        `json:"range"`
	Warning   string            `json:"warning,omitempty"`
}

func snapshot(id string, c *view.Controller) Snapshot {
	s := c.State()
	rng, warn := c.ValueRange()
	snap := Snapshot{
		SessionID: id,
		State:     StateView{Filters: s.Filters.Phases(), Zoom: s.Zoom, Metric: s.Metric},
		Visible:   c.VisibleProfiles(),
		Range:     rng,
	}
	if snap.Visible == nil {
		snap.Visible = []*models.Profile{}
	}
	if warn != nil {
		snap.Warning = warn.Error()
	}
	return snap
}

// respond runs fn on the session named in the path and replies with the
// resulting snapshot.
func (h *Handler) respond(c *gin.Context, fn func(ctrl *view.Controller)) {
	id := c.Param("id")
	var snap Snapshot
	err := h.store.With(id, func(ctrl *view.Controller) error {
		if fn != nil {
			fn(ctrl)
		}
		snap = snapshot(id, ctrl)
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	success(c, snap)
}

// ListProfiles handles GET /api/v1/profiles
func (h *Handler) ListProfiles(c *gin.Context) {
	profiles := h.store.Profiles()
	name := c.Query("metric")
	if name == "" {
		success(c, gin.H{"data": profiles, "count": len(profiles)})
		return
	}

	metric, ok := models.ParseMetric(name)
	if !ok {
		fail(c, http.StatusBadRequest, "unknown metric: "+name)
		return
	}
	filtered := []models.Profile{}
	for _, p := range profiles {
		if p.Metric == metric {
			filtered = append(filtered, p)
		}
	}
	success(c, gin.H{"data": filtered, "count": len(filtered)})
}

// CreateSession handles POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	id := h.store.Create()
	logger.Debug("Created view session %s (%d live)", id, h.store.Len())
	c.Params = append(c.Params, gin.Param{Key: "id", Value: id})
	h.respond(c, nil)
}

// GetSession handles GET /api/v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	h.respond(c, nil)
}

// DeleteSession handles DELETE /api/v1/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	success(c, nil)
}

// ToggleFilter handles POST /api/v1/sessions/:id/filters/:key/toggle
func (h *Handler) ToggleFilter(c *gin.Context) {
	key := c.Param("key")
	h.respond(c, func(ctrl *view.Controller) { ctrl.ToggleFilter(key) })
}

type brushRequest struct {
	Start *int `json:"start" binding:"required"`
	End   *int `json:"end" binding:"required"`
}

// Brush handles POST /api/v1/sessions/:id/brush
func (h *Handler) Brush(c *gin.Context) {
	var req brushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid brush: "+err.Error())
		return
	}
	h.respond(c, func(ctrl *view.Controller) {
		ctrl.Brush(models.MinuteOfDay(*req.Start), models.MinuteOfDay(*req.End))
	})
}

// ResetZoom handles POST /api/v1/sessions/:id/zoom/reset
func (h *Handler) ResetZoom(c *gin.Context) {
	h.respond(c, func(ctrl *view.Controller) { ctrl.ResetZoom() })
}

// Reset handles POST /api/v1/sessions/:id/reset
func (h *Handler) Reset(c *gin.Context) {
	h.respond(c, func(ctrl *view.Controller) { ctrl.Reset() })
}

type metricRequest struct {
	Metric string `json:"metric" binding:"required"`
}

// SetMetric handles PUT /api/v1/sessions/:id/metric
func (h *Handler) SetMetric(c *gin.Context) {
	var req metricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid metric: "+err.Error())
		return
	}
	if _, ok := models.ParseMetric(req.Metric); !ok {
		fail(c, http.StatusBadRequest, "unknown metric: "+req.Metric)
		return
	}
	h.respond(c, func(ctrl *view.Controller) { ctrl.SetMetric(req.Metric) })
}

// Tooltip handles GET /api/v1/sessions/:id/tooltip?minute=
func (h *Handler) Tooltip(c *gin.Context) {
	minute, err := strconv.Atoi(c.Query("minute"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid minute parameter")
		return
	}

	var tip view.Tooltip
	var tipErr error
	err = h.store.With(c.Param("id"), func(ctrl *view.Controller) error {
		tip, tipErr = ctrl.Tooltip(models.MinuteOfDay(minute))
		return nil
	})
	if err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	if tipErr != nil {
		fail(c, http.StatusBadRequest, tipErr.Error())
		return
	}
	success(c, tip)
}

// Chart handles GET /api/v1/sessions/:id/chart.png
func (h *Handler) Chart(c *gin.Context) {
	var buf bytes.Buffer
	var renderErr error
	err := h.store.With(c.Param("id"), func(ctrl *view.Controller) error {
		s := ctrl.State()
		rng, _ := ctrl.ValueRange()
		renderErr = render.RenderPNG(&buf, render.Input{
			Profiles: ctrl.VisibleProfiles(),
			Range:    rng,
			Zoom:     s.Zoom,
			Metric:   s.Metric,
			Width:    h.chartWidth,
			Height:   h.chartHeight,
		})
		return nil
	})
	if err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(renderErr, render.ErrNothingToDraw) {
		c.Status(http.StatusNoContent)
		return
	}
	if renderErr != nil {
		logger.Error("Chart render failed: %v", renderErr)
		fail(c, http.StatusInternalServerError, "failed to render chart")
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
