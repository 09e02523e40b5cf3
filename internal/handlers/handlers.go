// Package handlers exposes the scheduling engine over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/metrics"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/notifier"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/optimizer"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/schedules"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/workers"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/api/almanac"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

// AlmanacHandlers carries the dependencies of the HTTP layer
type AlmanacHandlers struct {
	manager      *schedules.Manager
	orchestrator *optimizer.Orchestrator
	profiles     *timing.Store
	hub          *notifier.Hub
	pool         *workers.Pool
	metrics      *metrics.Metrics
	logger       logging.Logger
}

// NewAlmanacHandlers creates the handler set
func NewAlmanacHandlers(manager *schedules.Manager, orchestrator *optimizer.Orchestrator, profiles *timing.Store, hub *notifier.Hub, pool *workers.Pool, serviceMetrics *metrics.Metrics, logger logging.Logger) *AlmanacHandlers {
	return &AlmanacHandlers{
		manager:      manager,
		orchestrator: orchestrator,
		profiles:     profiles,
		hub:          hub,
		pool:         pool,
		metrics:      serviceMetrics,
		logger:       logger,
	}
}

// RegisterRoutes attaches all API routes to the router
func (h *AlmanacHandlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/recommendations", h.GetRecommendations)
	router.POST("/schedules", h.CreateSchedule)
	router.GET("/schedules/:id", h.GetSchedule)
	router.POST("/schedules/:id/optimize", h.OptimizeSchedule)
	router.POST("/schedules/:id/cancel", h.CancelSchedule)
	router.POST("/optimize", h.OptimizeAdHoc)
	router.GET("/trials/:id", h.GetTrial)
	router.GET("/items/:id", h.GetItem)
	router.POST("/items/:id/result", h.ReportItemResult)
	router.GET("/ws", h.HandleWebSocket)
}

// GetRecommendations returns scored posting slots inside a window.
// Query parameters: platforms (comma separated), window_start, window_end
// (RFC3339), step_minutes, content_type, audience (URL-encoded JSON), limit,
// cursor.
func (h *AlmanacHandlers) GetRecommendations(c *gin.Context) {
	req := &optimizer.RecommendRequest{
		ContentType: c.Query("content_type"),
	}

	if raw := c.Query("platforms"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			req.Platforms = append(req.Platforms, scheduling.Platform(strings.TrimSpace(name)))
		}
	}

	var err error
	if req.WindowStart, err = parseTime(c.Query("window_start")); err != nil {
		h.respondError(c, scheduling.NewValidationError("invalid window_start: %v", err))
		return
	}
	if req.WindowEnd, err = parseTime(c.Query("window_end")); err != nil {
		h.respondError(c, scheduling.NewValidationError("invalid window_end: %v", err))
		return
	}
	if raw := c.Query("step_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(c, scheduling.NewValidationError("invalid step_minutes"))
			return
		}
		req.Step = time.Duration(minutes) * time.Minute
	}
	if raw := c.Query("audience"); raw != "" {
		var audience timing.AudienceProfile
		if err := json.Unmarshal([]byte(raw), &audience); err != nil {
			h.respondError(c, scheduling.NewValidationError("invalid audience: %v", err))
			return
		}
		req.Audience = &audience
	}

	page, err := h.parsePage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	slots, next, err := h.orchestrator.Recommend(c.Request.Context(), req, page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecommendationQueries.With(prometheus.Labels{"status": "ok"}).Inc()
	}

	versions := make(map[string]string)
	snap := h.profiles.Snapshot()
	for _, platform := range req.Platforms {
		versions[string(platform)] = snap.Version(platform)
	}

	c.JSON(http.StatusOK, almanac.RecommendationsResponse{
		Slots:           slots,
		ProfileVersions: versions,
		NextCursor:      next,
	})
}

// CreateSchedule registers a new schedule with its items
func (h *AlmanacHandlers) CreateSchedule(c *gin.Context) {
	var req schedules.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, scheduling.NewValidationError("invalid request body: %v", err))
		return
	}

	schedule, items, err := h.manager.Create(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SchedulesCreated.With(prometheus.Labels{"timezone": schedule.Timezone}).Inc()
	}

	c.JSON(http.StatusCreated, almanac.ScheduleResponse{
		Schedule: schedule,
		Items:    items,
	})
}

// GetSchedule returns a schedule and one page of its items
func (h *AlmanacHandlers) GetSchedule(c *gin.Context) {
	page, err := h.parsePage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	schedule, items, next, err := h.manager.Get(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, almanac.ScheduleResponse{
		Schedule:   schedule,
		Items:      items,
		NextCursor: next,
	})
}

// optimizeBody is the request body shared by both optimize endpoints
type optimizeBody struct {
	ItemIDs     []string                `json:"item_ids,omitempty"`
	Constraints json.RawMessage         `json:"constraints,omitempty"`
	Audience    *timing.AudienceProfile `json:"audience,omitempty"`
	Apply       bool                    `json:"apply"`
}

// OptimizeSchedule runs an optimization trial over a schedule's open items
func (h *AlmanacHandlers) OptimizeSchedule(c *gin.Context) {
	scheduleID := c.Param("id")
	h.runOptimize(c, &scheduleID)
}

// OptimizeAdHoc previews an optimization over explicit item targets
func (h *AlmanacHandlers) OptimizeAdHoc(c *gin.Context) {
	h.runOptimize(c, nil)
}

func (h *AlmanacHandlers) runOptimize(c *gin.Context, scheduleID *string) {
	var body optimizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, scheduling.NewValidationError("invalid request body: %v", err))
		return
	}

	req := &optimizer.OptimizeRequest{
		ScheduleID: scheduleID,
		ItemIDs:    body.ItemIDs,
		Audience:   body.Audience,
		Apply:      body.Apply,
	}
	if len(body.Constraints) > 0 {
		if err := json.Unmarshal(body.Constraints, &req.Constraints); err != nil {
			h.respondError(c, scheduling.NewValidationError("invalid constraints: %v", err))
			return
		}
	}

	started := time.Now()
	var trial *scheduling.OptimizationTrial
	err := h.pool.Do(c.Request.Context(), func(ctx context.Context) error {
		var solveErr error
		trial, solveErr = h.orchestrator.Optimize(ctx, req)
		return solveErr
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.OptimizationRuns.With(prometheus.Labels{"applied": strconv.FormatBool(body.Apply), "status": "error"}).Inc()
		}
		h.respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.OptimizationRuns.With(prometheus.Labels{"applied": strconv.FormatBool(trial.Applied), "status": "ok"}).Inc()
		h.metrics.OptimizationDuration.With(prometheus.Labels{"applied": strconv.FormatBool(trial.Applied)}).Observe(time.Since(started).Seconds())
		if trial.Metrics.ItemsUnschedulable > 0 {
			h.metrics.ItemsUnschedulable.With(prometheus.Labels{}).Add(float64(trial.Metrics.ItemsUnschedulable))
		}
	}

	c.JSON(http.StatusOK, almanac.TrialResponse{Trial: trial})
}

// CancelSchedule cooperatively cancels a schedule
func (h *AlmanacHandlers) CancelSchedule(c *gin.Context) {
	schedule, err := h.manager.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.StateTransitions.With(prometheus.Labels{"to": string(schedule.State)}).Inc()
	}

	c.JSON(http.StatusOK, almanac.ScheduleResponse{Schedule: schedule})
}

// GetTrial returns a stored optimization trial
func (h *AlmanacHandlers) GetTrial(c *gin.Context) {
	trial, err := h.orchestrator.GetTrial(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, almanac.TrialResponse{Trial: trial})
}

// GetItem returns one schedule item
func (h *AlmanacHandlers) GetItem(c *gin.Context) {
	item, err := h.manager.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, almanac.ItemResponse{Item: item})
}

// ReportItemResult records a publish worker outcome for an item
func (h *AlmanacHandlers) ReportItemResult(c *gin.Context) {
	var req almanac.ItemResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, scheduling.NewValidationError("invalid request body: %v", err))
		return
	}

	var itemErr *scheduling.ItemError
	if req.Error != nil {
		itemErr = &scheduling.ItemError{
			Code:       req.Error.Code,
			Message:    req.Error.Message,
			OccurredAt: time.Now().UTC(),
		}
	}

	item, err := h.manager.ReportItemResult(c.Request.Context(), c.Param("id"), scheduling.ItemState(req.Outcome), itemErr)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ItemsReported.With(prometheus.Labels{"outcome": string(item.State)}).Inc()
	}

	c.JSON(http.StatusOK, almanac.ItemResponse{Item: item})
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *AlmanacHandlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// HandleNotFound returns a JSON 404 for unknown routes
func (h *AlmanacHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, almanac.ErrorResponse{
		Error: "route not found",
		Code:  string(scheduling.CodeNotFound),
	})
}

func (h *AlmanacHandlers) parsePage(c *gin.Context) (*pagination.Params, error) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, scheduling.NewValidationError("invalid limit")
		}
		limit = parsed
	}
	page, err := pagination.Parse(limit, c.Query("cursor"))
	if err != nil {
		return nil, scheduling.NewValidationError("invalid cursor")
	}
	return page, nil
}

func (h *AlmanacHandlers) respondError(c *gin.Context, err error) {
	typed := scheduling.AsError(err)
	status := statusOf(typed.Code)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, almanac.ErrorResponse{
		Error:   typed.Message,
		Code:    string(typed.Code),
		Details: typed.Details,
	})
}

func statusOf(code scheduling.ErrorCode) int {
	switch code {
	case scheduling.CodeValidation:
		return http.StatusBadRequest
	case scheduling.CodeNotFound:
		return http.StatusNotFound
	case scheduling.CodeConflict:
		return http.StatusConflict
	case scheduling.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}
