package job

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// RegisterRoutes mounts the admin job endpoints on r.
func (h *JobHandler) RegisterRoutes(r gin.IRouter) {
	jobs := r.Group("/jobs")
	jobs.POST("", h.Create)
	jobs.GET("", h.List)
	jobs.DELETE("", h.Clear)
	jobs.GET("/stats", h.Stats)
	jobs.GET("/stuck", h.Stuck)
	jobs.GET("/:id", h.Get)
	jobs.POST("/:id/cancel", h.Cancel)
	jobs.POST("/:id/force-cancel", h.ForceCancel)
	jobs.POST("/:id/retrigger", h.Retrigger)
}

func jobID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID").Wrap(common.ErrValidation))
		return "", false
	}
	return id, true
}

// Create handles HTTP requests for enqueuing a new job and returns HTTP 201
// with the new job's id.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	id, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, dto.JobCreatedDTO{ID: id})
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJobStatus(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles paginated job listing filtered by status, type and order.
func (h *JobHandler) List(c *gin.Context) {
	var filter dto.JobFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid query: %v", err).Wrap(common.ErrValidation))
		return
	}

	resp, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Stats handles dashboard counts for the trailing ?hours window.
func (h *JobHandler) Stats(c *gin.Context) {
	hours := 0
	if raw := c.Query("hours"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.Error(common.Errf(http.StatusBadRequest, "hours must be a positive integer").Wrap(common.ErrValidation))
			return
		}
		hours = v
	}

	resp, err := h.service.GetJobStats(c.Request.Context(), hours)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Stuck lists processing jobs older than ?older_than (default 30m).
func (h *JobHandler) Stuck(c *gin.Context) {
	olderThan := 30 * time.Minute
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.Error(common.Errf(http.StatusBadRequest, "older_than must be a positive duration").Wrap(common.ErrValidation))
			return
		}
		olderThan = d
	}

	jobs, err := h.service.ListStuckJobs(c.Request.Context(), olderThan)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Cancel cancels a pending job. HTTP 409 means the job had already started
// or finished.
func (h *JobHandler) Cancel(c *gin.Context) {
	h.cancel(c, h.service.CancelJob)
}

// ForceCancel cancels a processing job whose worker is presumed dead.
func (h *JobHandler) ForceCancel(c *gin.Context) {
	h.cancel(c, h.service.ForceCancelJob)
}

func (h *JobHandler) cancel(c *gin.Context, apply func(context.Context, string) (bool, error)) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	cancelled, err := apply(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if !cancelled {
		status = http.StatusConflict
	}
	c.JSON(status, dto.CancelResultDTO{ID: id, Cancelled: cancelled})
}

// Retrigger clones a failed or cancelled job and returns HTTP 201 with the
// new job's id.
func (h *JobHandler) Retrigger(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	newID, err := h.service.RetriggerJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.RetriggerResultDTO{NewJobID: newID})
}

// Clear purges jobs by repeated ?status= parameters. Without any status the
// terminal jobs are purged.
func (h *JobHandler) Clear(c *gin.Context) {
	raw := c.QueryArray("status")
	statuses := make([]config.JobStatus, len(raw))
	for i, s := range raw {
		statuses[i] = config.JobStatus(s)
	}

	deleted, err := h.service.ClearJobs(c.Request.Context(), statuses)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ClearResultDTO{DeletedCount: deleted})
}
