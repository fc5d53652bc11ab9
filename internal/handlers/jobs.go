package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/services"
)

type JobHandler struct {
	log  *logger.Logger
	jobs services.JobService
}

func NewJobHandler(baseLog *logger.Logger, jobs services.JobService) *JobHandler {
	return &JobHandler{
		log:  baseLog.With("handler", "JobHandler"),
		jobs: jobs,
	}
}

func (h *JobHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "无效的任务 ID")
		return
	}
	job, err := h.jobs.GetByIDForOwner(c.Request.Context(), userID, jobID)
	if err != nil {
		h.log.Error("get job failed", "job_id", jobID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取任务失败")
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "任务不存在")
		return
	}
	RespondOK(c, http.StatusOK, job)
}

// Latest returns the most recent job for an entity. With `wait` set it
// long-polls: the call returns early when the job changes after `since` or
// reaches a terminal state, and after the wait elapses otherwise.
func (h *JobHandler) Latest(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	entityType := c.Query("entity_type")
	jobType := c.Query("job_type")
	entityID, err := uuid.Parse(c.Query("entity_id"))
	if err != nil || entityType == "" {
		RespondError(c, http.StatusBadRequest, "请提供 entity_type 与 entity_id")
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "无效的 since 时间戳")
			return
		}
		since = parsed
	}
	wait := time.Duration(0)
	if raw := c.Query("wait"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			RespondError(c, http.StatusBadRequest, "无效的 wait 参数")
			return
		}
		wait = time.Duration(secs) * time.Second
	}

	job, err := h.jobs.WaitForChange(c.Request.Context(), userID, entityType, entityID, jobType, since, wait)
	if err != nil {
		h.log.Error("poll latest job failed", "entity_id", entityID, "error", err)
		RespondError(c, http.StatusInternalServerError, "查询任务失败")
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "任务不存在")
		return
	}
	RespondOK(c, http.StatusOK, job)
}
