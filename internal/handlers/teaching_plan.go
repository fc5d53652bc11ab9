package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
	"github.com/teachflow/teachflow-backend/internal/services"
)

type TeachingPlanHandler struct {
	log       *logger.Logger
	courses   repos.CourseRepo
	documents repos.CourseDocumentRepo
	jobs      services.JobService
}

func NewTeachingPlanHandler(
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	documents repos.CourseDocumentRepo,
	jobs services.JobService,
) *TeachingPlanHandler {
	return &TeachingPlanHandler{
		log:       baseLog.With("handler", "TeachingPlanHandler"),
		courses:   courses,
		documents: documents,
		jobs:      jobs,
	}
}

type skipSlotRequest struct {
	Week  int `json:"week" binding:"required,min=1"`
	Class int `json:"class" binding:"required,min=1"`
}

type generatePlanRequest struct {
	HourPerClass     int               `json:"hour_per_class" binding:"required,min=1,max=8"`
	TotalWeeks       int               `json:"total_weeks" binding:"required,min=1,max=30"`
	ClassesPerWeek   int               `json:"classes_per_week" binding:"required,min=1,max=7"`
	FirstWeekClasses int               `json:"first_week_classes" binding:"min=0,max=7"`
	FinalReview      bool              `json:"final_review"`
	TeacherName      string            `json:"teacher_name" binding:"max=64"`
	SkipSlots        []skipSlotRequest `json:"skip_slots" binding:"dive"`
}

// Generate queues a teaching-plan build for the course. The heavy work runs
// in the job worker; the response carries the queued (or already running)
// job for the client to follow.
func (h *TeachingPlanHandler) Generate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "无效的课程 ID")
		return
	}
	course, err := h.courses.GetByIDForOwner(c.Request.Context(), nil, userID, courseID)
	if err != nil || course == nil {
		RespondError(c, http.StatusNotFound, "课程不存在")
		return
	}

	var req generatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "排课参数无效，请检查周数与每周上课次数")
		return
	}
	firstWeek := req.FirstWeekClasses
	if firstWeek == 0 {
		firstWeek = req.ClassesPerWeek
	}

	skipSlots := make([]map[string]int, 0, len(req.SkipSlots))
	for _, s := range req.SkipSlots {
		skipSlots = append(skipSlots, map[string]int{"week": s.Week, "class": s.Class})
	}
	payload := map[string]any{
		"course_id":          course.ID.String(),
		"hour_per_class":     req.HourPerClass,
		"total_weeks":        req.TotalWeeks,
		"classes_per_week":   req.ClassesPerWeek,
		"first_week_classes": firstWeek,
		"final_review":       req.FinalReview,
		"teacher_name":       req.TeacherName,
		"skip_slots":         skipSlots,
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), userID,
		domain.JobTypeTeachingPlanBuild, domain.EntityTypeCourse, course.ID, payload)
	if err != nil {
		h.log.Error("enqueue teaching plan job failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "提交生成任务失败")
		return
	}
	RespondOK(c, http.StatusAccepted, job)
}

// GetPlan returns the latest generated teaching plan document.
func (h *TeachingPlanHandler) GetPlan(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "无效的课程 ID")
		return
	}
	course, err := h.courses.GetByIDForOwner(c.Request.Context(), nil, userID, courseID)
	if err != nil || course == nil {
		RespondError(c, http.StatusNotFound, "课程不存在")
		return
	}
	doc, err := h.documents.GetPlan(c.Request.Context(), nil, course.ID)
	if err != nil {
		h.log.Error("get plan document failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取授课计划失败")
		return
	}
	if doc == nil {
		RespondError(c, http.StatusNotFound, "尚未生成授课计划")
		return
	}
	RespondOK(c, http.StatusOK, doc)
}
