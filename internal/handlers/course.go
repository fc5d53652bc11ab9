package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

type CourseHandler struct {
	log       *logger.Logger
	courses   repos.CourseRepo
	documents repos.CourseDocumentRepo
}

func NewCourseHandler(baseLog *logger.Logger, courses repos.CourseRepo, documents repos.CourseDocumentRepo) *CourseHandler {
	return &CourseHandler{
		log:       baseLog.With("handler", "CourseHandler"),
		courses:   courses,
		documents: documents,
	}
}

type courseRequest struct {
	Name          string `json:"name" binding:"required,max=128"`
	Semester      string `json:"semester" binding:"max=64"`
	ClassName     string `json:"class_name" binding:"max=128"`
	TotalHours    int    `json:"total_hours" binding:"required,min=1,max=1000"`
	PracticeHours int    `json:"practice_hours" binding:"min=0"`
	CourseCatalog string `json:"course_catalog"`
}

func (h *CourseHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "课程参数无效")
		return
	}
	if req.PracticeHours > req.TotalHours {
		RespondError(c, http.StatusBadRequest, "实训学时不能超过总学时")
		return
	}
	course := &domain.Course{
		OwnerUserID:   userID,
		Name:          req.Name,
		Semester:      req.Semester,
		ClassName:     req.ClassName,
		TotalHours:    req.TotalHours,
		PracticeHours: req.PracticeHours,
		CourseCatalog: req.CourseCatalog,
	}
	if _, err := h.courses.Create(c.Request.Context(), nil, course); err != nil {
		h.log.Error("create course failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "创建课程失败")
		return
	}
	RespondOK(c, http.StatusCreated, course)
}

func (h *CourseHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	courses, err := h.courses.ListByOwner(c.Request.Context(), nil, userID)
	if err != nil {
		h.log.Error("list courses failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "获取课程列表失败")
		return
	}
	RespondOK(c, http.StatusOK, courses)
}

func (h *CourseHandler) getOwned(c *gin.Context) (*domain.Course, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return nil, false
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "无效的课程 ID")
		return nil, false
	}
	course, err := h.courses.GetByIDForOwner(c.Request.Context(), nil, userID, courseID)
	if err != nil {
		h.log.Error("get course failed", "course_id", courseID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取课程失败")
		return nil, false
	}
	if course == nil {
		RespondError(c, http.StatusNotFound, "课程不存在")
		return nil, false
	}
	return course, true
}

func (h *CourseHandler) Get(c *gin.Context) {
	course, ok := h.getOwned(c)
	if !ok {
		return
	}
	RespondOK(c, http.StatusOK, course)
}

func (h *CourseHandler) Update(c *gin.Context) {
	course, ok := h.getOwned(c)
	if !ok {
		return
	}
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "课程参数无效")
		return
	}
	if req.PracticeHours > req.TotalHours {
		RespondError(c, http.StatusBadRequest, "实训学时不能超过总学时")
		return
	}
	err := h.courses.UpdateFields(c.Request.Context(), nil, course.OwnerUserID, course.ID, map[string]interface{}{
		"name":           req.Name,
		"semester":       req.Semester,
		"class_name":     req.ClassName,
		"total_hours":    req.TotalHours,
		"practice_hours": req.PracticeHours,
		"course_catalog": req.CourseCatalog,
	})
	if err != nil {
		h.log.Error("update course failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "更新课程失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"updated": true})
}

// Delete removes the course together with every generated document.
func (h *CourseHandler) Delete(c *gin.Context) {
	course, ok := h.getOwned(c)
	if !ok {
		return
	}
	if err := h.documents.DeleteByCourse(c.Request.Context(), nil, course.ID); err != nil {
		h.log.Error("delete course documents failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "删除课程文档失败")
		return
	}
	if err := h.courses.Delete(c.Request.Context(), nil, course.OwnerUserID, course.ID); err != nil {
		h.log.Error("delete course failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "删除课程失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"deleted": true})
}
