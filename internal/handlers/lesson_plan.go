package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/parse"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/planparams"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
	"github.com/teachflow/teachflow-backend/internal/prompts"
	"github.com/teachflow/teachflow-backend/internal/repos"
	"github.com/teachflow/teachflow-backend/internal/services"
)

// NewClientFunc builds a per-user LLM client for handlers that call the model
// synchronously (plan re-parse, chat).
type NewClientFunc func(log *logger.Logger, cfg openai.Config) (openai.Client, error)

type LessonPlanHandler struct {
	log       *logger.Logger
	users     repos.UserRepo
	courses   repos.CourseRepo
	documents repos.CourseDocumentRepo
	jobs      services.JobService
	newClient NewClientFunc
}

func NewLessonPlanHandler(
	baseLog *logger.Logger,
	users repos.UserRepo,
	courses repos.CourseRepo,
	documents repos.CourseDocumentRepo,
	jobs services.JobService,
	newClient NewClientFunc,
) *LessonPlanHandler {
	return &LessonPlanHandler{
		log:       baseLog.With("handler", "LessonPlanHandler"),
		users:     users,
		courses:   courses,
		documents: documents,
		jobs:      jobs,
		newClient: newClient,
	}
}

func (h *LessonPlanHandler) ownedCourse(c *gin.Context) (*domain.Course, uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return nil, uuid.Nil, false
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "无效的课程 ID")
		return nil, uuid.Nil, false
	}
	course, err := h.courses.GetByIDForOwner(c.Request.Context(), nil, userID, courseID)
	if err != nil || course == nil {
		RespondError(c, http.StatusNotFound, "课程不存在")
		return nil, uuid.Nil, false
	}
	return course, userID, true
}

type generateLessonRequest struct {
	Sequence int `json:"sequence" binding:"required,min=1,max=200"`
}

// Generate queues one lesson-plan build for the given session number.
func (h *LessonPlanHandler) Generate(c *gin.Context) {
	course, userID, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	var req generateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "无效的课次参数")
		return
	}
	payload := map[string]any{
		"course_id": course.ID.String(),
		"sequence":  req.Sequence,
	}
	job, err := h.jobs.Enqueue(c.Request.Context(), userID,
		domain.JobTypeLessonPlanBuild, domain.EntityTypeCourse, course.ID, payload)
	if err != nil {
		h.log.Error("enqueue lesson job failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "提交生成任务失败")
		return
	}
	RespondOK(c, http.StatusAccepted, job)
}

// ListLessons returns all generated lesson documents for the course.
func (h *LessonPlanHandler) ListLessons(c *gin.Context) {
	course, _, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	lessons, err := h.documents.ListLessons(c.Request.Context(), nil, course.ID)
	if err != nil {
		h.log.Error("list lessons failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取教案列表失败")
		return
	}
	RespondOK(c, http.StatusOK, lessons)
}

// GetLesson returns one generated lesson document by session number.
func (h *LessonPlanHandler) GetLesson(c *gin.Context) {
	course, _, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	sequence, err := strconv.Atoi(c.Param("sequence"))
	if err != nil || sequence < 1 {
		RespondError(c, http.StatusBadRequest, "无效的课次参数")
		return
	}
	doc, err := h.documents.GetLesson(c.Request.Context(), nil, course.ID, sequence)
	if err != nil {
		h.log.Error("get lesson failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取教案失败")
		return
	}
	if doc == nil {
		RespondError(c, http.StatusNotFound, "该课次尚未生成教案")
		return
	}
	RespondOK(c, http.StatusOK, doc)
}

type parsePlanRequest struct {
	Text string `json:"text" binding:"required,min=10"`
}

// ParsePlan re-parses pasted teaching-plan text into structured schedule
// parameters and stores them on the course's plan document, so lessons can be
// generated against plans authored outside the system. The extraction call is
// synchronous; it is a single short prompt.
func (h *LessonPlanHandler) ParsePlan(c *gin.Context) {
	course, userID, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	var req parsePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请提供授课计划文本")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), nil, userID)
	if err != nil || user == nil || !user.HasAIConfig() {
		RespondError(c, http.StatusBadRequest, "请先配置 AI API")
		return
	}
	client, err := h.newClient(h.log, openai.Config{
		APIKey:  user.AIAPIKey,
		BaseURL: user.AIBaseURL,
		Model:   user.AIModelName,
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	totalHours := course.TotalHours
	prompt := prompts.BuildPlanExtractPrompt(req.Text, &totalHours)
	raw, err := client.RunPrompt(c.Request.Context(), prompts.PlanExtractSystem, prompt, openai.Options{Temperature: 0.2})
	if err != nil {
		h.log.Error("plan extraction failed", "course_id", course.ID, "error", err)
		RespondError(c, http.StatusBadGateway, err.Error())
		return
	}
	obj, err := parse.DecodeObject(raw)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "解析失败：模型未返回有效的计划参数")
		return
	}

	rawSchedule, _ := obj["schedule"].([]any)
	rows := make([]map[string]any, 0, len(rawSchedule))
	for _, item := range rawSchedule {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	if len(rows) == 0 {
		RespondError(c, http.StatusBadGateway, "解析失败：未提取到任何课次")
		return
	}
	hourPerClass, _ := parse.IntValue(obj["hour_per_class"])
	if hourPerClass <= 0 {
		hourPerClass = planparams.FallbackHourPerClass(course.TotalHours, len(rows))
	}
	params := planparams.Build(rows, hourPerClass)
	paramsJSON, _ := json.Marshal(params)

	doc, err := h.documents.GetPlan(c.Request.Context(), nil, course.ID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "读取授课计划失败")
		return
	}
	if doc == nil {
		doc = &domain.CourseDocument{
			CourseID:   course.ID,
			DocType:    domain.DocTypePlan,
			Title:      "《" + course.Name + "》授课计划",
			PlanParams: datatypes.JSON(paramsJSON),
		}
		if _, err := h.documents.Upsert(c.Request.Context(), nil, doc); err != nil {
			h.log.Error("save parsed plan failed", "course_id", course.ID, "error", err)
			RespondError(c, http.StatusInternalServerError, "保存计划参数失败")
			return
		}
	} else {
		doc.PlanParams = datatypes.JSON(paramsJSON)
		if _, err := h.documents.Upsert(c.Request.Context(), nil, doc); err != nil {
			h.log.Error("update parsed plan failed", "course_id", course.ID, "error", err)
			RespondError(c, http.StatusInternalServerError, "保存计划参数失败")
			return
		}
	}
	RespondOK(c, http.StatusOK, gin.H{
		"plan_params": params,
		"classes":     len(params.Schedule),
	})
}
