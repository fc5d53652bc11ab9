package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
	"github.com/teachflow/teachflow-backend/internal/services"
)

type CopyrightHandler struct {
	log      *logger.Logger
	projects repos.CopyrightProjectRepo
	jobs     services.JobService
}

func NewCopyrightHandler(baseLog *logger.Logger, projects repos.CopyrightProjectRepo, jobs services.JobService) *CopyrightHandler {
	return &CopyrightHandler{
		log:      baseLog.With("handler", "CopyrightHandler"),
		projects: projects,
		jobs:     jobs,
	}
}

type copyrightProjectRequest struct {
	Name              string `json:"name" binding:"required,max=128"`
	Domain            string `json:"domain" binding:"max=128"`
	SystemName        string `json:"system_name" binding:"max=128"`
	SoftwareAbbr      string `json:"software_abbr" binding:"max=64"`
	Description       string `json:"description"`
	GenerationMode    string `json:"generation_mode"`
	IncludeSourcecode *bool  `json:"include_sourcecode"`
	IncludeUIDesc     bool   `json:"include_ui_desc"`
	IncludeTechDesc   bool   `json:"include_tech_desc"`
	RequirementsText  string `json:"requirements_text"`
	UIDescription     string `json:"ui_description"`
	TechDescription   string `json:"tech_description"`
}

func (h *CopyrightHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	var req copyrightProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "项目参数无效")
		return
	}
	includeSource := true
	if req.IncludeSourcecode != nil {
		includeSource = *req.IncludeSourcecode
	}
	project := &domain.CopyrightProject{
		OwnerUserID:       userID,
		Name:              req.Name,
		Domain:            req.Domain,
		SystemName:        req.SystemName,
		SoftwareAbbr:      req.SoftwareAbbr,
		Description:       req.Description,
		GenerationMode:    domain.SanitizeGenerationMode(req.GenerationMode),
		IncludeSourcecode: includeSource,
		IncludeUIDesc:     req.IncludeUIDesc,
		IncludeTechDesc:   req.IncludeTechDesc,
		RequirementsText:  req.RequirementsText,
		UIDescription:     req.UIDescription,
		TechDescription:   req.TechDescription,
	}
	if _, err := h.projects.Create(c.Request.Context(), nil, project); err != nil {
		h.log.Error("create project failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "创建项目失败")
		return
	}
	RespondOK(c, http.StatusCreated, project)
}

func (h *CopyrightHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	projects, err := h.projects.ListByOwner(c.Request.Context(), nil, userID)
	if err != nil {
		h.log.Error("list projects failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "获取项目列表失败")
		return
	}
	RespondOK(c, http.StatusOK, projects)
}

func (h *CopyrightHandler) getOwned(c *gin.Context) (*domain.CopyrightProject, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return nil, false
	}
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "无效的项目 ID")
		return nil, false
	}
	project, err := h.projects.GetByIDForOwner(c.Request.Context(), nil, userID, projectID)
	if err != nil {
		h.log.Error("get project failed", "project_id", projectID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取项目失败")
		return nil, false
	}
	if project == nil {
		RespondError(c, http.StatusNotFound, "项目不存在")
		return nil, false
	}
	return project, true
}

func (h *CopyrightHandler) Get(c *gin.Context) {
	project, ok := h.getOwned(c)
	if !ok {
		return
	}
	RespondOK(c, http.StatusOK, project)
}

func (h *CopyrightHandler) Update(c *gin.Context) {
	project, ok := h.getOwned(c)
	if !ok {
		return
	}
	var req copyrightProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "项目参数无效")
		return
	}
	includeSource := project.IncludeSourcecode
	if req.IncludeSourcecode != nil {
		includeSource = *req.IncludeSourcecode
	}
	err := h.projects.UpdateFields(c.Request.Context(), nil, project.OwnerUserID, project.ID, map[string]interface{}{
		"name":               req.Name,
		"domain":             req.Domain,
		"system_name":        req.SystemName,
		"software_abbr":      req.SoftwareAbbr,
		"description":        req.Description,
		"generation_mode":    domain.SanitizeGenerationMode(req.GenerationMode),
		"include_sourcecode": includeSource,
		"include_ui_desc":    req.IncludeUIDesc,
		"include_tech_desc":  req.IncludeTechDesc,
		"requirements_text":  req.RequirementsText,
		"ui_description":     req.UIDescription,
		"tech_description":   req.TechDescription,
	})
	if err != nil {
		h.log.Error("update project failed", "project_id", project.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "更新项目失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"updated": true})
}

func (h *CopyrightHandler) Delete(c *gin.Context) {
	project, ok := h.getOwned(c)
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), nil, project.OwnerUserID, project.ID); err != nil {
		h.log.Error("delete project failed", "project_id", project.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "删除项目失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"deleted": true})
}

// Generate queues the full material-package build for the project.
func (h *CopyrightHandler) Generate(c *gin.Context) {
	project, ok := h.getOwned(c)
	if !ok {
		return
	}
	payload := map[string]any{"project_id": project.ID.String()}
	job, err := h.jobs.Enqueue(c.Request.Context(), project.OwnerUserID,
		domain.JobTypeCopyrightBuild, domain.EntityTypeCopyrightProject, project.ID, payload)
	if err != nil {
		h.log.Error("enqueue copyright job failed", "project_id", project.ID, "error", err)
		RespondError(c, http.StatusInternalServerError, "提交生成任务失败")
		return
	}
	RespondOK(c, http.StatusAccepted, job)
}

// Download streams the archive produced by the latest completed generation.
func (h *CopyrightHandler) Download(c *gin.Context) {
	project, ok := h.getOwned(c)
	if !ok {
		return
	}
	job, err := h.jobs.GetLatestForEntity(c.Request.Context(), project.OwnerUserID,
		domain.EntityTypeCopyrightProject, project.ID, domain.JobTypeCopyrightBuild)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "查询生成任务失败")
		return
	}
	if job == nil || job.Status != domain.JobStatusCompleted || job.OutputPath == "" {
		RespondError(c, http.StatusNotFound, "尚无可下载的生成材料")
		return
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		h.log.Error("archive missing on disk", "path", job.OutputPath, "error", err)
		RespondError(c, http.StatusNotFound, "生成材料已过期，请重新生成")
		return
	}
	c.FileAttachment(job.OutputPath, filepath.Base(job.OutputPath))
}
