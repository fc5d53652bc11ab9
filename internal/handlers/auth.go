package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
	"github.com/teachflow/teachflow-backend/internal/services"
)

type AuthHandler struct {
	log   *logger.Logger
	auth  services.AuthService
	users repos.UserRepo
}

func NewAuthHandler(baseLog *logger.Logger, auth services.AuthService, users repos.UserRepo) *AuthHandler {
	return &AuthHandler{
		log:   baseLog.With("handler", "AuthHandler"),
		auth:  auth,
		users: users,
	}
}

type registerRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=64"`
	Password    string `json:"password" binding:"required,min=6,max=128"`
	DisplayName string `json:"display_name" binding:"max=64"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "用户名或密码不符合要求")
		return
	}
	user, token, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.DisplayName)
	if errors.Is(err, services.ErrUsernameTaken) {
		RespondError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.log.Error("register failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "注册失败，请稍后再试")
		return
	}
	RespondOK(c, http.StatusCreated, gin.H{"user": user, "token": token})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "请输入用户名和密码")
		return
	}
	user, token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		RespondError(c, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		h.log.Error("login failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "登录失败，请稍后再试")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"user": user, "token": token})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), nil, userID)
	if err != nil || user == nil {
		RespondError(c, http.StatusNotFound, "用户不存在")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{
		"user":          user,
		"has_ai_config": user.HasAIConfig(),
	})
}

type aiConfigRequest struct {
	AIAPIKey    string `json:"ai_api_key" binding:"required"`
	AIBaseURL   string `json:"ai_base_url" binding:"required,url"`
	AIModelName string `json:"ai_model_name"`
}

// UpdateAIConfig stores the user's LLM endpoint settings; generation jobs
// read them at claim time, so a change applies to the next run.
func (h *AuthHandler) UpdateAIConfig(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	var req aiConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "AI 配置参数无效，请检查 API Key 与 Base URL")
		return
	}
	err := h.users.UpdateFields(c.Request.Context(), nil, userID, map[string]interface{}{
		"ai_api_key":    req.AIAPIKey,
		"ai_base_url":   req.AIBaseURL,
		"ai_model_name": req.AIModelName,
	})
	if err != nil {
		h.log.Error("update ai config failed", "user_id", userID, "error", err)
		RespondError(c, http.StatusInternalServerError, "保存 AI 配置失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"updated": true})
}
