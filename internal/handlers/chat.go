package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/middleware"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

type ChatHandler struct {
	log       *logger.Logger
	users     repos.UserRepo
	messages  repos.ChatMessageRepo
	newClient NewClientFunc
}

func NewChatHandler(baseLog *logger.Logger, users repos.UserRepo, messages repos.ChatMessageRepo, newClient NewClientFunc) *ChatHandler {
	return &ChatHandler{
		log:       baseLog.With("handler", "ChatHandler"),
		users:     users,
		messages:  messages,
		newClient: newClient,
	}
}

type chatSendRequest struct {
	Content string `json:"content" binding:"required"`
}

// Send forwards the message to the user's configured model and streams the
// reply back as plain text deltas. Both turns are persisted; a mid-stream
// failure is appended to the body since the status line is already committed.
func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	var req chatSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "消息内容不能为空")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), nil, userID)
	if err != nil || user == nil || !user.HasAIConfig() {
		RespondError(c, http.StatusBadRequest, "请先在用户设置中配置 AI API Key 和 Base URL")
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

	if _, err := h.messages.Create(c.Request.Context(), nil, &domain.ChatMessage{
		UserID:  userID,
		Role:    domain.ChatRoleUser,
		Content: req.Content,
	}); err != nil {
		h.log.Error("save user message failed", "user_id", userID, "error", err)
		RespondError(c, http.StatusInternalServerError, "保存消息失败")
		return
	}

	messages := []openai.Message{
		{Role: "system", Content: "你是一个有帮助的AI助手。"},
		{Role: "user", Content: "你好，你是谁"},
		{Role: "assistant", Content: "你好！我是AI助手，很高兴为您服务。"},
		{Role: "user", Content: req.Content},
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	full, err := client.StreamChat(c.Request.Context(), messages, func(delta string) {
		_, _ = c.Writer.WriteString(delta)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		h.log.Warn("chat stream failed", "user_id", userID, "error", err)
		_, _ = c.Writer.WriteString(fmt.Sprintf("\n\nError: %s", err.Error()))
		if flusher != nil {
			flusher.Flush()
		}
	}

	if _, err := h.messages.Create(c.Request.Context(), nil, &domain.ChatMessage{
		UserID:  userID,
		Role:    domain.ChatRoleAssistant,
		Content: full,
	}); err != nil {
		h.log.Error("save assistant message failed", "user_id", userID, "error", err)
	}
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	messages, err := h.messages.ListByUser(c.Request.Context(), nil, userID)
	if err != nil {
		h.log.Error("list chat history failed", "user_id", userID, "error", err)
		RespondError(c, http.StatusInternalServerError, "获取聊天历史失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"messages": messages})
}

func (h *ChatHandler) Clear(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "未登录")
		return
	}
	if err := h.messages.DeleteByUser(c.Request.Context(), nil, userID); err != nil {
		h.log.Error("clear chat history failed", "user_id", userID, "error", err)
		RespondError(c, http.StatusInternalServerError, "清除历史记录失败")
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"message": "历史记录已清除"})
}
