package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/internal/persona_service/service"
	"PersonaGen/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
	log     *logger.Logger
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service, log *logger.Logger) *Handler {
	return &Handler{service: s, log: log}
}

// --- Personality Handlers ---

// CreatePersonalityRequest 定义了创建人格档案请求的 JSON 结构。
// answers 保持请求中的键顺序。
type CreatePersonalityRequest struct {
	Answers *orderedmap.OrderedMap[string, json.RawMessage] `json:"answers"`
}

// CreatePersonality 处理创建人格档案的请求。
func (h *Handler) CreatePersonality(c *gin.Context) {
	var req CreatePersonalityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Answers == nil || req.Answers.Len() == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Personality answers are required"})
		return
	}

	profile, err := h.service.CreateProfile(c.Request.Context(), answersFromRequest(req.Answers))
	if err != nil {
		h.fail(c, err, "Failed to save personality profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"profileId": profile.ID,
		"message":   "Personality profile created successfully",
	})
}

// GetPersonality 返回一份人格档案。
func (h *Handler) GetPersonality(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve personality profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// --- Chat Handlers ---

// ChatRequest 定义了发送聊天消息请求的 JSON 结构。
type ChatRequest struct {
	ProfileID string `json:"profileId" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// Chat 处理一轮对话并返回人格分身的回复。
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Profile ID and message are required"})
		return
	}

	reply, err := h.service.HandleMessage(c.Request.Context(), req.ProfileID, req.Message)
	if err != nil {
		h.fail(c, err, "Failed to process message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": reply})
}

// GetHistory 返回聊天记录。
func (h *Handler) GetHistory(c *gin.Context) {
	messages, err := h.service.History(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve chat history")
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

// ClearHistory 清空聊天记录。
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.service.ClearHistory(c.Request.Context(), c.Param("profileId")); err != nil {
		h.fail(c, err, "Failed to clear chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat history cleared successfully"})
}

// Health 是存活检查。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Server is running!"})
}

// fail 把服务层错误映射为 HTTP 响应。500 只返回 internalMsg，不暴露内部错误。
func (h *Handler) fail(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, service.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": badRequestMessage(c)})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Personality profile not found"})
	default:
		h.log.WithError(models.NewErrorInfo(err, "handler_error")).
			WithField("path", c.FullPath()).
			Error(internalMsg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalMsg})
	}
}

func badRequestMessage(c *gin.Context) string {
	if c.FullPath() == "/api/chat" {
		return "Profile ID and message are required"
	}
	if c.FullPath() == "/api/personality" {
		return "Personality answers are required"
	}
	return "Profile ID is required"
}

// answersFromRequest converts raw JSON answer values to text. Strings are
// taken as-is, numbers and booleans keep their JSON spelling, anything else is
// dropped.
func answersFromRequest(raw *orderedmap.OrderedMap[string, json.RawMessage]) *models.Answers {
	answers := models.NewAnswers()
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		value := bytes.TrimSpace(pair.Value)
		if len(value) == 0 {
			continue
		}
		switch value[0] {
		case '"':
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				answers.Set(pair.Key, s)
			}
		case '{', '[', 'n':
			// objects, arrays and null carry no answer text
		default:
			answers.Set(pair.Key, string(value))
		}
	}
	return answers
}
