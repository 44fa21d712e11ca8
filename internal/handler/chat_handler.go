package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/faqchat/internal/model"
	"github.com/xxxsen/faqchat/internal/pkg/errcode"
	"github.com/xxxsen/faqchat/internal/pkg/response"
)

const maxMessageRunes = 4000

type ChatService interface {
	Answer(ctx context.Context, sessionID string, text string) (*model.Answer, error)
	History(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) []model.ChatSessionSummary
}

type ChatHandler struct {
	chat ChatService
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		response.Error(c, errcode.ErrInvalid, "message is required")
		return
	}
	if len([]rune(msg)) > maxMessageRunes {
		response.Error(c, errcode.ErrInvalid, "message too long")
		return
	}
	answer, err := h.chat.Answer(c.Request.Context(), strings.TrimSpace(req.SessionID), msg)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	response.Success(c, h.chat.Sessions(c.Request.Context()))
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	msgs, err := h.chat.History(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"session_id": id, "messages": msgs})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.chat.DeleteSession(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"session_id": id, "deleted": true})
}
