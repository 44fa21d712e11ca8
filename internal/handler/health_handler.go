package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/faqchat/internal/model"
	"github.com/xxxsen/faqchat/internal/pkg/response"
	"github.com/xxxsen/faqchat/internal/retrieval"
)

type StatusSource interface {
	Status() retrieval.Status
}

type SessionLister interface {
	Sessions(ctx context.Context) []model.ChatSessionSummary
}

type HealthHandler struct {
	status       StatusSource
	sessions     SessionLister
	aiConfigured bool
}

func NewHealthHandler(status StatusSource, sessions SessionLister, aiConfigured bool) *HealthHandler {
	return &HealthHandler{status: status, sessions: sessions, aiConfigured: aiConfigured}
}

type healthResponse struct {
	Status        string           `json:"status"`
	FAQLoaded     bool             `json:"faq_loaded"`
	AIConfigured  bool             `json:"ai_configured"`
	ActiveSession int              `json:"active_sessions"`
	Index         retrieval.Status `json:"index"`
}

func (h *HealthHandler) Get(c *gin.Context) {
	st := h.status.Status()
	state := "ok"
	if !st.Loaded {
		state = "degraded"
	}
	response.Success(c, healthResponse{
		Status:        state,
		FAQLoaded:     st.Loaded,
		AIConfigured:  h.aiConfigured,
		ActiveSession: len(h.sessions.Sessions(c.Request.Context())),
		Index:         st,
	})
}
