package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/faqchat/internal/middleware"
)

type RouterDeps struct {
	Chat      *ChatHandler
	FAQ       *FAQHandler
	Health    *HealthHandler
	ChatLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Get)

	api.POST("/chat", middleware.RateLimit(deps.ChatLimit), deps.Chat.Send)
	api.GET("/chat/sessions", deps.Chat.ListSessions)
	api.GET("/chat/sessions/:id", deps.Chat.GetSession)
	api.DELETE("/chat/sessions/:id", deps.Chat.DeleteSession)

	api.GET("/faq/search", deps.FAQ.Search)
	api.POST("/faq/reload", deps.FAQ.Reload)
}
