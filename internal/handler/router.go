package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/middleware"
)

type RouterDeps struct {
	Uploads         *UploadHandler
	Conversations   *ConversationHandler
	Chat            *ChatHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/", Health)
	api.GET("/healthz", Health)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/upload", deps.Uploads.Upload)
	authGroup.POST("/upload/pdf", deps.Uploads.UploadPDF)
	authGroup.GET("/upload-status/:jobId", deps.Uploads.Status)

	authGroup.POST("/conversations", deps.Conversations.Create)
	authGroup.GET("/conversations/:id", deps.Conversations.List)
	authGroup.GET("/conversations/:id/messages", deps.Conversations.Messages)
	authGroup.DELETE("/conversations/:id", deps.Conversations.Delete)

	limited := authGroup.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimitWindow))
	limited.POST("/chat", deps.Chat.Chat)
	limited.POST("/summarize", deps.Chat.Summarize)
}
