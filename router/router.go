package router

import (
	"log"
	"net/http"

	"github.com/rakage/Chat-Bridge-sub000/config"
	"github.com/rakage/Chat-Bridge-sub000/controllers"
	"github.com/rakage/Chat-Bridge-sub000/middleware"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes and middlewares.
func Initialize(r *gin.Engine, cfg config.Configuration) {
	_ = cfg

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")

	// Platform webhooks. Messenger authenticates with the X-Hub-Signature-256
	// header and a GET handshake; Telegram with a path-embedded secret.
	api.GET("/webhook/messenger", controllers.MessengerWebhookVerify)
	api.POST("/webhook/messenger", controllers.MessengerWebhook)
	api.POST("/webhook/telegram/:secret", controllers.TelegramWebhook)

	// Conversation re-fetch + agent send surface for downstream consumers.
	api.GET("/conversations", Logger(), controllers.GetConversations)
	api.GET("/conversations/:id/messages", Logger(), controllers.GetConversationMessages)
	api.POST("/conversations/:id/messages", Logger(), controllers.SendMessage)
	api.POST("/conversations/:id/read", Logger(), controllers.MarkConversationRead)

	log.Printf("Routes initialized")
}
