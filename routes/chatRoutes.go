package routes

import (
	"civicsync-api/controllers"

	"github.com/gin-gonic/gin"
)

// ChatRoutes sets up the assistant routes
func ChatRoutes(r *gin.Engine, cc *controllers.ChatController, auth, chatLimit gin.HandlerFunc) {
	chat := r.Group("/api/chat", auth)
	{
		chat.POST("", chatLimit, cc.SendMessage)
		chat.DELETE("", cc.ResetConversation)
	}
}
