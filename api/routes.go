package api

import (
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/buildchat/server"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")

	// Auth routes
	api.POST("/auth/token", h.IssueToken)

	// Chat routes
	chats := api.Group("/chats", h.AuthMiddleware())
	chats.POST("", h.CreateChat)
	chats.GET("/:id", h.GetChat)

	// Session socket (token travels in the query string)
	r.GET(server.SocketPrefix+"/:id", h.SessionSocket)
}
