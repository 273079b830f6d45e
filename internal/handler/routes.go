package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API under api. chatLimits run in front of the
// chat endpoints only.
func RegisterRoutes(api *gin.RouterGroup, chat *ChatHandler, campus *CampusHandler, events *EventHandler, chatLimits ...gin.HandlerFunc) {
	chatGroup := api.Group("", chatLimits...)
	{
		chatGroup.POST("/chat", chat.Chat)
		chatGroup.POST("/chat/stream", chat.ChatStream)
	}
	api.GET("/chat/welcome", chat.Welcome)
	api.GET("/chat/:sessionId", chat.GetSession)
	api.DELETE("/chat/:sessionId", chat.DeleteSession)
	api.GET("/chat-sessions", chat.ListSessions)

	api.GET("/locations", campus.Locations)
	api.GET("/locations/search", campus.Search)
	api.GET("/locations/route", campus.Route)

	api.GET("/events", events.Events)
	api.GET("/categories", events.Categories)
	api.GET("/registrations", events.Registrations)
	api.GET("/registration-status/:eventTitle/:rollNumber", events.RegistrationStatus)
}
