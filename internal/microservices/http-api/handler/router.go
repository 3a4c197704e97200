package handler

import (
	"dockhub/internal/microservices/http-api/middleware"
	"dockhub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the event routes. Publishing is limited to write and admin
// roles, the same roles that may mutate dock state over REST.
func NewRouter(tokens service.TokenService, publisher Publisher, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	events := NewEventHandler(publisher)
	r.GET("/health", events.Health)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(tokens))
	{
		api.GET("/events/kinds",
			middleware.RequireAnyRole(service.RoleRead, service.RoleWrite, service.RoleAdmin),
			events.Kinds)

		publish := []gin.HandlerFunc{
			middleware.RequireAnyRole(service.RoleWrite, service.RoleAdmin),
		}
		if limiter != nil {
			publish = append(publish, limiter.Middleware())
		}
		publish = append(publish, events.Publish)
		api.POST("/events", publish...)
	}
	return r
}
