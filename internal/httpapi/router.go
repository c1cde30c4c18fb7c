package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novalearn/nova-coach/internal/coach"
	"github.com/novalearn/nova-coach/internal/common"
	"github.com/novalearn/nova-coach/internal/config"
	"github.com/novalearn/nova-coach/internal/httpapi/handlers"
	"github.com/novalearn/nova-coach/internal/httpapi/middleware"
)

func NewRouter(coachSvc *coach.Service, cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(coachSvc, log)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/chat/stream", h.StreamChat)
	authGroup.GET("/sessions", h.ListSessions)
	authGroup.GET("/sessions/:session_id", h.GetSession)
	authGroup.DELETE("/sessions/:session_id", h.DeleteSession)

	return r
}
