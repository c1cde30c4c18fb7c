package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novalearn/nova-coach/internal/coach"
	"github.com/novalearn/nova-coach/internal/httpapi/middleware"
)

type Handler struct {
	Coach *coach.Service
	Log   *zap.Logger
}

func NewHandler(coachSvc *coach.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Coach: coachSvc, Log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func profileIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.ProfileIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
