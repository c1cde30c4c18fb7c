package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novalearn/nova-coach/internal/common"
)

// ListSessions pages the caller's sessions by recency. `before` is a unix
// millisecond cursor on last_message_at; grouping into Today/Yesterday/...
// buckets happens client-side.
func (h *Handler) ListSessions(c *gin.Context) {
	pid, okk := profileIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var before time.Time
	if v := c.Query("before"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			before = time.UnixMilli(ms)
		}
	}

	sessions, err := h.Coach.ListSessions(c.Request.Context(), pid, limit, before)
	if err != nil {
		h.Log.Error("list sessions failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list sessions")
		return
	}

	var nextBefore int64
	if len(sessions) > 0 {
		nextBefore = sessions[len(sessions)-1].LastMessageAt.UnixMilli()
	}

	common.OK(c, gin.H{
		"sessions":    sessions,
		"next_before": nextBefore,
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	pid, okk := profileIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")
	sess, msgs, err := h.Coach.SessionMessages(c.Request.Context(), pid, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, common.ErrAccessDenied):
			common.Fail(c, http.StatusForbidden, 40301, "forbidden")
		default:
			h.Log.Error("get session failed", zap.String("session_id", sessionID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50002, "failed to load session")
		}
		return
	}

	common.OK(c, gin.H{
		"session":  sess,
		"messages": msgs,
	})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	pid, okk := profileIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")
	err := h.Coach.DeleteSession(c.Request.Context(), pid, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, common.ErrAccessDenied):
			common.Fail(c, http.StatusForbidden, 40301, "forbidden")
		default:
			h.Log.Error("delete session failed", zap.String("session_id", sessionID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to delete session")
		}
		return
	}

	common.OK(c, gin.H{"deleted": true})
}
