package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novalearn/nova-coach/internal/common"
	"github.com/novalearn/nova-coach/pkg/stream"
)

type streamTurnReq struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"sessionId"`
}

// StreamChat drives one turn over SSE. Each coach event becomes one
// `data: {json}` frame; the transport forwards fragments in order without
// buffering the full response.
func (h *Handler) StreamChat(c *gin.Context) {
	pid, okk := profileIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req streamTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "data: {\"type\":\"error\",\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeEvent := func(ev stream.Event) {
		b, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(c.Writer, "data: {\"type\":\"error\",\"message\":\"encoding failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	ctx := c.Request.Context()
	events := h.Coach.StreamTurn(ctx, pid, req.SessionID, req.Message)

	// heartbeat keeps proxies from closing an idle stream
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeEvent(ev)
			if ev.Type == stream.EventDone || ev.Type == stream.EventError {
				return
			}

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": ping %d\n\n", time.Now().Unix())
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}
