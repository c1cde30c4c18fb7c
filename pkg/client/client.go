// Package client is a Go consumer of the coach streaming API. It decodes
// the SSE frames back into coach events and handles bearer-token expiry
// with a single retry after 401.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/novalearn/nova-coach/pkg/stream"
)

type Client struct {
	BaseURL string
	Tokens  TokenProvider
	HTTP    *http.Client
}

func New(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tokens:  tokens,
		// No global timeout; streams are bounded by ctx.
		HTTP: &http.Client{},
	}
}

type streamReq struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// StreamTurn sends one user turn and returns the event stream. The channel
// closes after a done or error event, or when ctx is cancelled. On an error
// event the caller must discard any content fragments already received.
func (c *Client) StreamTurn(ctx context.Context, message, sessionID string) (<-chan stream.Event, error) {
	body, err := json.Marshal(streamReq{Message: message, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	tok, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: token: %w", err)
	}

	resp, err := c.post(ctx, body, tok)
	if err != nil {
		return nil, err
	}

	// Single retry after 401: refresh (deduplicated across racing
	// requests) and resend once.
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		tok, err = c.Tokens.RefreshAfter(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("client: refresh: %w", err)
		}
		resp, err = c.post(ctx, body, tok)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("client: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	events := make(chan stream.Event, 16)
	go c.readEvents(ctx, resp.Body, events)
	return events, nil
}

func (c *Client) post(ctx context.Context, body []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.HTTP.Do(req)
}

func (c *Client) readEvents(ctx context.Context, body io.ReadCloser, events chan<- stream.Event) {
	defer close(events)
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		// Comment lines (heartbeats) and blank separators carry no event.
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		ev, err := stream.Decode([]byte(data))
		if err != nil {
			c.deliver(ctx, events, stream.Error("malformed event: "+err.Error()))
			return
		}
		if !c.deliver(ctx, events, ev) {
			return
		}
		if ev.Type == stream.EventDone || ev.Type == stream.EventError {
			return
		}
	}

	if err := sc.Err(); err != nil && ctx.Err() == nil {
		c.deliver(ctx, events, stream.Error("stream interrupted: "+err.Error()))
	}
}

func (c *Client) deliver(ctx context.Context, events chan<- stream.Event, ev stream.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
