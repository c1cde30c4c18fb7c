package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func ollamaStreamHandler(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintln(w, l)
			fl.Flush()
		}
	}
}

func TestStreamChatDeliversChunksInOrder(t *testing.T) {
	srv := httptest.NewServer(ollamaStreamHandler([]string{
		`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model")
	chunks, errs := p.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
	default:
	}
	if b.String() != "Hello" {
		t.Fatalf("streamed %q, want %q", b.String(), "Hello")
	}
}

func TestStreamChatLeavesClientUntouched(t *testing.T) {
	srv := httptest.NewServer(ollamaStreamHandler([]string{
		`{"message":{"role":"assistant","content":"x"},"done":true}`,
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model")
	want := p.Client.Timeout

	chunks, errs := p.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	for range chunks {
	}
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
	default:
	}

	if p.Client.Timeout != want || want != 90*time.Second {
		t.Fatalf("shared client timeout changed: got %v, want %v", p.Client.Timeout, want)
	}
}

func TestStreamChatSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model")
	chunks, errs := p.StreamChat(context.Background(), nil)
	for range chunks {
	}
	if err := <-errs; err == nil {
		t.Fatalf("non-2xx must surface on the error channel")
	}
}
