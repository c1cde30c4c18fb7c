package coach

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/novalearn/nova-coach/internal/ai"
	"github.com/novalearn/nova-coach/internal/chat"
	"github.com/novalearn/nova-coach/internal/content"
	"github.com/novalearn/nova-coach/internal/memory"
	"github.com/novalearn/nova-coach/internal/profile"
	"github.com/novalearn/nova-coach/pkg/stream"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(&chat.Session{}, &chat.Message{}, &memory.Memory{}, &content.Chunk{}, &profile.LearnerProfile{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeProvider streams fixed fragments. When block is set it emits the first
// fragment, then holds until the context is cancelled.
type fakeProvider struct {
	fragments []string
	block     bool

	mu       sync.Mutex
	lastMsgs []ai.Message
}

func (p *fakeProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return strings.Join(p.fragments, ""), nil
}

func (p *fakeProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	p.mu.Lock()
	p.lastMsgs = messages
	p.mu.Unlock()

	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for i, f := range p.fragments {
			select {
			case chunks <- f:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if p.block && i == 0 {
				<-ctx.Done()
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

func (p *fakeProvider) systemPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lastMsgs) == 0 {
		return ""
	}
	return p.lastMsgs[0].Content
}

// failingProvider streams its fragments and then reports a stream error.
type failingProvider struct {
	fragments []string
}

func (p *failingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return "", fmt.Errorf("upstream unavailable")
}

func (p *failingProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, f := range p.fragments {
			select {
			case chunks <- f:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		errs <- fmt.Errorf("upstream unavailable")
	}()
	return chunks, errs
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []string
	done     chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{done: make(chan struct{}, 8)}
}

func (r *recordingPublisher) PublishConsolidation(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	r.sessions = append(r.sessions, sessionID)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func collect(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("stream did not finish")
		}
	}
}

func newTestService(t *testing.T, db *gorm.DB, p ai.Provider, q Publisher) *Service {
	t.Helper()
	return NewService(db, nil, p, q, nil, 20, time.Minute, "test-model")
}

func TestStreamTurnNewSession(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{fragments: []string{"Hel", "lo ", "there."}}
	queue := newRecordingPublisher()
	svc := newTestService(t, db, provider, queue)

	events := collect(t, svc.StreamTurn(context.Background(), 1, "", "hi"))

	if len(events) < 3 {
		t.Fatalf("want start, content, done; got %d events", len(events))
	}
	start := events[0]
	if start.Type != stream.EventStart || start.SessionID == "" {
		t.Fatalf("first event must be start with a session id: %+v", start)
	}
	if start.IsNewSession == nil || !*start.IsNewSession {
		t.Fatalf("empty session id must start a new session")
	}

	var b strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		if ev.Type != stream.EventContent {
			t.Fatalf("middle events must be content: %+v", ev)
		}
		b.WriteString(ev.Content)
	}
	done := events[len(events)-1]
	if done.Type != stream.EventDone || done.MessageID == 0 || done.CreatedAt == nil {
		t.Fatalf("last event must be done with id and timestamp: %+v", done)
	}

	// Concatenated fragments equal the persisted assistant message.
	var persisted chat.Message
	if err := db.First(&persisted, done.MessageID).Error; err != nil {
		t.Fatalf("load assistant message: %v", err)
	}
	if persisted.Content != b.String() || persisted.Content != "Hello there." {
		t.Fatalf("persisted %q, streamed %q", persisted.Content, b.String())
	}
	if persisted.Role != chat.RoleAssistant {
		t.Fatalf("role = %q", persisted.Role)
	}
	if persisted.Model == nil || *persisted.Model != "test-model" {
		t.Fatalf("model not recorded: %v", persisted.Model)
	}

	select {
	case <-queue.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("turn must enqueue a consolidation job")
	}
}

func TestStreamTurnExistingSessionHistory(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{fragments: []string{"first reply"}}
	svc := newTestService(t, db, provider, nil)
	ctx := context.Background()

	events := collect(t, svc.StreamTurn(ctx, 1, "", "first question"))
	sid := events[0].SessionID

	provider.fragments = []string{"second reply"}
	events = collect(t, svc.StreamTurn(ctx, 1, sid, "second question"))
	if events[0].SessionID != sid {
		t.Fatalf("known session id must be reused")
	}
	if events[0].IsNewSession == nil || *events[0].IsNewSession {
		t.Fatalf("existing session must not be flagged new")
	}

	_, msgs, err := svc.SessionMessages(ctx, 1, sid)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []struct{ role, content string }{
		{chat.RoleUser, "first question"},
		{chat.RoleAssistant, "first reply"},
		{chat.RoleUser, "second question"},
		{chat.RoleAssistant, "second reply"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("history length = %d, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Content != w.content {
			t.Fatalf("history[%d] = %s %q, want %s %q", i, msgs[i].Role, msgs[i].Content, w.role, w.content)
		}
	}
}

func TestStreamTurnAccessDenied(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{fragments: []string{"reply"}}
	svc := newTestService(t, db, provider, nil)
	ctx := context.Background()

	events := collect(t, svc.StreamTurn(ctx, 1, "", "mine"))
	sid := events[0].SessionID

	events = collect(t, svc.StreamTurn(ctx, 2, sid, "theirs"))
	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("foreign session must yield a single error event: %+v", events)
	}

	// No message was written for the denied turn.
	var count int64
	db.Model(&chat.Message{}).Where("profile_id = ?", 2).Count(&count)
	if count != 0 {
		t.Fatalf("denied turn must persist nothing, got %d rows", count)
	}
}

func TestStreamTurnUnknownSessionStartsFresh(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{fragments: []string{"reply"}}
	svc := newTestService(t, db, provider, nil)

	events := collect(t, svc.StreamTurn(context.Background(), 1, "01ARZ3NDEKTSV4RRFFQ69G5FAV", "hi"))
	start := events[0]
	if start.Type != stream.EventStart {
		t.Fatalf("unknown session id must still start a turn: %+v", start)
	}
	if start.SessionID == "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Fatalf("unknown id must not be adopted")
	}
	if start.IsNewSession == nil || !*start.IsNewSession {
		t.Fatalf("unknown session id must be flagged new")
	}
}

func TestStreamTurnCancelLeavesNoMessageRows(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{fragments: []string{"partial", "never sent"}, block: true}
	svc := newTestService(t, db, provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.StreamTurn(ctx, 1, "", "hi")

	// Read through the first content fragment, then walk away.
	sawContent := false
	for ev := range events {
		if ev.Type == stream.EventContent {
			sawContent = true
			cancel()
		}
	}
	if !sawContent {
		t.Fatalf("expected at least one content fragment before cancelling")
	}

	// A turn aborted before done persists nothing, user turn included.
	var count int64
	db.Model(&chat.Message{}).Count(&count)
	if count != 0 {
		t.Fatalf("cancelled turn must leave zero message rows, got %d", count)
	}
}

func TestStreamTurnGenerationErrorLeavesNoMessageRows(t *testing.T) {
	db := newTestDB(t)
	provider := &failingProvider{fragments: []string{"partial"}}
	svc := newTestService(t, db, provider, nil)

	events := collect(t, svc.StreamTurn(context.Background(), 1, "", "hi"))
	last := events[len(events)-1]
	if last.Type != stream.EventError {
		t.Fatalf("failed generation must end with an error event: %+v", last)
	}

	var count int64
	db.Model(&chat.Message{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed turn must leave zero message rows, got %d", count)
	}
}

func TestAssembleContextIncludesMemoriesAndProfile(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{fragments: []string{"ok"}}
	svc := newTestService(t, db, provider, nil)
	ctx := context.Background()

	if err := db.Create(&profile.LearnerProfile{ID: 1, Role: "backend dev", Goals: "learn Go"}).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if err := db.Create(&memory.Memory{
		ProfileID:       1,
		Category:        memory.CategoryStruggleIdentified,
		Content:         "confuses pointers and values",
		Importance:      0.6,
		OccurrenceCount: 3,
		SourceSessionID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
	}).Error; err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	collect(t, svc.StreamTurn(ctx, 1, "", "help me with pointers"))

	sys := provider.systemPrompt()
	if !strings.Contains(sys, "backend dev") {
		t.Fatalf("system prompt missing profile: %q", sys)
	}
	if !strings.Contains(sys, "confuses pointers and values") {
		t.Fatalf("system prompt missing active memory: %q", sys)
	}
	if !strings.Contains(sys, "(seen 3x)") {
		t.Fatalf("repeated memory must carry its occurrence count: %q", sys)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := deriveTitle("  what   are\nslices? "); got != "what are slices?" {
		t.Fatalf("deriveTitle = %q", got)
	}
	long := strings.Repeat("a", 100)
	got := deriveTitle(long)
	if len([]rune(got)) != 60 || !strings.HasSuffix(got, "…") {
		t.Fatalf("long titles must be capped with an ellipsis, got %q", got)
	}
}
