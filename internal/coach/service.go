package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/novalearn/nova-coach/internal/ai"
	"github.com/novalearn/nova-coach/internal/chat"
	"github.com/novalearn/nova-coach/internal/common"
	"github.com/novalearn/nova-coach/internal/content"
	"github.com/novalearn/nova-coach/internal/memory"
	"github.com/novalearn/nova-coach/internal/profile"
	"github.com/novalearn/nova-coach/internal/retrieval"
	"github.com/novalearn/nova-coach/pkg/stream"
)

// Publisher hands a completed turn to the consolidation pipeline.
// Implemented by rabbitmq.Publisher; failures never surface to the chat
// caller.
type Publisher interface {
	PublishConsolidation(ctx context.Context, sessionID string) error
}

// Service is the streaming chat orchestrator: it resolves the session,
// assembles context, drives the model stream and persists the final
// assistant message.
type Service struct {
	db        *gorm.DB
	sessions  *chat.Repo
	memories  *memory.Repo
	profiles  *profile.Repo
	retriever *retrieval.Engine
	provider  ai.Provider
	queue     Publisher
	log       *zap.Logger

	window     int
	genTimeout time.Duration
	modelName  string
}

func NewService(db *gorm.DB, retriever *retrieval.Engine, provider ai.Provider, queue Publisher, log *zap.Logger, window int, genTimeout time.Duration, modelName string) *Service {
	if window <= 0 || window > 100 {
		window = 20
	}
	if genTimeout <= 0 {
		genTimeout = 120 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:         db,
		sessions:   chat.NewRepo(db),
		memories:   memory.NewRepo(db),
		profiles:   profile.NewRepo(db),
		retriever:  retriever,
		provider:   provider,
		queue:      queue,
		log:        log,
		window:     window,
		genTimeout: genTimeout,
		modelName:  modelName,
	}
}

const systemPersona = `You are Nova, a patient learning coach. Explain with concrete examples,
check understanding, and adapt to the learner described below.`

// StreamTurn handles one user turn. The returned channel emits exactly one
// start event, zero or more content fragments, then one done or error, and
// is closed afterwards. Cancelling ctx before done stops the stream
// promptly and leaves no message rows for the turn.
func (s *Service) StreamTurn(ctx context.Context, profileID uint64, sessionID, userMessage string) <-chan stream.Event {
	out := make(chan stream.Event, 16)
	go func() {
		defer close(out)
		s.runTurn(ctx, out, profileID, sessionID, userMessage)
	}()
	return out
}

func (s *Service) runTurn(ctx context.Context, out chan<- stream.Event, profileID uint64, sessionID, userMessage string) {
	emit := func(ev stream.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sess, isNew, err := s.resolveSession(ctx, profileID, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrAccessDenied) {
			emit(stream.Error("access denied"))
		} else {
			s.log.Error("session resolution failed", zap.Error(err))
			emit(stream.Error("failed to resolve session"))
		}
		return
	}

	if !emit(stream.Start(sess.SessionID, isNew)) {
		return
	}

	providerMsgs, err := s.assembleContext(ctx, profileID, sess.SessionID, userMessage)
	if err != nil {
		s.log.Error("context assembly failed", zap.Error(err))
		emit(stream.Error("failed to assemble context"))
		return
	}

	sp, ok := s.provider.(ai.StreamProvider)
	if !ok {
		emit(stream.Error("provider does not support streaming"))
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	chunks, errs := sp.StreamChat(genCtx, providerMsgs)

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if !emit(stream.Content(c)) {
			return
		}
	}

	select {
	case err := <-errs:
		if err != nil {
			if ctx.Err() != nil {
				// Caller went away; nothing left to tell it.
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				emit(stream.Error("generation timed out"))
			} else {
				s.log.Error("generation failed", zap.String("session_id", sess.SessionID), zap.Error(err))
				emit(stream.Error("generation failed"))
			}
			return
		}
	default:
	}

	if ctx.Err() != nil {
		return
	}

	reply := b.String()
	tokens := len(reply) / retrieval.CharsPerToken
	userMsg := &chat.Message{
		SessionID: sess.SessionID,
		ProfileID: profileID,
		Role:      chat.RoleUser,
		Content:   userMessage,
	}
	assistantMsg := &chat.Message{
		SessionID:  sess.SessionID,
		ProfileID:  profileID,
		Role:       chat.RoleAssistant,
		Content:    reply,
		TokensUsed: &tokens,
	}
	if s.modelName != "" {
		assistantMsg.Model = &s.modelName
	}

	// Both messages land in one transaction after the stream finished, so
	// a turn cancelled or failed before done leaves no rows at all, and a
	// completed one is fully recorded.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.sessions.WithTx(tx)
		if err := repo.InsertMessage(ctx, userMsg); err != nil {
			return err
		}
		if err := repo.InsertMessage(ctx, assistantMsg); err != nil {
			return err
		}
		return repo.TouchSession(ctx, sess.SessionID, assistantMsg.CreatedAt, deriveTitle(userMessage))
	})
	if err != nil {
		s.log.Error("persist turn failed", zap.String("session_id", sess.SessionID), zap.Error(err))
		emit(stream.Error("failed to persist response"))
		return
	}

	if !emit(stream.Done(assistantMsg.ID, assistantMsg.CreatedAt)) {
		return
	}

	// Fire-and-forget: consolidation runs out of band and its failures
	// never become chat errors.
	if s.queue != nil {
		go func() {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.queue.PublishConsolidation(bg, sess.SessionID); err != nil {
				s.log.Warn("consolidation enqueue failed",
					zap.String("session_id", sess.SessionID), zap.Error(err))
			}
		}()
	}
}

// resolveSession reuses the supplied session when it exists and belongs to
// the profile. An empty or unknown id starts a fresh session; a session
// owned by someone else is an access error, not a new session.
func (s *Service) resolveSession(ctx context.Context, profileID uint64, sessionID string) (*chat.Session, bool, error) {
	if sessionID != "" {
		sess, err := s.sessions.GetSessionBySessionID(ctx, sessionID)
		switch {
		case err == nil && sess.ProfileID != profileID:
			return nil, false, common.ErrAccessDenied
		case err == nil:
			return sess, false, nil
		case !errors.Is(err, common.ErrNotFound):
			return nil, false, err
		}
	}

	sid, err := chat.NewSessionID()
	if err != nil {
		return nil, false, err
	}
	sess := &chat.Session{
		SessionID:     sid,
		ProfileID:     profileID,
		LastMessageAt: time.Now(),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// assembleContext builds the provider prompt: system persona + learner
// profile + active memories + retrieved reference material, followed by
// the recent message window and the pending user turn. The user turn is
// carried in memory; it is not persisted until the stream completes.
func (s *Service) assembleContext(ctx context.Context, profileID uint64, sessionID, query string) ([]ai.Message, error) {
	recentDesc, err := s.sessions.ListRecentMessagesDesc(ctx, sessionID, s.window)
	if err != nil {
		return nil, err
	}

	var sys strings.Builder
	sys.WriteString(systemPersona)

	if prof, err := s.profiles.GetByID(ctx, profileID); err == nil {
		if summary := prof.PromptSummary(); summary != "" {
			sys.WriteString("\n\n# Learner profile\n")
			sys.WriteString(summary)
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	active, err := s.memories.ListActive(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		sys.WriteString("\n\n# What you remember about this learner\n")
		for _, m := range active {
			if m.OccurrenceCount > 1 {
				fmt.Fprintf(&sys, "- [%s] %s (seen %dx)\n", m.Category, m.Content, m.OccurrenceCount)
			} else {
				fmt.Fprintf(&sys, "- [%s] %s\n", m.Category, m.Content)
			}
		}
	}

	if s.retriever != nil {
		queries := make([]retrieval.SourceQuery, 0, len(content.Sources))
		for _, src := range content.Sources {
			queries = append(queries, retrieval.SourceQuery{Source: src, Query: query})
		}
		wrote := false
		for _, block := range s.retriever.FetchContext(ctx, queries) {
			if block.Err != nil || block.Formatted == "" {
				continue
			}
			if !wrote {
				sys.WriteString("\n\n# Reference material\n")
				wrote = true
			}
			fmt.Fprintf(&sys, "\n[%s]\n%s\n", block.Source, block.Formatted)
		}
	}

	msgs := make([]ai.Message, 0, len(recentDesc)+2)
	msgs = append(msgs, ai.Message{Role: chat.RoleSystem, Content: sys.String()})
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: chat.RoleUser, Content: query})
	return msgs, nil
}

const maxTitleLen = 60

func deriveTitle(userMessage string) string {
	title := strings.Join(strings.Fields(userMessage), " ")
	if title == "" {
		return ""
	}
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen-1]) + "…"
	}
	return title
}

// ListSessions pages a profile's sessions by recency.
func (s *Service) ListSessions(ctx context.Context, profileID uint64, limit int, before time.Time) ([]chat.Session, error) {
	return s.sessions.ListSessions(ctx, profileID, limit, before)
}

// SessionMessages returns the full ordered history after an ownership check.
func (s *Service) SessionMessages(ctx context.Context, profileID uint64, sessionID string) (*chat.Session, []chat.Message, error) {
	sess, err := s.sessions.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.ProfileID != profileID {
		return nil, nil, common.ErrAccessDenied
	}
	msgs, err := s.sessions.ListMessagesAsc(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, msgs, nil
}

// DeleteSession soft-deletes after an ownership check. Memories keep their
// source_session_id reference, so rows are never hard-deleted.
func (s *Service) DeleteSession(ctx context.Context, profileID uint64, sessionID string) error {
	sess, err := s.sessions.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.ProfileID != profileID {
		return common.ErrAccessDenied
	}
	return s.sessions.SoftDeleteSession(ctx, sessionID)
}
