package memory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/novalearn/nova-coach/internal/chat"
	"github.com/novalearn/nova-coach/internal/common"
)

// Locker serializes consolidation passes per session. A nil Locker means
// the caller relies on the watermark guard alone.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

const lockTTL = 2 * time.Minute

// errWatermarkRaced aborts the transaction when another pass advanced the
// watermark first. Swallowed by Consolidate: the other pass did the work.
var errWatermarkRaced = errors.New("consolidation watermark raced")

// Consolidator mines unprocessed transcript segments into learner memories.
type Consolidator struct {
	db        *gorm.DB
	extractor Extractor
	locker    Locker
	log       *zap.Logger
	threshold float64
}

func NewConsolidator(db *gorm.DB, extractor Extractor, locker Locker, log *zap.Logger, threshold float64) *Consolidator {
	if log == nil {
		log = zap.NewNop()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return &Consolidator{db: db, extractor: extractor, locker: locker, log: log, threshold: threshold}
}

// Consolidate runs one extraction pass over the session's messages created
// after the watermark, up to and including the most recent assistant
// message. Idempotent: the watermark only advances in the same transaction
// as the memory writes, so a failed pass retries the same range and a
// duplicate invocation no-ops.
func (c *Consolidator) Consolidate(ctx context.Context, sessionID string) error {
	if c.locker != nil {
		key := "consolidate:" + sessionID
		got, err := c.locker.TryLock(ctx, key, lockTTL)
		if err != nil {
			return err
		}
		if !got {
			c.log.Debug("consolidation already in flight", zap.String("session_id", sessionID))
			return nil
		}
		defer func() { _ = c.locker.Unlock(context.WithoutCancel(ctx), key) }()
	}

	sessions := chat.NewRepo(c.db)

	sess, err := sessions.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}

	var after uint64
	if sess.LastProcessedMessageID != nil {
		after = *sess.LastProcessedMessageID
	}

	msgs, err := sessions.MessagesAfter(ctx, sessionID, after)
	if err != nil {
		return err
	}

	// Only consider the range up to the most recent assistant message;
	// a trailing user turn still awaits its reply.
	cut := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			cut = i
			break
		}
	}
	if cut < 0 {
		return nil
	}
	msgs = msgs[:cut+1]
	upto := msgs[len(msgs)-1].ID

	candidates, err := c.extractor.Extract(ctx, msgs)
	if err != nil {
		return err
	}

	now := time.Now()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read the watermark inside the transaction: a concurrent pass
		// may have advanced it since we sliced the transcript.
		cur, err := chat.NewRepo(tx).GetSessionBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		var curMark uint64
		if cur.LastProcessedMessageID != nil {
			curMark = *cur.LastProcessedMessageID
		}
		if curMark != after {
			return errWatermarkRaced
		}

		memories := NewRepo(tx)
		for _, cand := range candidates {
			if err := c.merge(ctx, memories, sess.ProfileID, sessionID, cand, now); err != nil {
				return err
			}
		}

		ok, err := chat.NewRepo(tx).AdvanceWatermark(ctx, sessionID, sess.LastProcessedMessageID, upto, now)
		if err != nil {
			return err
		}
		if !ok {
			return errWatermarkRaced
		}
		return nil
	})
	if errors.Is(err, errWatermarkRaced) {
		c.log.Debug("consolidation raced, skipping", zap.String("session_id", sessionID))
		return nil
	}
	if err != nil {
		return err
	}

	c.log.Info("consolidation pass complete",
		zap.String("session_id", sessionID),
		zap.Int("messages", len(msgs)),
		zap.Int("candidates", len(candidates)),
		zap.Uint64("watermark", upto),
	)
	return nil
}

// merge applies the per-category cardinality rule for one candidate.
func (c *Consolidator) merge(ctx context.Context, memories *Repo, profileID uint64, sessionID string, cand Candidate, now time.Time) error {
	active, err := memories.ListActiveByCategory(ctx, profileID, cand.Category)
	if err != nil {
		return err
	}

	if cand.Category.SingleSlot() {
		// Identical content keeps the existing slot untouched.
		for _, m := range active {
			if Normalize(m.Content) == Normalize(cand.Content) {
				return nil
			}
		}
		next := &Memory{
			ProfileID:       profileID,
			Category:        cand.Category,
			Content:         cand.Content,
			Importance:      cand.Importance,
			OccurrenceCount: 1,
			SourceSessionID: sessionID,
		}
		if err := memories.Insert(ctx, next); err != nil {
			return err
		}
		for _, m := range active {
			if err := memories.Supersede(ctx, m.ID, next.ID, now); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range active {
		if NearDuplicate(m.Content, cand.Content, c.threshold) {
			return memories.BumpOccurrence(ctx, m.ID, cand.Importance)
		}
	}
	return memories.Insert(ctx, &Memory{
		ProfileID:       profileID,
		Category:        cand.Category,
		Content:         cand.Content,
		Importance:      cand.Importance,
		OccurrenceCount: 1,
		SourceSessionID: sessionID,
	})
}
