package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/novalearn/nova-coach/internal/common"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx returns a Repo bound to the given transaction.
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSessionBySessionID returns the session or common.ErrNotFound.
// Soft-deleted sessions are treated as absent.
func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND deleted_at IS NULL", sessionID).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns a profile's sessions, most recent activity first.
// before is an exclusive cursor on last_message_at; zero means no cursor.
func (r *Repo) ListSessions(ctx context.Context, profileID uint64, limit int, before time.Time) ([]Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("profile_id = ? AND deleted_at IS NULL", profileID).
		Order("last_message_at DESC").
		Limit(limit)
	if !before.IsZero() {
		q = q.Where("last_message_at < ?", before)
	}

	var sessions []Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// SoftDeleteSession marks the session deleted. Returns common.ErrNotFound
// when already deleted or absent.
func (r *Repo) SoftDeleteSession(ctx context.Context, sessionID string) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ? AND deleted_at IS NULL", sessionID).
		Update("deleted_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// TouchSession bumps last_message_at, setting the title once when the
// session does not have one yet.
func (r *Repo) TouchSession(ctx context.Context, sessionID string, at time.Time, title string) error {
	updates := map[string]any{"last_message_at": at}
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ? AND deleted_at IS NULL", sessionID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if title != "" {
		r.db.WithContext(ctx).Model(&Session{}).
			Where("session_id = ? AND title IS NULL", sessionID).
			Update("title", title)
	}
	return nil
}

// AdvanceWatermark moves the consolidation checkpoint, guarded against a
// concurrent pass that already advanced it. prev is the watermark observed
// when the pass began (nil before the first pass). Returns false when the
// guard lost the race and nothing was written.
func (r *Repo) AdvanceWatermark(ctx context.Context, sessionID string, prev *uint64, upto uint64, at time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID)
	if prev == nil {
		q = q.Where("last_processed_message_id IS NULL")
	} else {
		q = q.Where("last_processed_message_id = ?", *prev)
	}
	res := q.Updates(map[string]any{
		"last_processed_message_id": upto,
		"last_memory_extraction_at": at,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListRecentMessagesDesc returns the most recent messages in DESC id order
// (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListMessagesAsc returns the full message history in creation order.
func (r *Repo) ListMessagesAsc(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// MessagesAfter returns messages with id > afterID in ASC order.
// afterID == 0 means from the beginning.
func (r *Repo) MessagesAfter(ctx context.Context, sessionID string, afterID uint64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC")
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
