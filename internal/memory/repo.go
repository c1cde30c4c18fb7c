package memory

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) Insert(ctx context.Context, m *Memory) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListActive returns a profile's non-superseded memories, oldest first.
func (r *Repo) ListActive(ctx context.Context, profileID uint64) ([]Memory, error) {
	var out []Memory
	err := r.db.WithContext(ctx).
		Where("profile_id = ? AND superseded_at IS NULL", profileID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListActiveByCategory returns a profile's non-superseded memories in one
// category, oldest first.
func (r *Repo) ListActiveByCategory(ctx context.Context, profileID uint64, category Category) ([]Memory, error) {
	var out []Memory
	err := r.db.WithContext(ctx).
		Where("profile_id = ? AND category = ? AND superseded_at IS NULL", profileID, category).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// Supersede marks the old row inactive, linking it to its replacement.
func (r *Repo) Supersede(ctx context.Context, oldID, newID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Memory{}).
		Where("id = ? AND superseded_at IS NULL", oldID).
		Updates(map[string]any{
			"superseded_at":    at,
			"superseded_by_id": newID,
		}).Error
}

// BumpOccurrence increments occurrence_count and raises importance to the
// given value when higher than the stored one.
func (r *Repo) BumpOccurrence(ctx context.Context, id uint64, importance float64) error {
	return r.db.WithContext(ctx).Model(&Memory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"occurrence_count": gorm.Expr("occurrence_count + 1"),
			"importance":       gorm.Expr("CASE WHEN importance < ? THEN ? ELSE importance END", importance, importance),
		}).Error
}
