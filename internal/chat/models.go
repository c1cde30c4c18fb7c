package chat

import (
	"time"

	"github.com/novalearn/nova-coach/internal/common"
)

// Session is one learner conversation. Soft-deleted rows stay in place
// because memories keep a source_session_id reference.
type Session struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string  `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	ProfileID uint64  `gorm:"index;not null" json:"-"`
	Title     *string `gorm:"type:varchar(120)" json:"title,omitempty"`

	LastMessageAt time.Time  `gorm:"index;not null" json:"last_message_at"`
	DeletedAt     *time.Time `gorm:"index" json:"-"`

	// Consolidation watermark. LastProcessedMessageID references a message
	// of this session, or is null before the first pass.
	LastMemoryExtractionAt *time.Time `json:"-"`
	LastProcessedMessageID *uint64    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

func (Session) TableName() string { return "coach_sessions" }

func NewSessionID() (string, error) { return common.NewULID() }

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is immutable once persisted. The autoincrement id is the
// tiebreaker for equal created_at values, so (session_id, id) is the
// ordering key in practice.
type Message struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"type:varchar(26);not null;index:idx_coach_msg_session_id" json:"session_id"`
	ProfileID  uint64    `gorm:"not null;index" json:"-"`
	Role       string    `gorm:"type:varchar(16);not null" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	TokensUsed *int      `json:"tokens_used,omitempty"`
	Model      *string   `gorm:"type:varchar(64)" json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Message) TableName() string { return "coach_messages" }
