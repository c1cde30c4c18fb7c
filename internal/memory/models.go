package memory

import "time"

// Category classifies an extracted fact about the learner.
type Category string

const (
	// Single-slot: the latest fact wins, the previous one is superseded.
	CategoryCurrentFocus      Category = "current_focus"
	CategoryPreferredExamples Category = "preferred_examples"

	// Multi-slot: facts accumulate; near-duplicates bump occurrence_count.
	CategoryTopicDiscussed        Category = "topic_discussed"
	CategoryConceptExplained      Category = "concept_explained"
	CategoryStruggleIdentified    Category = "struggle_identified"
	CategoryStrengthDemonstrated  Category = "strength_demonstrated"
	CategoryQuestionAsked         Category = "question_asked"
)

var Categories = []Category{
	CategoryCurrentFocus,
	CategoryPreferredExamples,
	CategoryTopicDiscussed,
	CategoryConceptExplained,
	CategoryStruggleIdentified,
	CategoryStrengthDemonstrated,
	CategoryQuestionAsked,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryCurrentFocus, CategoryPreferredExamples,
		CategoryTopicDiscussed, CategoryConceptExplained,
		CategoryStruggleIdentified, CategoryStrengthDemonstrated,
		CategoryQuestionAsked:
		return true
	}
	return false
}

// SingleSlot reports whether a new fact in this category replaces the
// previous one instead of accumulating.
func (c Category) SingleSlot() bool {
	return c == CategoryCurrentFocus || c == CategoryPreferredExamples
}

const DefaultImportance = 0.5

// Memory is one long-term fact about a learner. A row with SupersededAt
// set is inactive and excluded from retrieval; SupersededByID always
// points to a strictly newer row in the same category and profile, so the
// chain is acyclic by construction.
type Memory struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID       uint64    `gorm:"not null;index:idx_memories_profile_category,priority:1" json:"-"`
	Category        Category  `gorm:"type:varchar(32);not null;index:idx_memories_profile_category,priority:2" json:"category"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	Embedding       []float32 `gorm:"type:json;serializer:json" json:"-"`
	Importance      float64   `gorm:"not null;default:0.5" json:"importance"`
	OccurrenceCount int       `gorm:"not null;default:1" json:"occurrence_count"`
	SourceSessionID string    `gorm:"type:varchar(26);not null;index" json:"source_session_id"`

	SupersededAt   *time.Time `gorm:"index" json:"superseded_at,omitempty"`
	SupersededByID *uint64    `json:"superseded_by_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Memory) TableName() string { return "learner_memories" }

// Active reports whether the memory is current (not superseded).
func (m *Memory) Active() bool { return m.SupersededAt == nil }
