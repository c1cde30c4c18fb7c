package profile

import (
	"fmt"
	"strings"
	"time"
)

// LearnerProfile is read-only input to prompt assembly. Profile editing
// belongs to the surrounding platform.
type LearnerProfile struct {
	ID            uint64    `gorm:"primaryKey" json:"-"`
	Role          string    `gorm:"type:varchar(64)" json:"role"`
	Experience    string    `gorm:"type:varchar(64)" json:"experience"`
	TechStack     string    `gorm:"type:varchar(255)" json:"tech_stack"`
	Goals         string    `gorm:"type:text" json:"goals"`
	LearningStyle string    `gorm:"type:varchar(64)" json:"learning_style"`
	Pace          string    `gorm:"type:varchar(32)" json:"pace"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

func (LearnerProfile) TableName() string { return "learner_profiles" }

// PromptSummary renders the profile as compact lines for the system prompt.
// Empty fields are omitted.
func (p *LearnerProfile) PromptSummary() string {
	var b strings.Builder
	add := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	add("Role", p.Role)
	add("Experience", p.Experience)
	add("Tech stack", p.TechStack)
	add("Goals", p.Goals)
	add("Learning style", p.LearningStyle)
	add("Pace", p.Pace)
	return strings.TrimRight(b.String(), "\n")
}
