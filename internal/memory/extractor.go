package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/novalearn/nova-coach/internal/ai"
	"github.com/novalearn/nova-coach/internal/chat"
)

// Candidate is one fact proposed by extraction before merging.
type Candidate struct {
	Category   Category `json:"category"`
	Content    string   `json:"content"`
	Importance float64  `json:"importance"`
}

// Extractor mines a transcript slice for candidate facts.
type Extractor interface {
	Extract(ctx context.Context, transcript []chat.Message) ([]Candidate, error)
}

const extractSystemPrompt = `You analyze a tutoring conversation and extract durable facts about the learner.
Return a JSON array, no prose. Each element: {"category": "...", "content": "...", "importance": 0.0-1.0}.
Valid categories: current_focus, preferred_examples, topic_discussed, concept_explained, struggle_identified, strength_demonstrated, question_asked.
Only include facts worth remembering across sessions. Return [] when there are none.`

// LLMExtractor asks a chat provider for candidates and parses its JSON reply.
type LLMExtractor struct {
	Provider ai.Provider
}

func NewLLMExtractor(p ai.Provider) *LLMExtractor {
	return &LLMExtractor{Provider: p}
}

func (e *LLMExtractor) Extract(ctx context.Context, transcript []chat.Message) ([]Candidate, error) {
	if len(transcript) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for _, m := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	reply, err := e.Provider.Chat(ctx, []ai.Message{
		{Role: chat.RoleSystem, Content: extractSystemPrompt},
		{Role: chat.RoleUser, Content: b.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	return parseCandidates(reply)
}

// parseCandidates tolerates code fences and surrounding prose around the
// JSON array. Invalid categories are dropped, importance is clamped.
func parseCandidates(reply string) ([]Candidate, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("extract: no JSON array in reply")
	}

	var raw []Candidate
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" || !c.Category.Valid() {
			continue
		}
		if c.Importance <= 0 {
			c.Importance = DefaultImportance
		}
		if c.Importance > 1 {
			c.Importance = 1
		}
		out = append(out, c)
	}
	return out, nil
}
