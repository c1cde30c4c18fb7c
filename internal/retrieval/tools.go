package retrieval

import (
	"context"
	"fmt"

	"github.com/novalearn/nova-coach/internal/content"
)

// Tool is a named, typed search callable exposed to the model-orchestration
// layer, one per corpus, so the model can pick which corpus to query per
// sub-question.
type Tool struct {
	Name        string
	Description string
	Source      content.Source
}

var tools = []Tool{
	{Name: "search_official_docs", Description: "Search official documentation pages.", Source: content.SourceOfficialDocs},
	{Name: "search_books", Description: "Search book excerpts.", Source: content.SourceBook},
	{Name: "search_video_transcripts", Description: "Search video transcript segments.", Source: content.SourceVideo},
	{Name: "search_articles", Description: "Search technical articles.", Source: content.SourceArticle},
	{Name: "search_community_posts", Description: "Search community Q&A posts.", Source: content.SourceCommunityPost},
}

// Tools lists the per-source search tools in a stable order.
func (e *Engine) Tools() []Tool {
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}

// Invoke runs the named tool and returns token-budgeted formatted output.
func (e *Engine) Invoke(ctx context.Context, name, query string) (string, error) {
	for _, t := range tools {
		if t.Name == name {
			return e.SearchFormatted(ctx, query, t.Source, Options{})
		}
	}
	return "", fmt.Errorf("retrieval: unknown tool %q", name)
}
