package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/novalearn/nova-coach/internal/content"
	"github.com/novalearn/nova-coach/internal/embedding"
)

// Cache stores ranked results keyed by query fingerprint. Implemented by
// redisstore.Store; nil disables caching.
type Cache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

const cacheTTL = 5 * time.Minute

// Options override the engine defaults per call. Zero values fall back.
type Options struct {
	Author        string
	Technology    string
	Limit         int
	MinSimilarity float64
}

// Engine answers per-source similarity searches over the content store.
type Engine struct {
	chunks   *content.Repo
	embedder embedding.Embedder
	cache    Cache
	log      *zap.Logger

	limit   int
	minSim  float64
	budget  int // tokens, for formatted output
	timeout time.Duration
}

func NewEngine(chunks *content.Repo, embedder embedding.Embedder, cache Cache, log *zap.Logger, limit int, minSimilarity float64, budgetTokens int, timeout time.Duration) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if limit <= 0 {
		limit = 5
	}
	if minSimilarity <= 0 {
		minSimilarity = 0.65
	}
	if budgetTokens <= 0 {
		budgetTokens = DefaultTokenBudget
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Engine{
		chunks:   chunks,
		embedder: embedder,
		cache:    cache,
		log:      log,
		limit:    limit,
		minSim:   minSimilarity,
		budget:   budgetTokens,
		timeout:  timeout,
	}
}

func (e *Engine) TokenBudget() int { return e.budget }

// Search returns ranked results for one source, descending similarity,
// filtered by the similarity floor. Fewer than limit results is valid.
func (e *Engine) Search(ctx context.Context, query string, source content.Source, opts Options) ([]Result, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("retrieval: unknown source %q", source)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = e.limit
	}
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = e.minSim
	}

	if cached, ok := e.cached(ctx, query, source, opts, limit, minSim); ok {
		return cached, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	matches, err := e.chunks.SimilaritySearch(ctx, vec, content.Filter{
		Source:        source,
		Author:        opts.Author,
		Technology:    opts.Technology,
		Limit:         limit,
		MinSimilarity: minSim,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		r := Result{
			Source:     m.Chunk.Source,
			Title:      m.Chunk.Title,
			Content:    m.Chunk.Content,
			Similarity: m.Similarity,
			TokenCount: m.Chunk.TokenCount,
		}
		if m.Chunk.Author != nil {
			r.Author = *m.Chunk.Author
		}
		results = append(results, r)
	}

	e.store(ctx, query, source, opts, limit, minSim, results)
	return results, nil
}

// SearchFormatted runs Search and renders the results under the engine's
// token budget.
func (e *Engine) SearchFormatted(ctx context.Context, query string, source content.Source, opts Options) (string, error) {
	results, err := e.Search(ctx, query, source, opts)
	if err != nil {
		return "", err
	}
	return FormatResults(results, e.budget), nil
}

func cacheKey(query string, source content.Source, opts Options, limit int, minSim float64) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%d|%.4f", source, query, opts.Author, opts.Technology, limit, minSim))
	return "retrieval:" + hex.EncodeToString(h[:16])
}

func (e *Engine) cached(ctx context.Context, query string, source content.Source, opts Options, limit int, minSim float64) ([]Result, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, ok, err := e.cache.GetBytes(ctx, cacheKey(query, source, opts, limit, minSim))
	if err != nil || !ok {
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (e *Engine) store(ctx context.Context, query string, source content.Source, opts Options, limit int, minSim float64, results []Result) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := e.cache.SetBytes(ctx, cacheKey(query, source, opts, limit, minSim), raw, cacheTTL); err != nil {
		e.log.Debug("retrieval cache write failed", zap.Error(err))
	}
}
