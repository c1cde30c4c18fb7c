package retrieval

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/novalearn/nova-coach/internal/content"
)

// SourceQuery is one corpus lookup issued during context assembly.
type SourceQuery struct {
	Source content.Source
	Query  string
	Opts   Options
}

// SourceBlock is a per-source formatted context block. A source that
// errored or timed out yields an empty Formatted string; the turn proceeds
// without it.
type SourceBlock struct {
	Source    content.Source
	Formatted string
	Err       error
}

// FetchContext fans the queries out concurrently against the read-only
// content store and joins the formatted blocks in input order. Each call
// is bounded by the engine timeout, so one slow source cannot stall the
// turn.
func (e *Engine) FetchContext(ctx context.Context, queries []SourceQuery) []SourceBlock {
	blocks := make([]SourceBlock, len(queries))

	var wg sync.WaitGroup
	wg.Add(len(queries))
	for i, q := range queries {
		go func(i int, q SourceQuery) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			formatted, err := e.SearchFormatted(cctx, q.Query, q.Source, q.Opts)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					e.log.Warn("retrieval source timed out",
						zap.String("source", string(q.Source)))
				} else {
					e.log.Warn("retrieval source failed",
						zap.String("source", string(q.Source)), zap.Error(err))
				}
				blocks[i] = SourceBlock{Source: q.Source, Err: err}
				return
			}
			blocks[i] = SourceBlock{Source: q.Source, Formatted: formatted}
		}(i, q)
	}
	wg.Wait()

	return blocks
}
