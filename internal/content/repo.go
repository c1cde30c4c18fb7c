package content

import (
	"context"
	"math"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Filter narrows a similarity search to one corpus plus optional metadata.
type Filter struct {
	Source        Source
	Author        string
	Technology    string
	Limit         int
	MinSimilarity float64
}

// Match pairs a chunk with its similarity to the query embedding.
type Match struct {
	Chunk      Chunk
	Similarity float64
}

// UpsertChunk inserts a chunk, or no-ops when (source, source_ref) exists.
// Used by the ingestion path and test seeding.
func (r *Repo) UpsertChunk(ctx context.Context, c *Chunk) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_ref"}},
			DoNothing: true,
		}).
		Create(c).Error
}

// SimilaritySearch ranks a source's chunks by cosine similarity to the query
// embedding, descending, keeping only matches at or above the floor.
// Chunks with a missing or mismatched embedding are skipped.
func (r *Repo) SimilaritySearch(ctx context.Context, query []float32, f Filter) ([]Match, error) {
	if f.Limit <= 0 {
		f.Limit = 5
	}

	q := r.db.WithContext(ctx).Where("source = ?", f.Source)
	if f.Author != "" {
		q = q.Where("author = ?", f.Author)
	}
	if f.Technology != "" {
		q = q.Where("technology = ?", f.Technology)
	}

	var chunks []Chunk
	if err := q.Find(&chunks).Error; err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(chunks))
	for _, c := range chunks {
		sim := Cosine(query, c.Embedding)
		if sim < f.MinSimilarity {
			continue
		}
		matches = append(matches, Match{Chunk: c, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
