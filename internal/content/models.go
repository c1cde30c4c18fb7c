package content

import "time"

// Source identifies which corpus a chunk came from.
type Source string

const (
	SourceOfficialDocs  Source = "official_docs"
	SourceBook          Source = "book"
	SourceVideo         Source = "video"
	SourceArticle       Source = "article"
	SourceCommunityPost Source = "community_post"
)

// Sources lists every supported corpus in a stable order.
var Sources = []Source{
	SourceOfficialDocs,
	SourceBook,
	SourceVideo,
	SourceArticle,
	SourceCommunityPost,
}

func (s Source) Valid() bool {
	switch s {
	case SourceOfficialDocs, SourceBook, SourceVideo, SourceArticle, SourceCommunityPost:
		return true
	}
	return false
}

// Chunk is one retrievable unit of pre-embedded source material.
// Rows are written by the ingestion pipeline and immutable afterwards;
// this service only reads them. (source, source_ref) is the dedup key.
type Chunk struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Source      Source    `gorm:"type:varchar(32);not null;index;uniqueIndex:uniq_content_source_ref,priority:1" json:"source"`
	SourceRef   string    `gorm:"type:varchar(191);not null;uniqueIndex:uniq_content_source_ref,priority:2" json:"source_ref"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Embedding   []float32 `gorm:"type:json;serializer:json" json:"-"`
	TokenCount  int       `gorm:"not null" json:"token_count"`
	Author      *string   `gorm:"type:varchar(128)" json:"author,omitempty"`
	Technology  *string   `gorm:"type:varchar(64);index" json:"technology,omitempty"`
	ParentDocID *string   `gorm:"type:varchar(191)" json:"parent_doc_id,omitempty"`
	SectionPath *string   `gorm:"type:varchar(255)" json:"section_path,omitempty"`
	TimeRange   *string   `gorm:"type:varchar(32)" json:"time_range,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Chunk) TableName() string { return "content_chunks" }
