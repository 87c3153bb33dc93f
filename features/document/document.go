package document

import (
	"context"
	"time"
)

// Lifecycle statuses. A document moves pending -> parsing -> chunked ->
// indexed, or lands in failed at whichever step broke.
const (
	StatusPending = "pending"
	StatusParsing = "parsing"
	StatusChunked = "chunked"
	StatusIndexed = "indexed"
	StatusFailed  = "failed"
)

type Document struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	ContentHash   string    `json:"-"`
	StoragePath   string    `json:"-"`
	Status        string    `json:"status"`
	Pages         int       `json:"pages"`
	ChunkCount    int       `json:"chunk_count"`
	ChunksIndexed int       `json:"chunks_indexed"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	// Ingestion lifecycle, driven by the worker.
	MarkParsing(ctx context.Context, id string) error
	MarkChunked(ctx context.Context, id string, pages, chunkCount int) error
	MarkIndexed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	AddChunksIndexed(ctx context.Context, id string, n int) error
	ResetForIngest(ctx context.Context, id string) error
}
