package vector

import (
	"context"
	"errors"
)

var (
	// ErrDimension means a vector's dimension does not match the index's
	// configured dimension. Never coerced; the index is left unmodified.
	ErrDimension = errors.New("vector dimension mismatch")

	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("vector index unavailable")
)

// Entry is one stored chunk vector plus the metadata needed for attribution.
type Entry struct {
	ChunkID    string
	DocumentID string
	Seq        int
	Page       int
	Start      int
	End        int
	Text       string
	Vector     []float32
}

// Match is a search hit. Score is cosine similarity in [-1, 1].
type Match struct {
	Entry Entry
	Score float64
}

// Index stores chunk vectors and answers nearest-neighbor queries.
//
// Implementations guarantee: a fixed dimension for all stored vectors;
// deterministic search ordering (descending score, ties broken by ascending
// chunk sequence); and DeleteDocument atomic with respect to concurrent
// Search calls.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context) (int, error)
}
