package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docchat/internal/vector"
)

// Index is a brute-force cosine similarity index held entirely in memory.
// It is the reference implementation of the vector.Index invariants and the
// backend used when VECTOR_BACKEND=memory.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]storedEntry // keyed by chunk id
}

type storedEntry struct {
	entry vector.Entry
	norm  []float32
}

func NewIndex(dimension int) *Index {
	return &Index{
		dimension: dimension,
		entries:   make(map[string]storedEntry),
	}
}

// Upsert validates every vector before touching the index, so a dimension
// mismatch anywhere in the batch leaves prior state intact.
func (idx *Index) Upsert(ctx context.Context, entries []vector.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != idx.dimension {
			return fmt.Errorf("%w: got %d, index configured for %d", vector.ErrDimension, len(e.Vector), idx.dimension)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, e := range entries {
		idx.entries[e.ChunkID] = storedEntry{entry: e, norm: normalize(e.Vector)}
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, vec []float32, k int) ([]vector.Match, error) {
	if len(vec) != idx.dimension {
		return nil, fmt.Errorf("%w: query has %d, index configured for %d", vector.ErrDimension, len(vec), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	q := normalize(vec)

	idx.mu.RLock()
	matches := make([]vector.Match, 0, len(idx.entries))
	for _, s := range idx.entries {
		matches = append(matches, vector.Match{Entry: s.entry, Score: dot(s.norm, q)})
	}
	idx.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Entry.Seq != matches[j].Entry.Seq {
			return matches[i].Entry.Seq < matches[j].Entry.Seq
		}
		return matches[i].Entry.ChunkID < matches[j].Entry.ChunkID
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteDocument removes all chunks of one document in a single critical
// section; a concurrent search observes either all of them or none.
func (idx *Index) DeleteDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for id, s := range idx.entries {
		if s.entry.DocumentID == documentID {
			delete(idx.entries, id)
		}
	}
	return nil
}

func (idx *Index) CountChunks(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
