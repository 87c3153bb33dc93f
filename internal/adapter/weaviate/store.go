package weaviate

import (
	"context"
	"fmt"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docchat/internal/vector"
)

// Store implements vector.Index on top of a remote Weaviate instance.
// The schema (vector.EnsureSchema) is created at bootstrap with
// vectorizer "none"; all vectors come from our own embedder.
type Store struct {
	client    *weaviate.Client
	dimension int
}

func NewStore(client *weaviate.Client, dimension int) *Store {
	return &Store{client: client, dimension: dimension}
}

func (s *Store) Upsert(ctx context.Context, entries []vector.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: got %d, index configured for %d", vector.ErrDimension, len(e.Vector), s.dimension)
		}
	}

	batcher := s.client.Batch().ObjectsBatcher()
	for _, e := range entries {
		batcher = batcher.WithObjects(&models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":     e.Text,
				"documentId":  e.DocumentID,
				"chunkId":     e.ChunkID,
				"chunkIndex":  e.Seq,
				"page":        e.Page,
				"startOffset": e.Start,
				"endOffset":   e.End,
			},
			Vector: e.Vector,
		})
	}
	if _, err := batcher.Do(ctx); err != nil {
		return fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]vector.Match, error) {
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index configured for %d", vector.ErrDimension, len(vec), s.dimension)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "chunkId"},
		{Name: "chunkIndex"},
		{Name: "page"},
		{Name: "startOffset"},
		{Name: "endOffset"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql error: %v", vector.ErrUnavailable, res.Errors)
	}

	var matches []vector.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if chunks, ok := data[vector.ClassName].([]interface{}); ok {
			for _, c := range chunks {
				props, ok := c.(map[string]interface{})
				if !ok {
					continue
				}
				matches = append(matches, matchFrom(props))
			}
		}
	}

	// Weaviate already orders by distance; re-sort so equal scores resolve
	// by ascending chunk sequence the same way the memory index does.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entry.Seq < matches[j].Entry.Seq
	})

	return matches, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("%w: graphql error: %v", vector.ErrUnavailable, res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := agg[vector.ClassName].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func matchFrom(props map[string]interface{}) vector.Match {
	m := vector.Match{}
	if v, ok := props["content"].(string); ok {
		m.Entry.Text = v
	}
	if v, ok := props["documentId"].(string); ok {
		m.Entry.DocumentID = v
	}
	if v, ok := props["chunkId"].(string); ok {
		m.Entry.ChunkID = v
	}
	if v, ok := props["chunkIndex"].(float64); ok {
		m.Entry.Seq = int(v)
	}
	if v, ok := props["page"].(float64); ok {
		m.Entry.Page = int(v)
	}
	if v, ok := props["startOffset"].(float64); ok {
		m.Entry.Start = int(v)
	}
	if v, ok := props["endOffset"].(float64); ok {
		m.Entry.End = int(v)
	}
	if additional, ok := props["_additional"].(map[string]interface{}); ok {
		if certainty, ok := additional["certainty"].(float64); ok {
			// Weaviate certainty is (1 + cosine)/2; map back to cosine so
			// both index backends score on the same scale.
			m.Score = 2*certainty - 1
		}
	}
	return m
}
