package worker

import (
	"context"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentTracker walks a document through the ingestion lifecycle:
// pending -> parsing -> chunked -> indexed, or failed at any step.
type DocumentTracker interface {
	MarkParsing(ctx context.Context, id string) error
	MarkChunked(ctx context.Context, id string, pages, chunkCount int) error
	MarkIndexed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	AddChunksIndexed(ctx context.Context, id string, n int) error
}

// TaskPublisher enqueues a message on a topic.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
