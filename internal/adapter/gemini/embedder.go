package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"

	"docchat/internal/vector"
)

// ErrEmbedding wraps every embedding provider failure. Transient failures
// are retried with bounded exponential backoff before this surfaces.
var ErrEmbedding = errors.New("embedding failed")

type EmbedderConfig struct {
	Model       string
	Dimension   int
	RatePerSec  float64
	RateBurst   int
	MaxAttempts int
}

// Embedder converts batches of texts into fixed-dimension vectors. One call
// is one provider round trip; callers split large chunk lists into batches
// themselves so a failed batch never corrupts vectors already obtained.
type Embedder struct {
	client      *genai.Client
	model       string
	dimension   int
	limiter     *rate.Limiter
	maxAttempts int
}

func NewEmbedder(client *genai.Client, cfg EmbedderConfig) *Embedder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return &Embedder{
		client:      client,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		maxAttempts: cfg.MaxAttempts,
	}
}

// EmbedBatch returns one vector per input text, order preserved.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input batch", ErrEmbedding)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch = batch.AddContent(genai.Text(t))
	}

	var res *genai.BatchEmbedContentsResponse
	op := func() error {
		var err error
		res, err = em.BatchEmbedContents(ctx, batch)
		if err != nil {
			if isTransient(err) {
				slog.WarnContext(ctx, "transient embedding error, retrying", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", ErrEmbedding, len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at position %d", ErrEmbedding, i)
		}
		if e.dimension > 0 && len(emb.Values) != e.dimension {
			return nil, fmt.Errorf("%w: provider returned dimension %d, configured %d", vector.ErrDimension, len(emb.Values), e.dimension)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Embed is the single-text convenience used on the query path.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
