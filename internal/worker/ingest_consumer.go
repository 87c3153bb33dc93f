package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"docchat/features/job"
	"docchat/internal/middleware"
	"docchat/internal/parser"
	"docchat/internal/text"
	"docchat/internal/vector"
)

const embedTimeout = 60 * time.Second

// IngestConsumer processes ingest.task messages: load the uploaded file,
// parse it, chunk it, embed each chunk and index the vectors.
type IngestConsumer struct {
	tracker     DocumentTracker
	embedder    Embedder
	index       vector.Index
	chunker     *text.Chunker
	jobRepo     job.Repository
	batchSize   int
	maxAttempts uint16
}

func NewIngestConsumer(tracker DocumentTracker, embedder Embedder, index vector.Index, chunker *text.Chunker, jobRepo job.Repository, batchSize int, maxAttempts uint16) *IngestConsumer {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &IngestConsumer{
		tracker:     tracker,
		embedder:    embedder,
		index:       index,
		chunker:     chunker,
		jobRepo:     jobRepo,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.DocumentID == "" || payload.Path == "" {
		slog.Error("missing required fields, dropping", "document_id", payload.DocumentID, "path", payload.Path)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if err := h.process(ctx, m, payload); err != nil {
		if m.Attempts >= h.maxAttempts {
			slog.ErrorContext(ctx, "ingestion exhausted retries", "document_id", payload.DocumentID, "attempts", m.Attempts, "error", err)
			h.fail(ctx, m.Body, payload, err)
			return nil
		}
		slog.ErrorContext(ctx, "ingestion failed, will retry", "document_id", payload.DocumentID, "attempt", m.Attempts, "error", err)
		return err
	}
	return nil
}

func (h *IngestConsumer) process(ctx context.Context, m *nsq.Message, payload IngestTaskPayload) error {
	if err := h.tracker.MarkParsing(ctx, payload.DocumentID); err != nil {
		return err
	}

	data, err := os.ReadFile(payload.Path)
	if err != nil {
		h.fail(ctx, m.Body, payload, fmt.Errorf("read upload: %w", err))
		return nil
	}

	content, err := parser.Parse(data, payload.Filename)
	if err != nil {
		// Parse failures are deterministic, retrying won't help.
		h.fail(ctx, m.Body, payload, err)
		return nil
	}

	chunks := h.chunker.Chunk(content.Spans)
	if len(chunks) == 0 {
		h.fail(ctx, m.Body, payload, parser.ErrNoText)
		return nil
	}
	if err := h.tracker.MarkChunked(ctx, payload.DocumentID, content.Pages, len(chunks)); err != nil {
		return err
	}

	// Delete before indexing so a re-run never leaves stale chunks behind.
	if err := h.index.DeleteDocument(ctx, payload.DocumentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for start := 0; start < len(chunks); start += h.batchSize {
		end := min(start+h.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
		vectors, err := h.embedder.EmbedBatch(embedCtx, texts)
		cancel()
		if err != nil {
			if errors.Is(err, vector.ErrDimension) {
				h.fail(ctx, m.Body, payload, err)
				return nil
			}
			return fmt.Errorf("embed batch %d: %w", start/h.batchSize, err)
		}

		entries := make([]vector.Entry, len(batch))
		for i, c := range batch {
			entries[i] = vector.Entry{
				ChunkID:    fmt.Sprintf("%s#%d", payload.DocumentID, c.Seq),
				DocumentID: payload.DocumentID,
				Seq:        c.Seq,
				Page:       c.Page,
				Start:      c.Start,
				End:        c.End,
				Text:       c.Text,
				Vector:     vectors[i],
			}
		}

		if err := h.index.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("index batch %d: %w", start/h.batchSize, err)
		}
		if err := h.tracker.AddChunksIndexed(ctx, payload.DocumentID, len(batch)); err != nil {
			slog.WarnContext(ctx, "failed to record indexing progress", "document_id", payload.DocumentID, "error", err)
		}
	}

	if err := h.tracker.MarkIndexed(ctx, payload.DocumentID); err != nil {
		return err
	}

	slog.InfoContext(ctx, "document indexed", "document_id", payload.DocumentID, "chunks", len(chunks), "pages", content.Pages)
	return nil
}

// fail marks the document failed and records the original payload so the job
// can be replayed from the failed-jobs endpoint.
func (h *IngestConsumer) fail(ctx context.Context, body []byte, payload IngestTaskPayload, cause error) {
	if err := h.tracker.MarkFailed(ctx, payload.DocumentID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed", "document_id", payload.DocumentID, "error", err)
	}

	failedJob := &job.Job{
		DocumentID: payload.DocumentID,
		Handler:    "ingest-consumer",
		Payload:    json.RawMessage(body),
		Error:      cause.Error(),
	}
	if err := h.jobRepo.Save(ctx, failedJob); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "document_id", payload.DocumentID, "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failedJob.ID, "document_id", payload.DocumentID)
}
