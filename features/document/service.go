package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docchat/internal/config"
	"docchat/internal/middleware"
	"docchat/internal/vector"
	"docchat/internal/worker"
)

// ErrDuplicate means a document with the same content hash already exists.
var ErrDuplicate = errors.New("duplicate document")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo  Repository
	pub   EventPublisher
	index vector.Index
}

func NewService(repo Repository, pub EventPublisher, index vector.Index) *Service {
	return &Service{repo: repo, pub: pub, index: index}
}

// Upload registers an already-saved file and queues it for ingestion. The
// content hash deduplicates byte-identical uploads regardless of filename.
func (s *Service) Upload(ctx context.Context, path, hash, filename string) (*Document, error) {
	exists, err := s.repo.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	doc := &Document{
		Filename:    filename,
		ContentHash: hash,
		StoragePath: path,
		Status:      StatusPending,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.publishIngest(ctx, doc); err != nil {
		// The row exists; ingestion can still be kicked off via resync.
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "document_id", doc.ID)
	}

	return doc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete removes the document's vectors first, then soft-deletes the row.
// Vectors go first so a partial failure never leaves orphaned chunks that
// still surface in retrieval.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return s.repo.SoftDelete(ctx, id)
}

// ReSync re-runs ingestion for a document from its stored file.
func (s *Service) ReSync(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.ResetForIngest(ctx, id); err != nil {
		return err
	}

	if err := s.publishIngest(ctx, doc); err != nil {
		slog.ErrorContext(ctx, "failed to publish resync task", "error", err, "document_id", id)
		return err
	}
	return nil
}

func (s *Service) publishIngest(ctx context.Context, doc *Document) error {
	payload, err := json.Marshal(worker.IngestTaskPayload{
		DocumentID:    doc.ID,
		Path:          doc.StoragePath,
		Filename:      doc.Filename,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}

	if err := s.pub.Publish(config.TopicIngestTask, payload); err != nil {
		return err
	}
	slog.InfoContext(ctx, "published ingest task", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}
