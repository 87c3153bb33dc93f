package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/config"
	"docchat/internal/vector"
	"docchat/internal/vector/memory"
	"docchat/internal/worker"
)

type fakeRepo struct {
	Repository
	docs    map[string]*Document
	hashes  map[string]bool
	deleted []string
	resets  []string
	saveErr error
	nextID  string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: map[string]*Document{}, hashes: map[string]bool{}, nextID: "doc-1"}
}

func (f *fakeRepo) Save(ctx context.Context, doc *Document) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	doc.ID = f.nextID
	f.docs[doc.ID] = doc
	f.hashes[doc.ContentHash] = true
	return nil
}

func (f *fakeRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	return f.hashes[hash], nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeRepo) SoftDelete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) ResetForIngest(ctx context.Context, id string) error {
	f.resets = append(f.resets, id)
	return nil
}

type capturingPublisher struct {
	topics []string
	bodies [][]byte
	err    error
}

func (p *capturingPublisher) Publish(topic string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.bodies = append(p.bodies, body)
	return nil
}

func TestUpload_PublishesIngestTask(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturingPublisher{}
	svc := NewService(repo, pub, memory.NewIndex(3))

	doc, err := svc.Upload(context.Background(), "/uploads/abc_report.pdf", "hash1", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, StatusPending, doc.Status)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, config.TopicIngestTask, pub.topics[0])

	var payload worker.IngestTaskPayload
	require.NoError(t, json.Unmarshal(pub.bodies[0], &payload))
	assert.Equal(t, "doc-1", payload.DocumentID)
	assert.Equal(t, "/uploads/abc_report.pdf", payload.Path)
	assert.Equal(t, "report.pdf", payload.Filename)
}

func TestUpload_DuplicateHashRejected(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturingPublisher{}
	svc := NewService(repo, pub, memory.NewIndex(3))

	_, err := svc.Upload(context.Background(), "/uploads/a.pdf", "hash1", "a.pdf")
	require.NoError(t, err)

	// Same bytes, different filename: still a duplicate.
	_, err = svc.Upload(context.Background(), "/uploads/b.pdf", "hash1", "b.pdf")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, pub.topics, 1, "no second task published")
}

func TestUpload_PublishFailureKeepsDocument(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturingPublisher{err: errors.New("nsqd down")}
	svc := NewService(repo, pub, memory.NewIndex(3))

	// The document row survives so a later resync can kick ingestion off.
	doc, err := svc.Upload(context.Background(), "/uploads/a.pdf", "hash1", "a.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
}

func TestDelete_RemovesVectorsBeforeRow(t *testing.T) {
	repo := newFakeRepo()
	idx := memory.NewIndex(3)
	svc := NewService(repo, &capturingPublisher{}, idx)

	repo.docs["doc-1"] = &Document{ID: "doc-1"}
	require.NoError(t, idx.Upsert(context.Background(), []vector.Entry{
		{ChunkID: "doc-1#0", DocumentID: "doc-1", Vector: []float32{1, 0, 0}},
		{ChunkID: "doc-2#0", DocumentID: "doc-2", Vector: []float32{0, 1, 0}},
	}))

	require.NoError(t, svc.Delete(context.Background(), "doc-1"))

	n, err := idx.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the deleted document's chunks removed")
	assert.Equal(t, []string{"doc-1"}, repo.deleted)
}

func TestDelete_UnknownDocument(t *testing.T) {
	svc := NewService(newFakeRepo(), &capturingPublisher{}, memory.NewIndex(3))
	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReSync_ResetsAndRepublishes(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturingPublisher{}
	svc := NewService(repo, pub, memory.NewIndex(3))

	repo.docs["doc-1"] = &Document{ID: "doc-1", Filename: "a.pdf", StoragePath: "/uploads/a.pdf", Status: StatusFailed}

	require.NoError(t, svc.ReSync(context.Background(), "doc-1"))
	assert.Equal(t, []string{"doc-1"}, repo.resets)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, config.TopicIngestTask, pub.topics[0])
}

func TestReSync_PublishFailurePropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.docs["doc-1"] = &Document{ID: "doc-1", StoragePath: "/uploads/a.pdf"}
	svc := NewService(repo, &capturingPublisher{err: errors.New("nsqd down")}, memory.NewIndex(3))

	assert.Error(t, svc.ReSync(context.Background(), "doc-1"))
}
