package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (filename, content_hash, storage_path, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, doc.Filename, doc.ContentHash, doc.StoragePath, StatusPending).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash = $1 AND deleted_at IS NULL)`
	err := r.db.QueryRowContext(ctx, query, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

const docColumns = `id, filename, content_hash, storage_path, status, pages, chunk_count, chunks_indexed, COALESCE(error, ''), created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	query := `SELECT ` + docColumns + ` FROM documents WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Filename, &d.ContentHash, &d.StoragePath, &d.Status, &d.Pages, &d.ChunkCount, &d.ChunksIndexed, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.ContentHash, &d.StoragePath, &d.Status, &d.Pages, &d.ChunkCount, &d.ChunksIndexed, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE documents SET deleted_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func (r *PostgresRepo) MarkParsing(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = $1, error = NULL, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, StatusParsing, id)
	return err
}

func (r *PostgresRepo) MarkChunked(ctx context.Context, id string, pages, chunkCount int) error {
	query := `UPDATE documents SET status = $1, pages = $2, chunk_count = $3, chunks_indexed = 0, updated_at = NOW() WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, StatusChunked, pages, chunkCount, id)
	return err
}

func (r *PostgresRepo) MarkIndexed(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, StatusIndexed, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE documents SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, reason, id)
	return err
}

func (r *PostgresRepo) AddChunksIndexed(ctx context.Context, id string, n int) error {
	query := `UPDATE documents SET chunks_indexed = chunks_indexed + $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, n, id)
	return err
}

func (r *PostgresRepo) ResetForIngest(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = $1, pages = 0, chunk_count = 0, chunks_indexed = 0, error = NULL, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, StatusPending, id)
	return err
}
