package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// ChunkRepository is the pgvector-backed vector index. Rows are only ever
// appended.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

// Append inserts entry and fills in its ID and CreatedAt.
func (r *ChunkRepository) Append(ctx context.Context, entry *domain.IndexEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO document_chunks
			(document_id, chunk_index, content, content_hash, embedding, file_type, file_name, object_key, owner_id, created_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		entry.DocumentID,
		entry.ChunkIndex,
		entry.Content,
		entry.ContentHash,
		pgvector.NewVector(entry.Embedding),
		string(entry.Source.FileType),
		nullableString(entry.Source.FileName),
		nullableString(entry.Source.ObjectKey),
		nullableString(entry.Source.OwnerID),
		createdAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_chunks WHERE content_hash = $1)`,
		hash,
	).Scan(&exists)
	return exists, err
}

// Search returns up to limit chunks ordered by cosine distance to embedding,
// ties broken by insertion order. Score is cosine similarity.
func (r *ChunkRepository) Search(ctx context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		return []domain.RetrievedChunk{}, nil
	}

	vec := pgvector.NewVector(embedding)
	query := `
		SELECT id, document_id, chunk_index, content, file_type, file_name, object_key, owner_id,
		       1 - (embedding <=> $1) AS score
		FROM document_chunks`
	args := []any{vec}

	if filter.OwnerID != "" {
		query += " WHERE owner_id = $2"
		args = append(args, filter.OwnerID)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1, id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RetrievedChunk, 0, limit)
	for rows.Next() {
		var (
			c                            domain.RetrievedChunk
			fileType                     string
			fileName, objectKey, ownerID *string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &fileType, &fileName, &objectKey, &ownerID, &c.Score); err != nil {
			return nil, err
		}
		c.Source = domain.SourceMetadata{
			FileType:  domain.FileType(fileType),
			FileName:  derefString(fileName),
			ObjectKey: derefString(objectKey),
			OwnerID:   derefString(ownerID),
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&n)
	return n, err
}

// ListByDocument returns a document's chunks in chunk order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.IndexEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, file_type, file_name, object_key, owner_id, created_at
		 FROM document_chunks
		 WHERE document_id = $1
		 ORDER BY chunk_index, id`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.IndexEntry
	for rows.Next() {
		var (
			e                            domain.IndexEntry
			fileType                     string
			fileName, objectKey, ownerID *string
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.ChunkIndex, &e.Content, &e.ContentHash, &fileType, &fileName, &objectKey, &ownerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Source = domain.SourceMetadata{
			FileType:  domain.FileType(fileType),
			FileName:  derefString(fileName),
			ObjectKey: derefString(objectKey),
			OwnerID:   derefString(ownerID),
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
