package rag

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgStore keeps all namespaces in one pgvector-backed table.
type PgStore struct {
	db  *pgxpool.Pool
	dim int
}

// NewPgStore takes ownership of db; Close closes the pool.
func NewPgStore(db *pgxpool.Pool, dim int) *PgStore {
	return &PgStore{db: db, dim: dim}
}

// EnsureSchema creates the vector extension and the record table if needed.
func (r *PgStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS rag_record (
			namespace  TEXT        NOT NULL,
			id         TEXT        NOT NULL,
			content    TEXT        NOT NULL,
			metadata   JSONB       NOT NULL DEFAULT '{}'::jsonb,
			embedding  vector(%d)  NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, id)
		)`, r.dim),
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PgStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, rec := range records {
		if len(rec.Embedding) != r.dim {
			return fmt.Errorf("record %s: embedding size %d (expected %d)", rec.ID, len(rec.Embedding), r.dim)
		}
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		b.Queue(`
			INSERT INTO rag_record (namespace, id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (namespace, id) DO UPDATE
			SET content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = now()
		`, namespace, rec.ID, rec.Content, meta, pgvector.NewVector(rec.Embedding))
	}

	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("pg upsert %s: %w", namespace, err)
	}
	return nil
}

func (r *PgStore) Get(ctx context.Context, namespace string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, content, metadata
		FROM rag_record
		WHERE namespace = $1 AND id = ANY($2)
	`, namespace, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]Record, len(ids))
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Metadata); err != nil {
			return nil, err
		}
		found[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Search orders by cosine distance and reports 1 - distance as similarity.
func (r *PgStore) Search(ctx context.Context, namespace string, embedding []float32, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx, `
		SELECT id, content, metadata, 1 - (embedding <=> $2) AS similarity
		FROM rag_record
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, namespace, vec, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			sim float64
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Metadata, &sim); err != nil {
			return nil, err
		}
		rec.Similarity = float32(sim)
		out = append(out, rec)
	}

	return out, rows.Err()
}

func (r *PgStore) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM rag_record WHERE namespace = $1`, namespace).Scan(&n)
	return n, err
}

func (r *PgStore) Close() error {
	r.db.Close()
	return nil
}

var _ VectorStore = (*PgStore)(nil)
