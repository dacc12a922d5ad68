package rag

import "context"

// Namespaces the engine keeps in its VectorStore.
const (
	NamespaceChunks        = "chunks"
	NamespaceEntities      = "entities"
	NamespaceRelationships = "relationships"
)

// VectorStore persists records with their embeddings and answers nearest
// neighbour queries per namespace. Implementations must be safe for
// concurrent use.
type VectorStore interface {
	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, namespace string, records []Record) error
	// Get returns the records that exist, in the order of ids.
	Get(ctx context.Context, namespace string, ids []string) ([]Record, error)
	// Search returns up to k records ordered by descending similarity.
	Search(ctx context.Context, namespace string, embedding []float32, k int) ([]Record, error)
	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}
