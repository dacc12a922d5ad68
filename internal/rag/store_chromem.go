package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

var errEmbeddingRequired = errors.New("chromem store: records must carry an embedding")

// ChromemStore keeps every namespace as a chromem collection persisted under
// a single directory.
type ChromemStore struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

func NewChromemStore(path string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("open chromem db at %s: %w", path, err)
	}
	return &ChromemStore{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *ChromemStore) collection(namespace string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[namespace]; ok {
		return c, nil
	}

	// Embeddings always come from the engine; chromem must never compute one.
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errEmbeddingRequired
	}
	c, err := s.db.GetOrCreateCollection(namespace, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", namespace, err)
	}
	s.collections[namespace] = c
	return c, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	c, err := s.collection(namespace)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %s: %w", r.ID, errEmbeddingRequired)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
			Content:   r.Content,
		})
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem upsert %s: %w", namespace, err)
	}
	return nil
}

func (s *ChromemStore) Get(ctx context.Context, namespace string, ids []string) ([]Record, error) {
	c, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		// GetByID ignores ctx
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := c.GetByID(ctx, id)
		if isChromemNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("chromem get %s/%s: %w", namespace, id, err)
		}
		out = append(out, Record{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		})
	}
	return out, nil
}

// chromem has no sentinel for a missing ID, only a formatted error.
func isChromemNotFound(err error) bool {
	return err != nil && strings.HasSuffix(err.Error(), "not found")
}

func (s *ChromemStore) Search(ctx context.Context, namespace string, embedding []float32, k int) ([]Record, error) {
	c, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	n := c.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	res, err := c.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem search %s: %w", namespace, err)
	}

	out := make([]Record, 0, len(res))
	for _, r := range res {
		out = append(out, Record{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func (s *ChromemStore) Count(_ context.Context, namespace string) (int, error) {
	c, err := s.collection(namespace)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Close is a no-op: chromem writes every document to disk as it is added.
func (s *ChromemStore) Close() error {
	return nil
}

var _ VectorStore = (*ChromemStore)(nil)
