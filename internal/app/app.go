// Package app builds the process-wide RAG engine from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/josinaldojr/gemini-graph-rag/internal/config"
	"github.com/josinaldojr/gemini-graph-rag/internal/db"
	"github.com/josinaldojr/gemini-graph-rag/internal/llm"
	"github.com/josinaldojr/gemini-graph-rag/internal/rag"
	"github.com/mudler/xlog"
)

// NewEngine wires the Gemini adapters and the configured vector store into a
// single engine. The caller owns the engine and must Close it.
func NewEngine(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
	gemini, err := llm.NewGeminiClient(ctx, llm.Options{
		APIKey:         cfg.GeminiAPIKey,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		EmbeddingDim:   cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine, err := rag.New(rag.Config{
		WorkingDir: cfg.WorkingDir,
		Complete:   gemini.Complete,
		Embed:      gemini.EmbedTexts,
		Store:      store,
		ChunkSize:  cfg.ChunkSize,
		TopK:       cfg.TopK,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("init rag engine: %w", err)
	}
	return engine, nil
}

// newStore returns nil when no database is configured; the engine then keeps
// its vectors in the working directory.
func newStore(ctx context.Context, cfg *config.Config) (rag.VectorStore, error) {
	if cfg.DatabaseURL == "" {
		xlog.Info("using working directory vector store", "dir", cfg.WorkingDir)
		return nil, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := rag.NewPgStore(pool, cfg.EmbeddingDim)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	xlog.Info("using postgres vector store")
	return store, nil
}
