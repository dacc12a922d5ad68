package rag

import "context"

// Message is one turn of a conversation history handed to a CompletionFunc.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionFunc generates text for prompt, optionally steered by a system
// prompt and prior history.
type CompletionFunc func(ctx context.Context, prompt, systemPrompt string, history []Message) (string, error)

// EmbeddingFunc returns one vector per text, in input order.
type EmbeddingFunc func(ctx context.Context, texts []string) ([][]float32, error)
