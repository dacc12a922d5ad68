package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/josinaldojr/gemini-graph-rag/internal/rag"
	"google.golang.org/genai"
)

const (
	defaultChatModel      = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
	defaultEmbedDim       = 768

	// every text is embedded as a document to be retrieved later
	embeddingTaskType = "RETRIEVAL_DOCUMENT"
)

// modelsAPI is the part of genai.Models the adapters call.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type Options struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
}

type GeminiClient struct {
	models         modelsAPI
	chatModel      string
	embeddingModel string
	embedDim       int
}

func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("missing Gemini API key")
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiClient(c.Models, opts), nil
}

func newGeminiClient(models modelsAPI, opts Options) *GeminiClient {
	g := &GeminiClient{
		models:         models,
		chatModel:      opts.ChatModel,
		embeddingModel: opts.EmbeddingModel,
		embedDim:       opts.EmbeddingDim,
	}
	if g.chatModel == "" {
		g.chatModel = defaultChatModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = defaultEmbeddingModel
	}
	if g.embedDim <= 0 {
		g.embedDim = defaultEmbedDim
	}
	return g
}

// Complete sends the system instruction and the prompt to Gemini as one
// text block and returns the generated text as is. History is ignored.
func (g *GeminiClient) Complete(ctx context.Context, prompt, systemPrompt string, _ []rag.Message) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.chatModel, genai.Text(buildPrompt(prompt, systemPrompt)), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent error: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from gemini")
	}
	return resp.Text(), nil
}

// EmbedTexts embeds texts one request at a time, in order. The first failure
// aborts the batch.
func (g *GeminiClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := g.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (g *GeminiClient) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.models.EmbedContent(
		ctx,
		g.embeddingModel,
		genai.Text(text),
		&genai.EmbedContentConfig{
			TaskType:             embeddingTaskType,
			OutputDimensionality: genai.Ptr(int32(g.embedDim)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed error: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embeddings returned")
	}

	values := resp.Embeddings[0].Values
	if len(values) != g.embedDim {
		return nil, fmt.Errorf("unexpected embedding size %d (expected %d)", len(values), g.embedDim)
	}

	out := make([]float32, len(values))
	copy(out, values)
	return out, nil
}

// -------- helpers --------

func buildPrompt(prompt, systemPrompt string) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString("System: ")
		b.WriteString(systemPrompt)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(prompt)
	return b.String()
}

var (
	_ rag.CompletionFunc = (*GeminiClient)(nil).Complete
	_ rag.EmbeddingFunc  = (*GeminiClient)(nil).EmbedTexts
)
