package rag

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 32

// fakeLLM answers the engine's three kinds of prompts deterministically:
// capitalized words become entities, neighbours become relationships.
type fakeLLM struct {
	mu              sync.Mutex
	extractionCalls int
	keywordCalls    int
	answerCalls     int
	lastSystem      string
	failExtraction  error
	answer          string
}

func (f *fakeLLM) complete(_ context.Context, prompt, systemPrompt string, _ []Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch systemPrompt {
	case extractionSystemPrompt:
		f.extractionCalls++
		if f.failExtraction != nil {
			return "", f.failExtraction
		}
		return "```json\n" + fakeExtraction(strings.TrimPrefix(prompt, "Text:\n")) + "\n```", nil
	case keywordsSystemPrompt:
		f.keywordCalls++
		words := capitalized(strings.TrimPrefix(prompt, "Question:\n"))
		b, _ := json.Marshal(keywords{HighLevel: []string{"capital"}, LowLevel: words})
		return string(b), nil
	default:
		f.answerCalls++
		f.lastSystem = systemPrompt
		if f.answer != "" {
			return f.answer, nil
		}
		return "answer to: " + prompt, nil
	}
}

func fakeExtraction(text string) string {
	words := capitalized(text)
	var ex struct {
		Entities      []map[string]string `json:"entities"`
		Relationships []map[string]any    `json:"relationships"`
	}
	ex.Entities = []map[string]string{}
	ex.Relationships = []map[string]any{}
	for _, w := range words {
		ex.Entities = append(ex.Entities, map[string]string{
			"name": w, "type": "geo", "description": w + " appears in: " + text,
		})
	}
	for i := 1; i < len(words); i++ {
		ex.Relationships = append(ex.Relationships, map[string]any{
			"source": words[i-1], "target": words[i],
			"description": words[i-1] + " relates to " + words[i],
			"keywords":    "capital", "weight": 2,
		})
	}
	b, _ := json.Marshal(ex)
	return string(b)
}

func capitalized(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) })
		if f != "" && unicode.IsUpper([]rune(f)[0]) {
			out = append(out, f)
		}
	}
	return out
}

// fakeEmbed hashes lowercase words into a fixed number of buckets.
func fakeEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v := make([]float32, testDim)
		v[0] = 0.1
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[1+int(h.Sum32()%(testDim-1))]++
		}
		out = append(out, v)
	}
	return out, nil
}

func newTestEngine(t *testing.T, llm *fakeLLM) (*Engine, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	e, err := New(Config{WorkingDir: dir, Complete: llm.complete, Embed: fakeEmbed})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, dir
}

func TestNewCreatesWorkingDir(t *testing.T) {
	_, dir := newTestEngine(t, &fakeLLM{})

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRequiresAdapters(t *testing.T) {
	_, err := New(Config{WorkingDir: t.TempDir(), Embed: fakeEmbed})
	assert.Error(t, err)

	_, err = New(Config{WorkingDir: t.TempDir(), Complete: (&fakeLLM{}).complete})
	assert.Error(t, err)

	_, err = New(Config{Complete: (&fakeLLM{}).complete, Embed: fakeEmbed})
	assert.Error(t, err)
}

func TestInsertEmptyText(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLLM{})

	err := e.Insert(context.Background(), "  \n\t ")
	assert.True(t, errors.Is(err, ErrEmptyText))
}

func TestInsertBuildsGraph(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)
	ctx := context.Background()

	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))

	for ns, want := range map[string]int{
		NamespaceChunks:        1,
		NamespaceEntities:      2,
		NamespaceRelationships: 1,
	} {
		n, err := e.store.Count(ctx, ns)
		require.NoError(t, err)
		assert.Equal(t, want, n, ns)
	}

	recs, err := e.store.Get(ctx, NamespaceEntities, []string{entityID("PARIS")})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	paris := entityFromRecord(recs[0])
	assert.Equal(t, "GEO", paris.Type)
	assert.Len(t, paris.SourceIDs, 1)
}

func TestInsertSameTextTwiceIsNoop(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)
	ctx := context.Background()

	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))
	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))

	assert.Equal(t, 1, llm.extractionCalls)
	n, err := e.store.Count(ctx, NamespaceChunks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertMergesEntities(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLLM{})
	ctx := context.Background()

	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))
	require.NoError(t, e.Insert(ctx, "Paris hosts the Louvre."))

	recs, err := e.store.Get(ctx, NamespaceEntities, []string{entityID("PARIS")})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	paris := entityFromRecord(recs[0])
	assert.Len(t, paris.SourceIDs, 2)
	assert.Contains(t, paris.Description, "capital of France")
	assert.Contains(t, paris.Description, "Louvre")

	n, err := e.store.Count(ctx, NamespaceEntities)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestInsertExtractionFailureStoresNothing(t *testing.T) {
	llm := &fakeLLM{failExtraction: errors.New("quota exceeded")}
	e, _ := newTestEngine(t, llm)
	ctx := context.Background()

	err := e.Insert(ctx, "Paris is the capital of France.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	n, err := e.store.Count(ctx, NamespaceChunks)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertRetryAfterChunkFailureKeepsWeights(t *testing.T) {
	const text = "Paris is the capital of France."
	failChunks := true
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, s := range texts {
			if failChunks && s == text {
				failChunks = false
				return nil, errors.New("boom")
			}
		}
		return fakeEmbed(ctx, texts)
	}

	llm := &fakeLLM{}
	e, err := New(Config{WorkingDir: t.TempDir(), Complete: llm.complete, Embed: embed})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	err = e.Insert(ctx, text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.NoError(t, e.Insert(ctx, text))
	assert.Equal(t, 2, llm.extractionCalls)

	recs, err := e.store.Get(ctx, NamespaceRelationships, []string{relationshipID("PARIS", "FRANCE")})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rel := relationshipFromRecord(recs[0])
	assert.Equal(t, 2.0, rel.Weight)
	assert.Len(t, rel.SourceIDs, 1)

	n, err := e.store.Count(ctx, NamespaceChunks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueryModes(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)
	ctx := context.Background()
	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))

	cases := []struct {
		mode          QueryMode
		wantEntities  bool
		wantRelations bool
	}{
		{ModeLocal, true, false},
		{ModeGlobal, true, true},
		{ModeHybrid, true, true},
		{ModeMix, true, true},
		{ModeNaive, false, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			got, err := e.Query(ctx, "What is the capital of France?", QueryParam{Mode: tc.mode})
			require.NoError(t, err)
			assert.Equal(t, "answer to: What is the capital of France?", got)

			assert.Equal(t, tc.wantEntities, strings.Contains(llm.lastSystem, "-----Entities-----"))
			assert.Equal(t, tc.wantRelations, strings.Contains(llm.lastSystem, "-----Relationships-----"))
			assert.Contains(t, llm.lastSystem, "Paris is the capital of France.")
		})
	}
}

func TestQueryDefaultsToHybrid(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)
	ctx := context.Background()
	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))

	_, err := e.Query(ctx, "What is the capital of France?", DefaultQueryParam())
	require.NoError(t, err)

	assert.Equal(t, 1, llm.keywordCalls)
	assert.Contains(t, llm.lastSystem, "-----Entities-----")
	assert.Contains(t, llm.lastSystem, "-----Relationships-----")
	assert.Equal(t, ModeHybrid, DefaultQueryParam().Mode)
}

func TestQueryUnknownMode(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)

	_, err := e.Query(context.Background(), "anything", QueryParam{Mode: "semantic"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMode))
	assert.Contains(t, err.Error(), `"semantic"`)
	assert.Zero(t, llm.keywordCalls+llm.answerCalls)
}

func TestQueryEmptyModeIsRejected(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)

	_, err := e.Query(context.Background(), "anything", QueryParam{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMode))
	assert.Zero(t, llm.keywordCalls+llm.answerCalls)
}

func TestQueryEmpty(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLLM{})

	_, err := e.Query(context.Background(), " ", DefaultQueryParam())
	assert.True(t, errors.Is(err, ErrEmptyQuery))
}

func TestQueryWithoutContext(t *testing.T) {
	llm := &fakeLLM{}
	e, _ := newTestEngine(t, llm)

	got, err := e.Query(context.Background(), "What is the capital of France?", DefaultQueryParam())
	require.NoError(t, err)
	assert.Equal(t, failResponse, got)
	assert.Zero(t, llm.answerCalls)
}

func TestQueryAnswerIsReturnedVerbatim(t *testing.T) {
	llm := &fakeLLM{answer: "  Paris.\n"}
	e, _ := newTestEngine(t, llm)
	ctx := context.Background()
	require.NoError(t, e.Insert(ctx, "Paris is the capital of France."))

	got, err := e.Query(ctx, "What is the capital of France?", QueryParam{Mode: ModeLocal})
	require.NoError(t, err)
	assert.Equal(t, "  Paris.\n", got)
}

func TestEngineSurvivesRestart(t *testing.T) {
	llm := &fakeLLM{}
	dir := filepath.Join(t.TempDir(), "data")
	ctx := context.Background()

	first, err := New(Config{WorkingDir: dir, Complete: llm.complete, Embed: fakeEmbed})
	require.NoError(t, err)
	require.NoError(t, first.Insert(ctx, "Paris is the capital of France."))
	require.NoError(t, first.Close())

	second, err := New(Config{WorkingDir: dir, Complete: llm.complete, Embed: fakeEmbed})
	require.NoError(t, err)

	n, err := second.store.Count(ctx, NamespaceEntities)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, second.Insert(ctx, "Paris is the capital of France."))
	assert.Equal(t, 1, llm.extractionCalls)
}
