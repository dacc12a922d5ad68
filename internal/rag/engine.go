package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mudler/xlog"
)

const (
	defaultChunkSize = 2000
	defaultTopK      = 40
)

type Config struct {
	// WorkingDir holds the engine's private files. Created if missing.
	WorkingDir string
	Complete   CompletionFunc
	Embed      EmbeddingFunc
	// Store defaults to a ChromemStore under WorkingDir/vdb.
	Store     VectorStore
	ChunkSize int
	TopK      int
}

// Engine indexes text into a small knowledge graph (entities, relationships
// and source chunks) and answers questions over it.
type Engine struct {
	workingDir string
	complete   CompletionFunc
	embed      EmbeddingFunc
	store      VectorStore
	chunkSize  int
	topK       int

	// serializes inserts; entity and relationship merges are read-modify-write
	insertMu sync.Mutex
}

func New(cfg Config) (*Engine, error) {
	if cfg.Complete == nil || cfg.Embed == nil {
		return nil, errors.New("rag: completion and embedding functions are required")
	}
	if cfg.WorkingDir == "" {
		return nil, errors.New("rag: working directory is required")
	}
	if err := os.MkdirAll(cfg.WorkingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir %s: %w", cfg.WorkingDir, err)
	}

	store := cfg.Store
	if store == nil {
		s, err := NewChromemStore(filepath.Join(cfg.WorkingDir, "vdb"))
		if err != nil {
			return nil, err
		}
		store = s
	}

	e := &Engine{
		workingDir: cfg.WorkingDir,
		complete:   cfg.Complete,
		embed:      cfg.Embed,
		store:      store,
		chunkSize:  cfg.ChunkSize,
		topK:       cfg.TopK,
	}
	if e.chunkSize <= 0 {
		e.chunkSize = defaultChunkSize
	}
	if e.topK <= 0 {
		e.topK = defaultTopK
	}
	return e, nil
}

func (e *Engine) Close() error {
	return e.store.Close()
}

// Insert chunks text, extracts entities and relationships from every chunk
// not seen before and merges them into the graph. Re-inserting the same text
// is a no-op.
func (e *Engine) Insert(ctx context.Context, text string) error {
	text = strings.TrimSpace(strings.ToValidUTF8(text, ""))
	if text == "" {
		return ErrEmptyText
	}

	e.insertMu.Lock()
	defer e.insertMu.Unlock()

	docID := hashID("doc-", text)
	chunks, err := e.newChunks(ctx, chunkText(text, e.chunkSize))
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		xlog.Info("document already indexed", "doc", docID)
		return nil
	}

	entities := map[string]*Entity{}
	var entityOrder []string
	rels := map[string]*Relationship{}
	var relOrder []string

	addEntity := func(ent Entity) {
		id := entityID(ent.Name)
		if cur, ok := entities[id]; ok {
			mergeEntity(cur, ent)
			return
		}
		entities[id] = &ent
		entityOrder = append(entityOrder, id)
	}

	for _, c := range chunks {
		raw, err := e.complete(ctx, buildExtractionPrompt(c.Content), extractionSystemPrompt, nil)
		if err != nil {
			return fmt.Errorf("extract entities from %s: %w", c.ID, err)
		}
		ents, rs, err := parseExtraction(raw, c.ID)
		if err != nil {
			return fmt.Errorf("extract entities from %s: %w", c.ID, err)
		}
		for _, ent := range ents {
			addEntity(ent)
		}
		for _, r := range rs {
			// endpoints the model forgot to list still become nodes
			for _, name := range []string{r.Source, r.Target} {
				if _, ok := entities[entityID(name)]; !ok {
					addEntity(Entity{Name: name, Type: "UNKNOWN", Description: r.Description, SourceIDs: r.SourceIDs})
				}
			}
			id := relationshipID(r.Source, r.Target)
			if cur, ok := rels[id]; ok {
				mergeRelationship(cur, r)
				continue
			}
			rels[id] = &r
			relOrder = append(relOrder, id)
		}
	}

	if err := e.mergeStoredEntities(ctx, entityOrder, entities); err != nil {
		return err
	}
	if err := e.mergeStoredRelationships(ctx, relOrder, rels); err != nil {
		return err
	}

	entityRecords := make([]Record, 0, len(entityOrder))
	for _, id := range entityOrder {
		entityRecords = append(entityRecords, entityRecord(*entities[id]))
	}
	relRecords := make([]Record, 0, len(relOrder))
	for _, id := range relOrder {
		relRecords = append(relRecords, relationshipRecord(*rels[id]))
	}
	chunkRecords := make([]Record, 0, len(chunks))
	for _, c := range chunks {
		chunkRecords = append(chunkRecords, Record{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				"doc_id": docID,
				"order":  strconv.Itoa(c.Order),
			},
		})
	}

	// chunks go last so a failed insert is retried in full next time; merges
	// keyed on chunk IDs keep the retry from counting a chunk twice
	for _, ns := range []struct {
		name    string
		records []Record
	}{
		{NamespaceEntities, entityRecords},
		{NamespaceRelationships, relRecords},
		{NamespaceChunks, chunkRecords},
	} {
		if err := e.embedAndUpsert(ctx, ns.name, ns.records); err != nil {
			return err
		}
	}

	xlog.Info("document indexed",
		"doc", docID,
		"chunks", len(chunkRecords),
		"entities", len(entityRecords),
		"relationships", len(relRecords),
	)
	return nil
}

func (e *Engine) newChunks(ctx context.Context, chunks []chunk) ([]chunk, error) {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	existing, err := e.store.Get(ctx, NamespaceChunks, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup chunks: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.ID] = true
	}

	var out []chunk
	for _, c := range chunks {
		if seen[c.ID] {
			continue
		}
		// the same chunk may repeat inside one document
		seen[c.ID] = true
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) mergeStoredEntities(ctx context.Context, ids []string, entities map[string]*Entity) error {
	stored, err := e.store.Get(ctx, NamespaceEntities, ids)
	if err != nil {
		return fmt.Errorf("lookup entities: %w", err)
	}
	for _, r := range stored {
		merged := entityFromRecord(r)
		mergeEntity(&merged, *entities[r.ID])
		entities[r.ID] = &merged
	}
	return nil
}

func (e *Engine) mergeStoredRelationships(ctx context.Context, ids []string, rels map[string]*Relationship) error {
	stored, err := e.store.Get(ctx, NamespaceRelationships, ids)
	if err != nil {
		return fmt.Errorf("lookup relationships: %w", err)
	}
	for _, r := range stored {
		merged := relationshipFromRecord(r)
		mergeRelationship(&merged, *rels[r.ID])
		rels[r.ID] = &merged
	}
	return nil
}

func (e *Engine) embedAndUpsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	texts := make([]string, 0, len(records))
	for _, r := range records {
		texts = append(texts, r.Content)
	}
	vecs, err := e.embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", namespace, err)
	}
	if len(vecs) != len(records) {
		return fmt.Errorf("embed %s: got %d vectors for %d texts", namespace, len(vecs), len(records))
	}
	for i := range records {
		records[i].Embedding = vecs[i]
	}
	if err := e.store.Upsert(ctx, namespace, records); err != nil {
		return fmt.Errorf("store %s: %w", namespace, err)
	}
	return nil
}

// Query answers query from the indexed graph using the retrieval strategy in
// param.Mode, which must be one of the known modes. Callers wanting the
// default pass DefaultQueryParam.
func (e *Engine) Query(ctx context.Context, query string, param QueryParam) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrEmptyQuery
	}

	mode := param.Mode
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}

	topK := param.TopK
	if topK <= 0 {
		topK = e.topK
	}

	qc := newQueryContext()

	if mode.usesEntities() || mode.usesRelationships() {
		kw, err := e.extractKeywords(ctx, q)
		if err != nil {
			return "", err
		}
		if mode.usesEntities() {
			if err := e.localContext(ctx, strings.Join(kw.LowLevel, ", "), topK, qc); err != nil {
				return "", err
			}
		}
		if mode.usesRelationships() {
			if err := e.globalContext(ctx, strings.Join(kw.HighLevel, ", "), topK, qc); err != nil {
				return "", err
			}
		}
	}

	if mode.usesChunks() {
		if err := e.chunkContext(ctx, q, topK, qc); err != nil {
			return "", err
		}
	}

	if err := e.loadChunks(ctx, topK, qc); err != nil {
		return "", err
	}

	if qc.empty() {
		xlog.Debug("query found no context", "mode", string(mode))
		return failResponse, nil
	}

	systemPrompt := buildAnswerSystemPrompt(qc.render(), detectLang(q))
	answer, err := e.complete(ctx, q, systemPrompt, nil)
	if err != nil {
		return "", fmt.Errorf("answer query: %w", err)
	}
	return answer, nil
}

func (e *Engine) extractKeywords(ctx context.Context, q string) (keywords, error) {
	raw, err := e.complete(ctx, buildKeywordsPrompt(q), keywordsSystemPrompt, nil)
	if err != nil {
		return keywords{}, fmt.Errorf("extract keywords: %w", err)
	}
	kw, err := parseKeywords(raw)
	if err != nil {
		xlog.Warn("keyword extraction returned unusable output, using raw query", "error", err)
	}
	if len(kw.LowLevel) == 0 {
		kw.LowLevel = []string{q}
	}
	if len(kw.HighLevel) == 0 {
		kw.HighLevel = []string{q}
	}
	return kw, nil
}

func (e *Engine) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}

// localContext finds the entities closest to the low level keywords.
func (e *Engine) localContext(ctx context.Context, keywords string, topK int, qc *queryContext) error {
	vec, err := e.embedOne(ctx, keywords)
	if err != nil {
		return err
	}
	hits, err := e.store.Search(ctx, NamespaceEntities, vec, topK)
	if err != nil {
		return fmt.Errorf("search entities: %w", err)
	}
	for _, h := range hits {
		qc.addEntity(entityFromRecord(h))
	}
	return nil
}

// globalContext finds the relationships closest to the high level keywords
// and pulls in their endpoint entities.
func (e *Engine) globalContext(ctx context.Context, keywords string, topK int, qc *queryContext) error {
	vec, err := e.embedOne(ctx, keywords)
	if err != nil {
		return err
	}
	hits, err := e.store.Search(ctx, NamespaceRelationships, vec, topK)
	if err != nil {
		return fmt.Errorf("search relationships: %w", err)
	}

	var endpointIDs []string
	for _, h := range hits {
		rel := relationshipFromRecord(h)
		qc.addRelationship(rel)
		endpointIDs = append(endpointIDs, entityID(rel.Source), entityID(rel.Target))
	}

	ents, err := e.store.Get(ctx, NamespaceEntities, mergeUnique(nil, endpointIDs))
	if err != nil {
		return fmt.Errorf("lookup entities: %w", err)
	}
	for _, r := range ents {
		qc.addEntity(entityFromRecord(r))
	}
	return nil
}

// chunkContext runs a plain vector search over the source chunks.
func (e *Engine) chunkContext(ctx context.Context, q string, topK int, qc *queryContext) error {
	vec, err := e.embedOne(ctx, q)
	if err != nil {
		return err
	}
	hits, err := e.store.Search(ctx, NamespaceChunks, vec, topK)
	if err != nil {
		return fmt.Errorf("search chunks: %w", err)
	}
	for _, h := range hits {
		qc.addChunk(h.ID, h.Content)
	}
	return nil
}

// loadChunks fetches the source chunks referenced by the graph context.
func (e *Engine) loadChunks(ctx context.Context, topK int, qc *queryContext) error {
	ids := qc.pendingChunkIDs(topK)
	if len(ids) == 0 {
		return nil
	}
	recs, err := e.store.Get(ctx, NamespaceChunks, ids)
	if err != nil {
		return fmt.Errorf("lookup chunks: %w", err)
	}
	for _, r := range recs {
		qc.addChunk(r.ID, r.Content)
	}
	return nil
}
