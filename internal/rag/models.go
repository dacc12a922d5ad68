package rag

import "errors"

// QueryMode selects the retrieval strategy used by Engine.Query.
type QueryMode string

const (
	ModeLocal  QueryMode = "local"
	ModeGlobal QueryMode = "global"
	ModeHybrid QueryMode = "hybrid"
	ModeMix    QueryMode = "mix"
	ModeNaive  QueryMode = "naive"
)

// Valid reports whether the engine knows how to run m.
func (m QueryMode) Valid() bool {
	switch m {
	case ModeLocal, ModeGlobal, ModeHybrid, ModeMix, ModeNaive:
		return true
	}
	return false
}

func (m QueryMode) usesEntities() bool {
	return m == ModeLocal || m == ModeHybrid || m == ModeMix
}

func (m QueryMode) usesRelationships() bool {
	return m == ModeGlobal || m == ModeHybrid || m == ModeMix
}

func (m QueryMode) usesChunks() bool {
	return m == ModeMix || m == ModeNaive
}

type QueryParam struct {
	Mode QueryMode
	// TopK overrides the engine default when positive.
	TopK int
}

func DefaultQueryParam() QueryParam {
	return QueryParam{Mode: ModeHybrid}
}

var (
	ErrEmptyText   = errors.New("text is empty")
	ErrEmptyQuery  = errors.New("query is empty")
	ErrUnknownMode = errors.New("unknown query mode")
)

// Record is one stored item of a namespace: a chunk, an entity or a relationship.
type Record struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Embedding  []float32
	Similarity float32
}

// Entity is a node of the knowledge graph.
type Entity struct {
	Name        string
	Type        string
	Description string
	SourceIDs   []string
}

// Relationship is an undirected edge of the knowledge graph.
type Relationship struct {
	Source      string
	Target      string
	Description string
	Keywords    string
	Weight      float64
	SourceIDs   []string
}
