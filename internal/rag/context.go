package rag

import (
	"fmt"
	"strings"
)

// queryContext collects retrieved graph elements in retrieval order,
// without duplicates.
type queryContext struct {
	entities      []Entity
	relationships []Relationship
	chunks        []Record

	seenEntities map[string]bool
	seenRels     map[string]bool
	seenChunks   map[string]bool
	refChunks    []string
}

func newQueryContext() *queryContext {
	return &queryContext{
		seenEntities: map[string]bool{},
		seenRels:     map[string]bool{},
		seenChunks:   map[string]bool{},
	}
}

func (qc *queryContext) addEntity(ent Entity) {
	if ent.Name == "" || qc.seenEntities[ent.Name] {
		return
	}
	qc.seenEntities[ent.Name] = true
	qc.entities = append(qc.entities, ent)
	qc.refChunks = mergeUnique(qc.refChunks, ent.SourceIDs)
}

func (qc *queryContext) addRelationship(rel Relationship) {
	id := relationshipID(rel.Source, rel.Target)
	if rel.Source == "" || qc.seenRels[id] {
		return
	}
	qc.seenRels[id] = true
	qc.relationships = append(qc.relationships, rel)
	qc.refChunks = mergeUnique(qc.refChunks, rel.SourceIDs)
}

func (qc *queryContext) addChunk(id, content string) {
	if qc.seenChunks[id] {
		return
	}
	qc.seenChunks[id] = true
	qc.chunks = append(qc.chunks, Record{ID: id, Content: content})
}

// pendingChunkIDs returns referenced chunks not loaded yet, keeping the total
// number of chunks within limit.
func (qc *queryContext) pendingChunkIDs(limit int) []string {
	room := limit - len(qc.chunks)
	var out []string
	for _, id := range qc.refChunks {
		if room <= 0 {
			break
		}
		if qc.seenChunks[id] {
			continue
		}
		out = append(out, id)
		room--
	}
	return out
}

func (qc *queryContext) empty() bool {
	return len(qc.entities) == 0 && len(qc.relationships) == 0 && len(qc.chunks) == 0
}

func (qc *queryContext) render() string {
	var b strings.Builder

	if len(qc.entities) > 0 {
		b.WriteString("-----Entities-----\n")
		for _, e := range qc.entities {
			fmt.Fprintf(&b, "- %s (%s): %s\n", e.Name, e.Type, flatten(e.Description))
		}
		b.WriteString("\n")
	}

	if len(qc.relationships) > 0 {
		b.WriteString("-----Relationships-----\n")
		for _, r := range qc.relationships {
			fmt.Fprintf(&b, "- %s <-> %s [%s]: %s\n", r.Source, r.Target, r.Keywords, flatten(r.Description))
		}
		b.WriteString("\n")
	}

	if len(qc.chunks) > 0 {
		b.WriteString("-----Sources-----\n")
		for i, c := range qc.chunks {
			fmt.Fprintf(&b, "[%d]\n%s\n\n", i+1, c.Content)
		}
	}

	return b.String()
}

func flatten(desc string) string {
	return strings.Join(splitField(desc), "; ")
}
