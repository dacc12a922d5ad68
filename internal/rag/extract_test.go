package rag

import (
	"strings"
	"testing"

	wl "github.com/abadojack/whatlanggo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunks(t *testing.T) {
	assert.Nil(t, splitIntoChunks("   ", 10))
	assert.Equal(t, []string{"short"}, splitIntoChunks("  short  ", 10))

	got := splitIntoChunks("aaaa\nbbbb\n\ncccc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, got)

	long := strings.Repeat("x", 25)
	got = splitIntoChunks(long, 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, got)
}

func TestSplitIntoChunksKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 12) // 24 bytes
	for _, c := range splitIntoChunks(text, 5) {
		assert.True(t, len(c) <= 5)
		assert.Equal(t, c, strings.ToValidUTF8(c, ""))
	}
	assert.Equal(t, text, strings.Join(splitIntoChunks(text, 5), ""))
}

func TestChunkTextIDsAreStable(t *testing.T) {
	a := chunkText("Paris is the capital of France.", 100)
	b := chunkText("Paris is the capital of France.", 100)
	require.Len(t, a, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.True(t, strings.HasPrefix(a[0].ID, "chunk-"))
}

func TestParseExtraction(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{
		"entities": [
			{"name": " paris ", "type": "geo", "description": "Capital city."},
			{"name": "", "type": "geo", "description": "dropped"}
		],
		"relationships": [
			{"source": "Paris", "target": "France", "description": "capital of", "keywords": "capital, city", "weight": 9},
			{"source": "Paris", "target": "paris", "description": "self loop"},
			{"source": "Zurich", "target": "Alps", "description": "near", "weight": "oops"}
		]
	}` + "\n```"

	ents, rels, err := parseExtraction(raw, "chunk-1")
	require.NoError(t, err)

	require.Len(t, ents, 1)
	assert.Equal(t, "PARIS", ents[0].Name)
	assert.Equal(t, "GEO", ents[0].Type)
	assert.Equal(t, []string{"chunk-1"}, ents[0].SourceIDs)

	require.Len(t, rels, 2)
	assert.Equal(t, "FRANCE", rels[0].Source)
	assert.Equal(t, "PARIS", rels[0].Target)
	assert.Equal(t, 9.0, rels[0].Weight)
	assert.Equal(t, "ALPS", rels[1].Source)
	assert.Equal(t, 1.0, rels[1].Weight)
}

func TestParseExtractionRejectsGarbage(t *testing.T) {
	_, _, err := parseExtraction("I cannot help with that.", "chunk-1")
	assert.Error(t, err)
}

func TestParseKeywords(t *testing.T) {
	kw, err := parseKeywords(`{"high_level_keywords":["geography", " "],"low_level_keywords":["France"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"geography"}, kw.HighLevel)
	assert.Equal(t, []string{"France"}, kw.LowLevel)
}

func TestMergeRelationship(t *testing.T) {
	dst := Relationship{Source: "A", Target: "B", Description: "one", Keywords: "x, y", Weight: 1, SourceIDs: []string{"c1"}}
	mergeRelationship(&dst, Relationship{Description: "two", Keywords: "y, z", Weight: 2, SourceIDs: []string{"c1", "c2"}})

	assert.Equal(t, "one"+graphFieldSep+"two", dst.Description)
	assert.Equal(t, "x, y, z", dst.Keywords)
	assert.Equal(t, 3.0, dst.Weight)
	assert.Equal(t, []string{"c1", "c2"}, dst.SourceIDs)
}

func TestMergeRelationshipKnownChunkKeepsWeight(t *testing.T) {
	dst := Relationship{Source: "A", Target: "B", Description: "one", Weight: 2, SourceIDs: []string{"c1"}}
	mergeRelationship(&dst, Relationship{Description: "one", Weight: 2, SourceIDs: []string{"c1"}})

	assert.Equal(t, 2.0, dst.Weight)
	assert.Equal(t, []string{"c1"}, dst.SourceIDs)
}

func TestRecordRoundTrip(t *testing.T) {
	ent := Entity{Name: "PARIS", Type: "GEO", Description: "a" + graphFieldSep + "b", SourceIDs: []string{"c1", "c2"}}
	assert.Equal(t, ent, entityFromRecord(entityRecord(ent)))

	rel := Relationship{Source: "FRANCE", Target: "PARIS", Description: "capital", Keywords: "capital", Weight: 2.5, SourceIDs: []string{"c1"}}
	assert.Equal(t, rel, relationshipFromRecord(relationshipRecord(rel)))
	assert.Equal(t, relationshipID("PARIS", "FRANCE"), relationshipID("FRANCE", "PARIS"))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Portuguese", languageName(wl.Por))
	assert.Equal(t, "Vietnamese", languageName(wl.Vie))
	assert.Equal(t, defaultAnswerLanguage, languageName(wl.Zul))
}
