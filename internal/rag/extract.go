package rag

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type extraction struct {
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"entities"`
	Relationships []struct {
		Source      string `json:"source"`
		Target      string `json:"target"`
		Description string `json:"description"`
		Keywords    string `json:"keywords"`
		Weight      any    `json:"weight"`
	} `json:"relationships"`
}

type keywords struct {
	HighLevel []string `json:"high_level_keywords"`
	LowLevel  []string `json:"low_level_keywords"`
}

// decodeModelJSON tolerates markdown fences and chatter around the object.
func decodeModelJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// parseExtraction turns model output into normalized entities and
// relationships attributed to chunkID.
func parseExtraction(raw, chunkID string) ([]Entity, []Relationship, error) {
	var ex extraction
	if err := decodeModelJSON(raw, &ex); err != nil {
		return nil, nil, err
	}

	var entities []Entity
	for _, e := range ex.Entities {
		name := normalizeName(e.Name)
		if name == "" {
			continue
		}
		entities = append(entities, Entity{
			Name:        name,
			Type:        strings.ToUpper(strings.TrimSpace(e.Type)),
			Description: strings.TrimSpace(e.Description),
			SourceIDs:   []string{chunkID},
		})
	}

	var rels []Relationship
	for _, r := range ex.Relationships {
		src, tgt := normalizeName(r.Source), normalizeName(r.Target)
		if src == "" || tgt == "" || src == tgt {
			continue
		}
		if tgt < src {
			src, tgt = tgt, src
		}
		rels = append(rels, Relationship{
			Source:      src,
			Target:      tgt,
			Description: strings.TrimSpace(r.Description),
			Keywords:    strings.TrimSpace(r.Keywords),
			Weight:      weightOf(r.Weight),
			SourceIDs:   []string{chunkID},
		})
	}

	return entities, rels, nil
}

// weightOf accepts numbers or numeric strings; anything else weighs 1.
func weightOf(v any) float64 {
	var w float64
	switch t := v.(type) {
	case float64:
		w = t
	case string:
		w, _ = strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	if w <= 0 {
		return 1
	}
	return w
}

func parseKeywords(raw string) (keywords, error) {
	var kw keywords
	if err := decodeModelJSON(raw, &kw); err != nil {
		return keywords{}, err
	}
	kw.HighLevel = compact(kw.HighLevel)
	kw.LowLevel = compact(kw.LowLevel)
	return kw, nil
}

func normalizeName(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// graphFieldSep separates merged values inside a single metadata field.
const graphFieldSep = "<SEP>"

func splitField(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, graphFieldSep)
}

func joinField(parts []string) string {
	return strings.Join(parts, graphFieldSep)
}

// mergeUnique appends the values of b missing from a, keeping order.
func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func entityID(name string) string {
	return hashID("ent-", name)
}

func relationshipID(src, tgt string) string {
	pair := []string{src, tgt}
	sort.Strings(pair)
	return hashID("rel-", pair[0]+"\x00"+pair[1])
}

func mergeEntity(dst *Entity, src Entity) {
	if dst.Type == "" || dst.Type == "UNKNOWN" {
		dst.Type = src.Type
	}
	dst.Description = joinField(mergeUnique(splitField(dst.Description), splitField(src.Description)))
	dst.SourceIDs = mergeUnique(dst.SourceIDs, src.SourceIDs)
}

func mergeRelationship(dst *Relationship, src Relationship) {
	dst.Description = joinField(mergeUnique(splitField(dst.Description), splitField(src.Description)))
	dst.Keywords = strings.Join(mergeUnique(splitKeywords(dst.Keywords), splitKeywords(src.Keywords)), ", ")
	// a chunk counts once, so re-extracting a stored chunk leaves the weight alone
	if hasNewSource(dst.SourceIDs, src.SourceIDs) {
		dst.Weight += src.Weight
	}
	dst.SourceIDs = mergeUnique(dst.SourceIDs, src.SourceIDs)
}

func hasNewSource(have, add []string) bool {
	known := make(map[string]bool, len(have))
	for _, id := range have {
		known[id] = true
	}
	for _, id := range add {
		if !known[id] {
			return true
		}
	}
	return false
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func entityRecord(e Entity) Record {
	return Record{
		ID:      entityID(e.Name),
		Content: e.Name + "\n" + strings.ReplaceAll(e.Description, graphFieldSep, "\n"),
		Metadata: map[string]string{
			"name":        e.Name,
			"type":        e.Type,
			"description": e.Description,
			"source_ids":  joinField(e.SourceIDs),
		},
	}
}

func entityFromRecord(r Record) Entity {
	return Entity{
		Name:        r.Metadata["name"],
		Type:        r.Metadata["type"],
		Description: r.Metadata["description"],
		SourceIDs:   splitField(r.Metadata["source_ids"]),
	}
}

func relationshipRecord(rel Relationship) Record {
	return Record{
		ID: relationshipID(rel.Source, rel.Target),
		Content: rel.Keywords + "\n" + rel.Source + "\n" + rel.Target + "\n" +
			strings.ReplaceAll(rel.Description, graphFieldSep, "\n"),
		Metadata: map[string]string{
			"source":      rel.Source,
			"target":      rel.Target,
			"description": rel.Description,
			"keywords":    rel.Keywords,
			"weight":      strconv.FormatFloat(rel.Weight, 'f', -1, 64),
			"source_ids":  joinField(rel.SourceIDs),
		},
	}
}

func relationshipFromRecord(r Record) Relationship {
	w, err := strconv.ParseFloat(r.Metadata["weight"], 64)
	if err != nil {
		w = 1
	}
	return Relationship{
		Source:      r.Metadata["source"],
		Target:      r.Metadata["target"],
		Description: r.Metadata["description"],
		Keywords:    r.Metadata["keywords"],
		Weight:      w,
		SourceIDs:   splitField(r.Metadata["source_ids"]),
	}
}
