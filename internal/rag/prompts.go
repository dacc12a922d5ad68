package rag

import (
	"fmt"
	"strings"
)

// failResponse is returned when retrieval finds nothing to ground an answer on.
const failResponse = "Sorry, I'm not able to provide an answer to that question.[no-context]"

const extractionSystemPrompt = `You are a knowledge graph builder. Identify the entities in the text and the relationships between them.
Entity types: organization, person, geo, event, category, concept, technology, product.
Reply with a single JSON object and nothing else, using this shape:
{"entities":[{"name":"...","type":"...","description":"..."}],
 "relationships":[{"source":"...","target":"...","description":"...","keywords":"...","weight":1.0}]}
Rules:
- name entities exactly as they appear in the text, capitalized;
- every relationship source and target must also appear in entities;
- keywords are a few comma separated high level words summarizing the relationship;
- weight is a number between 1 and 10 expressing the strength of the relationship.`

const keywordsSystemPrompt = `You extract search keywords from a user question for a retrieval system.
Reply with a single JSON object and nothing else:
{"high_level_keywords":["..."],"low_level_keywords":["..."]}
high_level_keywords are broad concepts or themes; low_level_keywords are specific entities, names and details.`

func buildExtractionPrompt(text string) string {
	return "Text:\n" + text
}

func buildKeywordsPrompt(query string) string {
	return "Question:\n" + query
}

func buildAnswerSystemPrompt(contextData, language string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions about the knowledge base below.\n")
	b.WriteString("Answer ONLY from the provided data. If the answer is not in the data, say you do not know. ")
	b.WriteString("Do not make anything up.\n")
	fmt.Fprintf(&b, "Write the answer in %s, formatted as markdown.\n\n", language)
	b.WriteString("---Data---\n")
	b.WriteString(contextData)
	return b.String()
}
