// Package retrieval fetches reference passages the Keeper can ground its
// narration on: scenario module text from disk and web results from Tavily.
package retrieval

import "context"

// Passage is one retrieved snippet with its provenance.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Gateway answers free-text queries with ranked passages. Implementations
// return an empty slice (not an error) when nothing relevant exists; errors
// mean the backend itself failed.
type Gateway interface {
	Query(ctx context.Context, query string, topK int) ([]Passage, error)
}
