package tool

import "context"

// SearchBackend abstracts a web search provider. The API key is passed
// per call because every caller brings their own credential.
type SearchBackend interface {
	Search(ctx context.Context, apiKey, query string, maxResults int) ([]SearchResult, error)
	// Name returns the backend identifier (e.g. "tavily").
	Name() string
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}
