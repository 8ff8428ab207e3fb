package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"libraria/internal/infra/config"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyBackend implements SearchBackend against the Tavily REST API.
type TavilyBackend struct {
	url    string
	client *resty.Client
}

// NewTavilyBackend creates a Tavily backend from search config.
func NewTavilyBackend(cfg config.SearchConfig) *TavilyBackend {
	url := cfg.BaseURL
	if url == "" {
		url = defaultTavilyURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(2 * time.Second)

	return &TavilyBackend{url: url, client: client}
}

// Name implements SearchBackend.
func (b *TavilyBackend) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements SearchBackend.
func (b *TavilyBackend) Search(ctx context.Context, apiKey, query string, maxResults int) ([]SearchResult, error) {
	var out tavilyResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(tavilyRequest{
			APIKey:      apiKey,
			Query:       query,
			MaxResults:  maxResults,
			SearchDepth: "basic",
		}).
		SetResult(&out).
		Post(b.url)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	if resp.IsError() {
		// The body may echo request details; report only the status.
		return nil, fmt.Errorf("tavily API error: %d", resp.StatusCode())
	}

	results := make([]SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

var _ SearchBackend = (*TavilyBackend)(nil)
