package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"libraria/internal/domain"
	"libraria/internal/infra/tracer"
)

const (
	defaultWebResults = 5
	maxWebResults     = 10
	defaultCacheTTL   = 15 * time.Minute
)

// CredentialSource resolves the caller's decrypted credential bundle.
// Bundles live only for the duration of the call and are never logged.
type CredentialSource interface {
	Credentials(ctx context.Context, userID string) (domain.CredentialBundle, error)
}

// cacheEntry holds a cached search payload with its expiration time.
type cacheEntry struct {
	payload   webSearchResult
	expiresAt time.Time
}

// WebSearchTool performs web searches via a pluggable SearchBackend
// using the caller's own API key. A missing key yields a structured
// "not configured" payload; transport failures yield an empty result
// list with an error string. Neither aborts the loop.
type WebSearchTool struct {
	backend    SearchBackend
	creds      CredentialSource
	contentCap int
	cacheTTL   time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(backend SearchBackend, creds CredentialSource, contentCap int, cacheTTL time.Duration, logger *slog.Logger) *WebSearchTool {
	if contentCap <= 0 {
		contentCap = 500
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &WebSearchTool{
		backend:    backend,
		creds:      creds,
		contentCap: contentCap,
		cacheTTL:   cacheTTL,
		logger:     logger,
		cache:      make(map[string]cacheEntry),
	}
}

func (t *WebSearchTool) Name() string { return "search_web" }

func (t *WebSearchTool) Description() string {
	return "Search the web for information"
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10, "description": "Number of results (default 5)"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type webSearchResult struct {
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_web", t.logger, params,
		func(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return webSearchResult{Results: []SearchResult{}, Error: "not authenticated"}, nil
			}

			if strings.TrimSpace(p.Query) == "" {
				return ErrResult("'query' is required")
			}
			count := clampLimit(p.MaxResults, defaultWebResults, maxWebResults)
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

			if cached, ok := t.fromCache(userID, p.Query, count); ok {
				span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
				return cached, nil
			}

			apiKey, errPayload := t.resolveKey(ctx, userID)
			if errPayload != nil {
				return *errPayload, nil
			}

			results, err := t.backend.Search(ctx, apiKey, p.Query, count)
			if err != nil {
				t.logger.Warn("web search failed", "backend", t.backend.Name(), "error", err)
				return webSearchResult{Results: []SearchResult{}, Error: "web search failed"}, nil
			}

			if len(results) > count {
				results = results[:count]
			}
			for i := range results {
				results[i].Content = truncateContent(results[i].Content, t.contentCap)
			}

			payload := webSearchResult{Results: results}
			t.toCache(userID, p.Query, count, payload)
			span.SetAttributes(tracer.IntAttr("tool.results", len(results)))
			return payload, nil
		})
}

// resolveKey fetches the caller's search API key. A missing or
// undecryptable credential comes back as a user-facing payload, not an
// error, so the model can tell the user to fix their settings.
func (t *WebSearchTool) resolveKey(ctx context.Context, userID string) (string, *webSearchResult) {
	bundle, err := t.creds.Credentials(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNoCredentials) {
			return "", &webSearchResult{
				Results: []SearchResult{},
				Error:   fmt.Sprintf("No %s API key configured. Please add it in Settings.", t.backend.Name()),
			}
		}
		return "", &webSearchResult{Results: []SearchResult{}, Error: "failed to decrypt API keys"}
	}

	key := bundle.Get(domain.CredentialTavily)
	if key == "" {
		return "", &webSearchResult{
			Results: []SearchResult{},
			Error:   fmt.Sprintf("No %s API key found. Please add it in Settings.", t.backend.Name()),
		}
	}
	return key, nil
}

// truncateContent caps s at max bytes without splitting a multi-byte
// rune, so truncated results stay valid UTF-8.
func truncateContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// cacheKey scopes entries per user. The tool instance is shared across
// all callers, and results are fetched with the caller's own key, so a
// cache hit must never cross user boundaries.
func cacheKey(userID, query string, count int) string {
	return fmt.Sprintf("%s:%d:%s", userID, count, query)
}

func (t *WebSearchTool) fromCache(userID, query string, count int) (webSearchResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.cache[cacheKey(userID, query, count)]
	if !ok || time.Now().After(entry.expiresAt) {
		return webSearchResult{}, false
	}
	return entry.payload, true
}

func (t *WebSearchTool) toCache(userID, query string, count int, payload webSearchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache[cacheKey(userID, query, count)] = cacheEntry{
		payload:   payload,
		expiresAt: time.Now().Add(t.cacheTTL),
	}
}
