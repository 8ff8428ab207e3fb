package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"libraria/internal/domain"
)

const topTagsLimit = 10

// AnalyzeDataTool aggregates the caller's library in memory. The
// grouping dimension is restricted to a fixed enumerated set so the
// model cannot probe arbitrary fields.
type AnalyzeDataTool struct {
	store  domain.LibraryStore
	logger *slog.Logger
}

// NewAnalyzeDataTool creates the analytics tool bound to store.
func NewAnalyzeDataTool(store domain.LibraryStore, logger *slog.Logger) *AnalyzeDataTool {
	return &AnalyzeDataTool{store: store, logger: logger}
}

func (t *AnalyzeDataTool) Name() string { return "analyze_data" }

func (t *AnalyzeDataTool) Description() string {
	return "Query analytics data about the media library"
}

func (t *AnalyzeDataTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"analysis_type": {"type": "string", "enum": ["distribution", "top_tags", "timeline"], "description": "Type of analysis"},
				"group_by": {"type": "string", "enum": ["type", "origin", "pub_status", "user_status"], "description": "For distribution analysis, group by this field"}
			},
			"required": ["analysis_type"]
		}`),
	}
}

type analyzeParams struct {
	AnalysisType string `json:"analysis_type"`
	GroupBy      string `json:"group_by,omitempty"`
}

type distributionBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type tagBucket struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type timelineSummary struct {
	TotalItems int `json:"total_items"`
	Completed  int `json:"completed"`
}

func (t *AnalyzeDataTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.analyze_data", t.logger, params,
		func(ctx context.Context, span trace.Span, p analyzeParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}

			if err := ValidateAll(
				RequireField("analysis_type", p.AnalysisType),
				ValidateEnum("analysis_type", p.AnalysisType, []string{"distribution", "top_tags", "timeline"}),
				ValidateEnum("group_by", p.GroupBy, domain.GroupByFields),
			); err != nil {
				return ErrResult("%v", err)
			}

			// All analyses work over the full owned row set.
			items, _, err := t.store.SearchMedia(ctx, userID, domain.MediaFilter{Limit: allRowsLimit})
			if err != nil {
				return nil, err
			}

			switch p.AnalysisType {
			case "distribution":
				return map[string]any{"data": distribution(items, p.GroupBy)}, nil
			case "top_tags":
				return map[string]any{"data": topTags(items)}, nil
			default: // timeline
				return map[string]any{"data": timeline(items)}, nil
			}
		})
}

// allRowsLimit is the facade limit used when an analysis needs every
// owned row. Personal libraries stay well under this.
const allRowsLimit = 10_000

func distribution(items []domain.MediaItem, groupBy string) []distributionBucket {
	if groupBy == "" {
		groupBy = "type"
	}

	counts := make(map[string]int)
	for _, item := range items {
		var val string
		switch groupBy {
		case "type":
			val = item.Type
		case "origin":
			val = item.Origin
		case "pub_status":
			val = item.PubStatus
		case "user_status":
			val = item.UserStatus
		}
		if val != "" {
			counts[val]++
		}
	}

	buckets := make([]distributionBucket, 0, len(counts))
	for label, count := range counts {
		buckets = append(buckets, distributionBucket{Label: label, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})
	return buckets
}

func topTags(items []domain.MediaItem) []tagBucket {
	counts := make(map[string]int)
	for _, item := range items {
		for _, tag := range item.Tags {
			counts[tag]++
		}
	}

	buckets := make([]tagBucket, 0, len(counts))
	for tag, count := range counts {
		buckets = append(buckets, tagBucket{Tag: tag, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Tag < buckets[j].Tag
	})
	if len(buckets) > topTagsLimit {
		buckets = buckets[:topTagsLimit]
	}
	return buckets
}

func timeline(items []domain.MediaItem) timelineSummary {
	summary := timelineSummary{TotalItems: len(items)}
	for _, item := range items {
		if item.CompletedAt != nil {
			summary.Completed++
		}
	}
	return summary
}
