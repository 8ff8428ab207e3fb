package tool

import (
	"strings"
	"testing"
	"time"

	"libraria/internal/domain"
)

func seedAnalytics(lib *fakeLibrary) {
	now := time.Now()
	lib.add("alice", domain.MediaItem{Title: "A", Type: "movie", Tags: []string{"sci-fi", "classic"}})
	lib.add("alice", domain.MediaItem{Title: "B", Type: "movie", Tags: []string{"sci-fi"}, CompletedAt: &now})
	lib.add("alice", domain.MediaItem{Title: "C", Type: "book", Tags: []string{"fantasy"}})
	lib.add("bob", domain.MediaItem{Title: "D", Type: "game"})
}

func TestAnalyzeDistribution(t *testing.T) {
	lib := newFakeLibrary()
	seedAnalytics(lib)

	tl := NewAnalyzeDataTool(lib, testLogger())

	var result struct {
		Data []distributionBucket `json:"data"`
	}
	run(t, userCtx("alice"), tl, `{"analysis_type":"distribution"}`, &result)

	if len(result.Data) != 2 {
		t.Fatalf("buckets = %+v, want movie and book only", result.Data)
	}
	if result.Data[0].Label != "movie" || result.Data[0].Count != 2 {
		t.Errorf("top bucket = %+v, want movie:2", result.Data[0])
	}
}

func TestAnalyzeTopTags(t *testing.T) {
	lib := newFakeLibrary()
	seedAnalytics(lib)

	tl := NewAnalyzeDataTool(lib, testLogger())

	var result struct {
		Data []tagBucket `json:"data"`
	}
	run(t, userCtx("alice"), tl, `{"analysis_type":"top_tags"}`, &result)

	if len(result.Data) != 3 {
		t.Fatalf("tags = %+v", result.Data)
	}
	if result.Data[0].Tag != "sci-fi" || result.Data[0].Count != 2 {
		t.Errorf("top tag = %+v, want sci-fi:2", result.Data[0])
	}
}

func TestAnalyzeTimeline(t *testing.T) {
	lib := newFakeLibrary()
	seedAnalytics(lib)

	tl := NewAnalyzeDataTool(lib, testLogger())

	var result struct {
		Data timelineSummary `json:"data"`
	}
	run(t, userCtx("alice"), tl, `{"analysis_type":"timeline"}`, &result)

	if result.Data.TotalItems != 3 || result.Data.Completed != 1 {
		t.Errorf("summary = %+v, want 3 total / 1 completed", result.Data)
	}
}

func TestAnalyzeRejectsUnknownDimension(t *testing.T) {
	tl := NewAnalyzeDataTool(newFakeLibrary(), testLogger())

	res := run(t, userCtx("alice"), tl, `{"analysis_type":"distribution","group_by":"user_id"}`, nil)
	if !res.IsError || !strings.Contains(res.Content, "invalid group_by") {
		t.Errorf("result = %+v, want group_by rejection", res)
	}
}
