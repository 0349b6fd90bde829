package tools

import (
	"context"
	"fmt"

	"github.com/ggoodman/transcripter-mcp/internal/backend"
)

// TranscriptionSearchArgs is the input of transcription-search.
type TranscriptionSearchArgs struct {
	Query    string   `json:"query,omitempty" jsonschema:"description=Search query"`
	Tags     []string `json:"tags,omitempty" jsonschema:"description=Filter by tags"`
	Page     int      `json:"page,omitempty" jsonschema:"description=Page number,default=1,minimum=1"`
	PageSize int      `json:"pageSize,omitempty" jsonschema:"description=Items per page,default=10,minimum=1"`
}

// NewTranscriptionSearch returns the transcription-search tool backed by b.
func NewTranscriptionSearch(b backend.Backend) Definition {
	return New("transcription-search", "Search transcriptions with filtering and pagination", func(ctx context.Context, in TranscriptionSearchArgs) (*backend.SearchResult, error) {
		res, err := b.Search(ctx, backend.SearchQuery{
			Query:    in.Query,
			Tags:     in.Tags,
			Page:     in.Page,
			PageSize: in.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search transcriptions: %w", err)
		}
		return res, nil
	})
}

// SummaryOptions toggles optional summary sections.
type SummaryOptions struct {
	ExtractKeyPoints bool `json:"extractKeyPoints,omitempty" jsonschema:"description=Whether to extract key points,default=false"`
	ExtractTopics    bool `json:"extractTopics,omitempty" jsonschema:"description=Whether to extract topics,default=false"`
}

// TranscriptionSummaryArgs is the input of transcription-summary.
type TranscriptionSummaryArgs struct {
	TranscriptionID int             `json:"transcriptionId" jsonschema:"description=ID of the transcription to summarize"`
	Model           string          `json:"model,omitempty" jsonschema:"description=AI model to use for summarization,default=gpt-4"`
	Options         *SummaryOptions `json:"options,omitempty" jsonschema:"description=Additional summarization options"`
}

// NewTranscriptionSummary returns the transcription-summary tool backed by b.
func NewTranscriptionSummary(b backend.Backend) Definition {
	return New("transcription-summary", "Generate a summary of a transcription using AI", func(ctx context.Context, in TranscriptionSummaryArgs) (*backend.Summary, error) {
		req := backend.SummaryRequest{TranscriptionID: in.TranscriptionID, Model: in.Model}
		if in.Options != nil {
			req.ExtractKeyPoints = in.Options.ExtractKeyPoints
			req.ExtractTopics = in.Options.ExtractTopics
		}
		s, err := b.Summarize(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to generate summary: %w", err)
		}
		return s, nil
	})
}
