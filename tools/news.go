package tools

import (
	"context"

	"github.com/ggoodman/transcripter-mcp/internal/catalog"
)

// FetchNewsArgs is the input of fetch-news.
type FetchNewsArgs struct {
	Query    string   `json:"query,omitempty" jsonschema:"description=Search query"`
	Sources  []string `json:"sources,omitempty" jsonschema:"description=News sources to include"`
	Page     int      `json:"page,omitempty" jsonschema:"description=Page number,default=1,minimum=1"`
	PageSize int      `json:"pageSize,omitempty" jsonschema:"description=Items per page,default=10,minimum=1"`
}

// NewFetchNews returns the fetch-news tool serving articles from c.
func NewFetchNews(c *catalog.Catalog) Definition {
	return New("fetch-news", "Fetch news articles from various sources", func(ctx context.Context, in FetchNewsArgs) (catalog.Page, error) {
		return c.Search(catalog.Query{
			Text:     in.Query,
			Sources:  in.Sources,
			Page:     in.Page,
			PageSize: in.PageSize,
		}), nil
	})
}

// AnalyzeNewsArgs is the input of analyze-news.
type AnalyzeNewsArgs struct {
	Content string `json:"content" jsonschema:"description=News content to analyze"`
	Model   string `json:"model,omitempty" jsonschema:"description=AI model to use for analysis,default=gpt-4"`
}

// Entity is a named entity found in analyzed content.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NewsAnalysis is the result of analyze-news.
type NewsAnalysis struct {
	Summary   string   `json:"summary"`
	Sentiment string   `json:"sentiment"`
	Topics    []string `json:"topics"`
	Entities  []Entity `json:"entities"`
}

// NewAnalyzeNews returns the analyze-news tool. Empty content yields a
// neutral empty analysis; anything else yields the canned analysis.
func NewAnalyzeNews() Definition {
	return New("analyze-news", "Analyze news content using AI", func(ctx context.Context, in AnalyzeNewsArgs) (NewsAnalysis, error) {
		if in.Content == "" {
			return NewsAnalysis{
				Summary:   "No content provided",
				Sentiment: "neutral",
				Topics:    []string{},
				Entities:  []Entity{},
			}, nil
		}
		return NewsAnalysis{
			Summary:   "This is a test summary of the analyzed content.",
			Sentiment: "positive",
			Topics:    []string{"Politics", "Sports", "Technology"},
			Entities: []Entity{
				{Name: "John Doe", Type: "PERSON"},
				{Name: "United States", Type: "LOCATION"},
				{Name: "Microsoft", Type: "ORGANIZATION"},
			},
		}, nil
	})
}
