// Package backend provides the transcription store behind the
// transcription-search and transcription-summary tools.
//
// Two implementations exist: Mock, which fabricates transcriptions from a
// seeded random source, and HTTP, which forwards to a REST service exposing
// /api/transcriptions.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a transcription does not exist.
var ErrNotFound = errors.New("transcription not found")

// Transcription is a search hit.
type Transcription struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	Tags      []string  `json:"tags"`
	Duration  int       `json:"durationSeconds"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchQuery mirrors the transcription-search tool input.
type SearchQuery struct {
	Query    string
	Tags     []string
	Page     int
	PageSize int
}

// SearchResult is one page of hits.
type SearchResult struct {
	Results  []Transcription `json:"results"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// SummaryRequest mirrors the transcription-summary tool input.
type SummaryRequest struct {
	TranscriptionID  int
	Model            string
	ExtractKeyPoints bool
	ExtractTopics    bool
}

// Summary of a single transcription. KeyPoints and Topics are only present
// when requested.
type Summary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

// Backend searches and summarizes transcriptions.
type Backend interface {
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
}
