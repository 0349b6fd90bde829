package resources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const jsonMIMEType = "application/json"

// Transcription is the record served for transcription://{id}.
type Transcription struct {
	ID           int            `json:"id"`
	AudioFileID  int            `json:"audioFileId"`
	Content      string         `json:"content"`
	Language     string         `json:"language"`
	QualityScore int            `json:"qualityScore,omitempty"`
	CreatedAt    string         `json:"createdAt"`
	UpdatedAt    string         `json:"updatedAt"`
	Metadata     map[string]any `json:"metadata"`
	Tags         []string       `json:"tags"`
}

// Analysis is the record served for analysis://{id}.
type Analysis struct {
	ID              int            `json:"id"`
	TranscriptionID int            `json:"transcriptionId"`
	Content         string         `json:"content"`
	Model           string         `json:"model"`
	Summary         string         `json:"summary,omitempty"`
	KeyPoints       []string       `json:"keyPoints,omitempty"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
	Metadata        map[string]any `json:"metadata"`
}

// Option configures the built-in providers.
type Option func(*idProvider)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *idProvider) { p.now = now }
}

// idProvider serves URIs of the exact form scheme://<decimal id>.
type idProvider struct {
	scheme      string
	description string
	pattern     *regexp.Regexp
	now         func() time.Time
	build       func(id int, ts string) any
}

func newIDProvider(scheme, description string, build func(id int, ts string) any, opts ...Option) *idProvider {
	p := &idProvider{
		scheme:      scheme,
		description: description,
		pattern:     regexp.MustCompile(`^` + regexp.QuoteMeta(scheme) + `://(\d+)$`),
		now:         time.Now,
		build:       build,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *idProvider) Scheme() string      { return p.scheme }
func (p *idProvider) Template() string    { return p.scheme + "://{id}" }
func (p *idProvider) Description() string { return p.description }
func (p *idProvider) MIMEType() string    { return jsonMIMEType }

func (p *idProvider) Resolve(ctx context.Context, uri string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := p.pattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, nil
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		// Out of range ids cannot exist.
		return nil, nil
	}
	return p.build(id, p.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")), nil
}

// NewTranscriptionProvider serves mock transcriptions.
func NewTranscriptionProvider(opts ...Option) Provider {
	return newIDProvider("transcription", "Transcription of an audio file", func(id int, ts string) any {
		return &Transcription{
			ID:           id,
			AudioFileID:  100 + id,
			Content:      fmt.Sprintf("This is a mock transcription content for ID %d. In a real implementation, this would be fetched from the database.", id),
			Language:     "en",
			QualityScore: 85,
			CreatedAt:    ts,
			UpdatedAt:    ts,
			Metadata:     map[string]any{"source": "mock", "engine": "demo"},
			Tags:         []string{"demo", "mock", "transcription"},
		}
	}, opts...)
}

// NewAnalysisProvider serves mock analyses.
func NewAnalysisProvider(opts ...Option) Provider {
	return newIDProvider("analysis", "AI analysis of a transcription", func(id int, ts string) any {
		return &Analysis{
			ID:              id,
			TranscriptionID: 200 + id,
			Content:         fmt.Sprintf("This is a mock analysis content for ID %d. In a real implementation, this would be fetched from the database.", id),
			Model:           "gpt-4",
			Summary:         "A brief summary of the transcription content.",
			KeyPoints: []string{
				"First important point from the analysis",
				"Second important point from the analysis",
				"Third important point from the analysis",
			},
			CreatedAt: ts,
			UpdatedAt: ts,
			Metadata:  map[string]any{"source": "mock", "engine": "demo"},
		}
	}, opts...)
}

// Default returns the complete provider set.
func Default(opts ...Option) []Provider {
	return []Provider{
		NewTranscriptionProvider(opts...),
		NewAnalysisProvider(opts...),
	}
}

// NewDefaultRegistry builds a Registry over Default(opts...).
func NewDefaultRegistry(opts ...Option) (*Registry, error) {
	return NewRegistry(Default(opts...)...)
}
