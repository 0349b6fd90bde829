package backend

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	mockTopics = []string{"product", "support", "planning", "finance", "hiring", "roadmap", "incident", "sales"}
	mockTitles = []string{"Weekly sync", "Customer call", "Design review", "Standup", "Quarterly planning", "Interview", "Postmortem", "Demo"}
	mockPoints = []string{
		"The team agreed on the next milestone.",
		"Open questions were assigned owners.",
		"A follow-up meeting was scheduled.",
		"Budget concerns were raised and noted.",
		"The customer reported a regression.",
		"Action items were reviewed.",
	}
)

// Mock fabricates a fixed set of transcriptions on construction and serves
// searches over them. Summaries are generated per call.
type Mock struct {
	mu    sync.Mutex
	rng   *rand.Rand
	items []Transcription
	delay time.Duration
}

// MockOption configures a Mock.
type MockOption func(*mockConfig)

type mockConfig struct {
	seed  uint64
	count int
	delay time.Duration
	now   time.Time
}

// WithSeed makes the generated data reproducible.
func WithSeed(seed uint64) MockOption {
	return func(c *mockConfig) { c.seed = seed }
}

// WithCount sets how many transcriptions are generated. Defaults to 42.
func WithCount(n int) MockOption {
	return func(c *mockConfig) { c.count = n }
}

// WithLatency adds a simulated delay to every call.
func WithLatency(d time.Duration) MockOption {
	return func(c *mockConfig) { c.delay = d }
}

// NewMock returns a Mock backend.
func NewMock(opts ...MockOption) *Mock {
	cfg := mockConfig{seed: uint64(time.Now().UnixNano()), count: 42, now: time.Now().UTC()}
	for _, opt := range opts {
		opt(&cfg)
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	items := make([]Transcription, cfg.count)
	for i := range items {
		id := i + 1
		title := mockTitles[rng.IntN(len(mockTitles))]
		items[i] = Transcription{
			ID:        id,
			Title:     fmt.Sprintf("%s #%d", title, id),
			Content:   fmt.Sprintf("Mock transcription %d recorded during a %s.", id, strings.ToLower(title)),
			Language:  "en",
			Tags:      pick(rng, mockTopics, 1+rng.IntN(3)),
			Duration:  60 + rng.IntN(3600),
			CreatedAt: cfg.now.Add(-time.Duration(rng.IntN(90*24)) * time.Hour).Truncate(time.Second),
		}
	}

	return &Mock{rng: rng, items: items, delay: cfg.delay}
}

func pick(rng *rand.Rand, from []string, n int) []string {
	idx := rng.Perm(len(from))[:n]
	slices.Sort(idx)
	out := make([]string, n)
	for i, j := range idx {
		out[i] = from[j]
	}
	return out
}

func (m *Mock) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Search matches the query against title and content, case-insensitively,
// and requires every requested tag.
func (m *Mock) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.Query)
	var hits []Transcription
	for _, t := range m.items {
		if needle != "" &&
			!strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Content), needle) {
			continue
		}
		if !hasAllTags(t.Tags, q.Tags) {
			continue
		}
		hits = append(hits, t)
	}

	res := &SearchResult{Results: []Transcription{}, Total: len(hits), Page: q.Page, PageSize: q.PageSize}
	if q.Page < 1 || q.PageSize < 1 {
		return res, nil
	}
	// Compare page indexes first; (Page-1)*PageSize overflows for huge input.
	if len(hits) > 0 && q.Page-1 <= (len(hits)-1)/q.PageSize {
		start := (q.Page - 1) * q.PageSize
		res.Results = hits[start : start+min(q.PageSize, len(hits)-start)]
	}
	return res, nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

// Summarize generates a summary for any positive id.
func (m *Mock) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if req.TranscriptionID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, req.TranscriptionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Summary{
		Summary: fmt.Sprintf("Summary of transcription %d generated by %s.", req.TranscriptionID, req.Model),
	}
	if req.ExtractKeyPoints {
		s.KeyPoints = pick(m.rng, mockPoints, 2+m.rng.IntN(3))
	}
	if req.ExtractTopics {
		s.Topics = pick(m.rng, mockTopics, 1+m.rng.IntN(3))
	}
	return s, nil
}

var _ Backend = (*Mock)(nil)
