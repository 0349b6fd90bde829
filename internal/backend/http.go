package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTP is a Backend that calls a REST transcription service.
type HTTP struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP returns an HTTP backend rooted at baseURL. A nil client uses
// http.DefaultClient.
func NewHTTP(baseURL string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{base: u, client: client}, nil
}

func (h *HTTP) endpoint(path string, q url.Values) string {
	u := *h.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

// Search calls GET /api/transcriptions?q=&tags=&page=&pageSize=.
func (h *HTTP) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	params := url.Values{}
	if q.Query != "" {
		params.Set("q", q.Query)
	}
	if len(q.Tags) > 0 {
		params.Set("tags", strings.Join(q.Tags, ","))
	}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))

	var res SearchResult
	if err := h.getJSON(ctx, h.endpoint("/api/transcriptions", params), &res); err != nil {
		return nil, err
	}
	if res.Results == nil {
		res.Results = []Transcription{}
	}
	return &res, nil
}

// Summarize calls GET /api/transcriptions/{id}/summary.
func (h *HTTP) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	params := url.Values{}
	params.Set("model", req.Model)
	if req.ExtractKeyPoints {
		params.Set("extractKeyPoints", "true")
	}
	if req.ExtractTopics {
		params.Set("extractTopics", "true")
	}

	var s Summary
	path := fmt.Sprintf("/api/transcriptions/%d/summary", req.TranscriptionID)
	if err := h.getJSON(ctx, h.endpoint(path, params), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (h *HTTP) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ Backend = (*HTTP)(nil)
