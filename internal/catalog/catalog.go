// Package catalog holds the news articles served by the fetch-news tool.
//
// The catalog starts with three built-in articles. When backed by a YAML file
// it is reloaded whenever the file changes; a file that fails to parse leaves
// the previous articles in place.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultSource is attributed to articles when no source is requested.
const DefaultSource = "wp.pl"

// Article is a single news item.
type Article struct {
	Title       string    `yaml:"title" json:"title"`
	URL         string    `yaml:"url" json:"url"`
	Summary     string    `yaml:"summary" json:"summary"`
	PublishDate time.Time `yaml:"publishDate,omitempty" json:"publishDate"`
	Source      string    `yaml:"source,omitempty" json:"source"`
}

type fileFormat struct {
	Articles []Article `yaml:"articles"`
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	articles []Article
	path     string
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for reload events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// WithClock overrides the clock used to stamp articles without a publish date.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New returns a catalog holding the built-in articles.
func New(opts ...Option) *Catalog {
	c := &Catalog{log: slog.New(slog.DiscardHandler), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.articles = builtin()
	return c
}

// NewFromFile loads articles from a YAML file. Call Watch to follow changes.
func NewFromFile(path string, opts ...Option) (*Catalog, error) {
	c := New(opts...)
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog path %q: %w", path, err)
	}
	c.path = abs
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func builtin() []Article {
	return []Article{
		{Title: "Test article 1", URL: "https://example.com/1", Summary: "This is a test summary of the first article."},
		{Title: "Test article 2", URL: "https://example.com/2", Summary: "This is a test summary of the second article."},
		{Title: "Test article 3", URL: "https://example.com/3", Summary: "This is a test summary of the third article."},
	}
}

// Reload re-reads the backing file. It is a no-op for catalogs without one.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	b, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	for i, a := range f.Articles {
		if a.Title == "" || a.URL == "" {
			return fmt.Errorf("catalog article %d: title and url are required", i)
		}
	}
	c.mu.Lock()
	c.articles = f.Articles
	c.mu.Unlock()
	return nil
}

// Query selects articles for a fetch-news call.
type Query struct {
	Text     string
	Sources  []string
	Page     int
	PageSize int
}

// Page is one slice of matching articles.
type Page struct {
	Articles []Article `json:"articles"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

// Search filters by case-insensitive substring on title or summary, then
// returns the requested page. Total counts all matches. The first requested
// source, or DefaultSource, is attributed to articles without their own.
func (c *Catalog) Search(q Query) Page {
	c.mu.RLock()
	all := make([]Article, len(c.articles))
	copy(all, c.articles)
	c.mu.RUnlock()

	source := DefaultSource
	if len(q.Sources) > 0 && q.Sources[0] != "" {
		source = q.Sources[0]
	}

	needle := strings.ToLower(q.Text)
	now := c.now().UTC()
	matched := make([]Article, 0, len(all))
	for _, a := range all {
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.Title), needle) &&
			!strings.Contains(strings.ToLower(a.Summary), needle) {
			continue
		}
		if a.Source == "" || len(q.Sources) > 0 {
			a.Source = source
		}
		if a.PublishDate.IsZero() {
			a.PublishDate = now
		}
		matched = append(matched, a)
	}

	out := Page{Articles: []Article{}, Total: len(matched), Page: q.Page, PageSize: q.PageSize}
	if q.Page < 1 || q.PageSize < 1 {
		return out
	}
	start, end, ok := pageBounds(len(matched), q.Page, q.PageSize)
	if !ok {
		return out
	}
	out.Articles = matched[start:end]
	return out
}

// pageBounds returns the [start, end) window of page within n items. Page
// and size are at least 1. ok is false when the page lies past the end. The
// page index is compared before multiplying so huge values cannot overflow.
func pageBounds(n, page, size int) (start, end int, ok bool) {
	if n == 0 || page-1 > (n-1)/size {
		return 0, 0, false
	}
	start = (page - 1) * size
	return start, start + min(size, n-start), true
}

// Len returns the number of articles currently loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.articles)
}

// Watch reloads the catalog whenever its file is written or replaced. It
// blocks until ctx is done. Catalogs without a file return immediately.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify unavailable: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	// Watch the directory so editors that replace the file are still seen.
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(c.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != c.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Reload(); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				c.log.WarnContext(ctx, "catalog.reload.fail", slog.String("err", err.Error()))
				continue
			}
			c.log.InfoContext(ctx, "catalog.reload.ok", slog.Int("articles", c.Len()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.DebugContext(ctx, "catalog.watch.err", slog.String("err", err.Error()))
		}
	}
}
