package catalog_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/transcripter-mcp/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestSearch(t *testing.T) {
	c := catalog.New(catalog.WithClock(func() time.Time { return fixedNow }))

	t.Run("Returns all built-in articles by default", func(t *testing.T) {
		p := c.Search(catalog.Query{Page: 1, PageSize: 10})
		require.Len(t, p.Articles, 3)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, "Test article 1", p.Articles[0].Title)
		assert.Equal(t, "https://example.com/1", p.Articles[0].URL)
		assert.Equal(t, catalog.DefaultSource, p.Articles[0].Source)
		assert.Equal(t, fixedNow, p.Articles[0].PublishDate)
	})

	t.Run("Filters case-insensitively on title and summary", func(t *testing.T) {
		p := c.Search(catalog.Query{Text: "SECOND", Page: 1, PageSize: 10})
		require.Len(t, p.Articles, 1)
		assert.Equal(t, "Test article 2", p.Articles[0].Title)
		assert.Equal(t, 1, p.Total)

		p = c.Search(catalog.Query{Text: "article 3", Page: 1, PageSize: 10})
		require.Len(t, p.Articles, 1)
	})

	t.Run("Uses the first requested source", func(t *testing.T) {
		p := c.Search(catalog.Query{Sources: []string{"onet.pl", "tvn24.pl"}, Page: 1, PageSize: 10})
		for _, a := range p.Articles {
			assert.Equal(t, "onet.pl", a.Source)
		}
	})

	t.Run("Pages past the end are empty but echo paging", func(t *testing.T) {
		p := c.Search(catalog.Query{Page: 2, PageSize: 3})
		assert.Empty(t, p.Articles)
		assert.NotNil(t, p.Articles)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, 2, p.Page)
		assert.Equal(t, 3, p.PageSize)
	})

	t.Run("Slices the requested page", func(t *testing.T) {
		p := c.Search(catalog.Query{Page: 2, PageSize: 2})
		require.Len(t, p.Articles, 1)
		assert.Equal(t, "Test article 3", p.Articles[0].Title)
	})

	t.Run("Huge paging values stay in range", func(t *testing.T) {
		for _, q := range []catalog.Query{
			{Page: 1 << 62, PageSize: 4},
			{Page: 4294967297, PageSize: 4294967296},
			{Page: math.MaxInt, PageSize: math.MaxInt},
		} {
			p := c.Search(q)
			assert.Empty(t, p.Articles, "page=%d pageSize=%d", q.Page, q.PageSize)
			assert.Equal(t, q.Page, p.Page)
			assert.Equal(t, q.PageSize, p.PageSize)
		}

		p := c.Search(catalog.Query{Page: 1, PageSize: math.MaxInt})
		assert.Len(t, p.Articles, 3)
	})
}

const fixture = `articles:
  - title: Local elections
    url: https://news.example/elections
    summary: Turnout was higher than expected.
    source: pap.pl
  - title: Transit update
    url: https://news.example/transit
    summary: New tram line opens.
`

func TestFile(t *testing.T) {
	t.Run("Loads articles from YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "news.yaml")
		require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

		c, err := catalog.NewFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Len())

		p := c.Search(catalog.Query{Page: 1, PageSize: 10})
		assert.Equal(t, "pap.pl", p.Articles[0].Source)
		assert.Equal(t, catalog.DefaultSource, p.Articles[1].Source)
	})

	t.Run("Rejects malformed files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "news.yaml")
		require.NoError(t, os.WriteFile(path, []byte("articles:\n  - summary: missing title\n"), 0o644))

		_, err := catalog.NewFromFile(path)
		require.Error(t, err)
	})

	t.Run("Watch reloads on write", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "news.yaml")
		require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

		c, err := catalog.NewFromFile(path)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- c.Watch(ctx) }()

		// Give the watcher time to register before writing.
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(path, []byte("articles:\n  - title: Only one\n    url: https://news.example/one\n    summary: x\n"), 0o644))

		assert.Eventually(t, func() bool { return c.Len() == 1 }, 2*time.Second, 20*time.Millisecond)

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("Watch without a file returns immediately", func(t *testing.T) {
		require.NoError(t, catalog.New().Watch(context.Background()))
	})
}
