package tools

import (
	"log/slog"
	"net/http"

	"github.com/ggoodman/transcripter-mcp/internal/backend"
	"github.com/ggoodman/transcripter-mcp/internal/catalog"
)

// Deps supplies the collaborators of the default tool set. Zero values fall
// back to built-in defaults.
type Deps struct {
	APIBaseURL string
	HTTPClient *http.Client
	Backend    backend.Backend
	Catalog    *catalog.Catalog
	Logger     *slog.Logger
}

// Default returns the complete tool set in its canonical order.
func Default(deps Deps) []Definition {
	b := deps.Backend
	if b == nil {
		b = backend.NewMock()
	}
	c := deps.Catalog
	if c == nil {
		c = catalog.New()
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return []Definition{
		NewTestAPI(deps.APIBaseURL, deps.HTTPClient),
		NewTranscriptionSearch(b),
		NewTranscriptionSummary(b),
		NewFetchNews(c),
		NewAnalyzeNews(),
		NewCalibrator(WithCalibratorLogger(log)),
	}
}

// NewDefaultRegistry builds a Registry over Default(deps).
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	return NewRegistry(Default(deps)...)
}
