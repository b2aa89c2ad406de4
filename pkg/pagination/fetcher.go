package pagination

import (
	"context"

	"github.com/atlas-tools/atlas-fetch/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport issues one GET and absorbs retryable failures internally.
// *client.Client satisfies this; tests substitute stubs.
type Transport interface {
	Get(ctx context.Context, url string) (*client.Response, error)
}

// Fetcher turns transport responses into parsed pages. Its errors are
// always fatal: everything retryable has already been handled below it.
type Fetcher struct {
	transport Transport
	logger    zerolog.Logger
}

// NewFetcher creates a page fetcher on top of a transport.
func NewFetcher(transport Transport) *Fetcher {
	return &Fetcher{
		transport: transport,
		logger:    log.With().Str("component", "page-fetcher").Logger(),
	}
}

// FetchPage fetches and parses one page. The url is either the
// config-derived first-page URL or a cursor URL from a previous page.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (*Page, error) {
	resp, err := f.transport.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	page, err := parsePage(resp.Body)
	if err != nil {
		f.logger.Error().
			Err(err).
			Str("cursor", url).
			Msg("Response body did not match the list envelope")
		return nil, err
	}

	return page, nil
}
