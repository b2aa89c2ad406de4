// Package query builds immutable request configurations for the
// measurement registry's list endpoints.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the production registry API root.
const DefaultBaseURL = "https://atlas.ripe.net/api/v2"

// Supported list endpoints.
const (
	// EndpointMeasurements is the main measurements listing.
	EndpointMeasurements = "measurements"

	// EndpointAnchorMeasurements lists the anchoring-mesh measurements.
	// It does not accept the type/af/tags filters.
	EndpointAnchorMeasurements = "anchor-measurements"
)

// Config describes one paginated listing request. It is constructed
// once per run and never mutated; resuming swaps in a captured cursor
// URL as the starting point instead of altering the config.
type Config struct {
	// BaseURL is the API root (default: DefaultBaseURL).
	BaseURL string

	// Endpoint selects the listing (EndpointMeasurements or
	// EndpointAnchorMeasurements).
	Endpoint string

	// Type filters by measurement type, e.g. "ping" or "traceroute".
	// Only sent on the measurements endpoint.
	Type string

	// AF filters by address family (4 or 6, 0 to omit).
	// Only sent on the measurements endpoint.
	AF int

	// Tags is a comma-separated tag filter.
	// Only sent on the measurements endpoint.
	Tags string

	// Sort is the API sort order, e.g. "-id" or "id".
	Sort string

	// PageSize is the number of items per page (API max is usually 500).
	PageSize int

	// Fields restricts the fields returned per record.
	Fields string

	// Extra holds arbitrary additional query parameters, e.g. status=1.
	Extra map[string]string

	// Timeout applies per HTTP call.
	Timeout time.Duration

	// PageDelay is a courtesy sleep between successfully fetched pages.
	// Not applied between retry attempts of the same page.
	PageDelay time.Duration

	// MinID stops pagination early once a record's ID falls below this
	// value. Only meaningful with Sort "-id"; zero disables the check.
	MinID int64
}

// DefaultConfig returns the configuration matching the registry's
// common anchoring-measurement query.
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		Endpoint: EndpointMeasurements,
		Type:     "ping",
		AF:       4,
		Tags:     "anchoring,probes",
		Sort:     "-id",
		PageSize: 500,
		Fields:   "id",
		Timeout:  30 * time.Second,
	}
}

// Validate checks the configuration for values the API would reject.
func (c Config) Validate() error {
	switch c.Endpoint {
	case EndpointMeasurements, EndpointAnchorMeasurements:
	default:
		return fmt.Errorf("unknown endpoint %q", c.Endpoint)
	}
	if c.AF != 0 && c.AF != 4 && c.AF != 6 {
		return fmt.Errorf("address family must be 4 or 6 (got %d)", c.AF)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive (got %d)", c.PageSize)
	}
	if c.MinID < 0 {
		return fmt.Errorf("min ID must not be negative (got %d)", c.MinID)
	}
	return nil
}

// FirstPageURL renders the URL for the first page. Filter state travels
// only on this request: every later page comes from the cursor URL the
// API returns, which embeds the full query.
func (c Config) FirstPageURL() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base + "/" + c.Endpoint + "/")
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	params := url.Values{}
	if c.Sort != "" {
		params.Set("sort", c.Sort)
	}
	params.Set("page_size", strconv.Itoa(c.PageSize))
	if c.Fields != "" {
		params.Set("fields", c.Fields)
	}

	// type/af/tags are rejected by the anchor-measurements endpoint
	if c.Endpoint == EndpointMeasurements {
		if c.Type != "" {
			params.Set("type", c.Type)
		}
		if c.AF != 0 {
			params.Set("af", strconv.Itoa(c.AF))
		}
		if c.Tags != "" {
			params.Set("tags", c.Tags)
		}
	}

	for k, v := range c.Extra {
		params.Set(k, v)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// StopOnMinID reports whether the early-stop predicate is active. The
// engine does not verify the API honored the sort order; callers
// declaring "-id" without getting it silently lose the early stop.
func (c Config) StopOnMinID() bool {
	return c.MinID > 0 && c.Sort == "-id"
}

// IDField names the record field holding the identifier the stop
// predicate reads. Listing objects carry their own ID in "id" on every
// endpoint.
func (c Config) IDField() string {
	return "id"
}

// MeasurementIDField names the field holding the ID of the measurement
// a record refers to. On anchor-measurements the record's own "id" is
// the mesh entry, and the actual measurement lives in "measurement".
func (c Config) MeasurementIDField() string {
	if c.Endpoint == EndpointAnchorMeasurements {
		return "measurement"
	}
	return "id"
}
