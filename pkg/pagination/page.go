package pagination

import (
	"encoding/json"
	"fmt"

	"github.com/atlas-tools/atlas-fetch/pkg/client"
)

// Record is one listing object in the API's native shape. The engine
// treats it as opaque except for the identifier field when the early
// stop is configured.
type Record map[string]any

// ID extracts an integer identifier from field. The second return is
// false when the field is absent or not numeric; such records never
// trigger the early stop.
func (r Record) ID(field string) (int64, bool) {
	switch v := r[field].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// Page is one API response: an ordered batch of records plus the cursor
// for the next batch. Next is empty on the last page.
type Page struct {
	Records []Record
	Next    string
}

// envelope is the registry's list response shape.
type envelope struct {
	Results []Record `json:"results"`
	Next    *string  `json:"next"`
}

// parsePage decodes a response body into a Page. A body that does not
// match the envelope is fatal: continuing requires a trustworthy cursor.
func parsePage(body []byte) (*Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", client.ErrMalformedResponse, err)
	}

	page := &Page{Records: env.Results}
	if env.Next != nil {
		page.Next = *env.Next
	}
	return page, nil
}
