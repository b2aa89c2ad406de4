// Package sink renders the engine's record stream into output formats:
// one identifier per line, JSON Lines, or CSV.
package sink

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/atlas-tools/atlas-fetch/pkg/pagination"
)

// Sink consumes records in stream order. Records handed to a sink are
// considered durably delivered; sinks must not reorder or drop them.
type Sink interface {
	// Write renders one record.
	Write(rec pagination.Record) error

	// Flush forces buffered output out. Called once after the run.
	Flush() error
}

// formatValue renders a record field for plain-text output. JSON
// numbers arrive as float64; integral values print without an exponent
// or trailing zeros.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		// Nested objects and arrays keep their JSON form.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
