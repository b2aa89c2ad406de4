package sink

import (
	"encoding/json"
	"io"

	"github.com/atlas-tools/atlas-fetch/pkg/pagination"
)

// JSONLSink writes each record as one JSON object per line.
type JSONLSink struct {
	enc *json.Encoder
}

// NewJSONLSink creates a JSON Lines sink.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

// Write encodes one record. json.Encoder appends the newline.
func (s *JSONLSink) Write(rec pagination.Record) error {
	return s.enc.Encode(rec)
}

// Flush is a no-op; the encoder writes through.
func (s *JSONLSink) Flush() error {
	return nil
}
