package sink

import (
	"encoding/csv"
	"io"
	"sort"

	"github.com/atlas-tools/atlas-fetch/pkg/pagination"
)

// CSVSink writes records as CSV rows. The header comes from the first
// record's keys, sorted; later records are rendered against that same
// column set, so all records should share a shape (they do when the
// query pins a fields list).
type CSVSink struct {
	w      *csv.Writer
	fields []string
}

// NewCSVSink creates a CSV sink.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// Write renders one record, emitting the header first if needed.
func (s *CSVSink) Write(rec pagination.Record) error {
	if s.fields == nil {
		s.fields = make([]string, 0, len(rec))
		for k := range rec {
			s.fields = append(s.fields, k)
		}
		sort.Strings(s.fields)

		if err := s.w.Write(s.fields); err != nil {
			return err
		}
	}

	row := make([]string, len(s.fields))
	for i, f := range s.fields {
		row[i] = formatValue(rec[f])
	}
	return s.w.Write(row)
}

// Flush writes buffered rows out.
func (s *CSVSink) Flush() error {
	s.w.Flush()
	return s.w.Error()
}
