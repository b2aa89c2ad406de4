package sink

import (
	"bufio"
	"io"

	"github.com/atlas-tools/atlas-fetch/pkg/pagination"
)

// IDSink writes one identifier per line. The field name matters on
// anchor-measurements, where the measurement's ID lives in the
// "measurement" field rather than the record's own "id".
type IDSink struct {
	w       *bufio.Writer
	idField string
}

// NewIDSink creates an identifier-per-line sink reading idField.
func NewIDSink(w io.Writer, idField string) *IDSink {
	return &IDSink{
		w:       bufio.NewWriter(w),
		idField: idField,
	}
}

// Write renders the record's identifier field. Records missing the
// field produce an empty line, mirroring what the registry sent.
func (s *IDSink) Write(rec pagination.Record) error {
	if _, err := s.w.WriteString(formatValue(rec[s.idField])); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// Flush writes buffered lines out.
func (s *IDSink) Flush() error {
	return s.w.Flush()
}
