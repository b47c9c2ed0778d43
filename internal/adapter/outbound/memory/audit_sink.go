package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/Policy-Gate/policygate/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditSink implements audit.Sink writing JSON lines to stdout or a
// caller-supplied writer, keeping a bounded in-memory ring buffer for
// recent record queries.
type AuditSink struct {
	encoder *json.Encoder
	mu      sync.Mutex
	recent  []audit.Record
	cap     int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditSink creates an audit sink writing to stdout.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewAuditSink(capacity ...int) *AuditSink {
	return NewAuditSinkWithWriter(os.Stdout, capacity...)
}

// NewAuditSinkWithWriter creates an audit sink writing to the given writer.
func NewAuditSinkWithWriter(w io.Writer, capacity ...int) *AuditSink {
	c := resolveCapacity(capacity...)
	return &AuditSink{
		encoder: json.NewEncoder(w),
		recent:  make([]audit.Record, 0, c),
		cap:     c,
	}
}

// Append writes the record as a JSON line and keeps it in the ring buffer.
func (s *AuditSink) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(rec); err != nil {
		return err
	}
	if len(s.recent) >= s.cap {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = rec
	} else {
		s.recent = append(s.recent, rec)
	}
	return nil
}

// Recent returns up to n of the most recent records, newest last.
func (s *AuditSink) Recent(n int) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]audit.Record, n)
	copy(out, s.recent[len(s.recent)-n:])
	return out
}

// Close is a no-op for the memory sink.
func (s *AuditSink) Close() error {
	return nil
}

// Compile-time interface verification.
var _ audit.Sink = (*AuditSink)(nil)
