package telemetry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/itohio/furball/pkg/report"
)

// File appends every published payload to a local log file, one line per
// flush: "<RFC3339 time> <topic> <payload>".
type File struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// OpenFile opens (or creates) the log file for appending.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open distance log: %w", err)
	}
	return &File{f: f, now: time.Now}, nil
}

// Publish appends one line.
func (s *File) Publish(topic string, payload []byte) error {
	if len(payload) > report.MaxPayload {
		return fmt.Errorf("file: payload of %d bytes exceeds %d", len(payload), report.MaxPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return os.ErrClosed
	}
	if _, err := fmt.Fprintf(s.f, "%s %s %s\n", s.now().UTC().Format(time.RFC3339), topic, payload); err != nil {
		return fmt.Errorf("failed to write distance log: %w", err)
	}
	return nil
}

// Close closes the log file.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
