package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fullexpi/ransomguard/pkg/models"
)

// JSONLSink appends one JSON object per line to a log file, fsyncing
// after every write so an incident record survives a crash that
// immediately follows it.
type JSONLSink struct {
	mu   sync.Mutex
	path string
}

// NewJSONLSink opens (creating if necessary) the log file at path for
// appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	f.Close()
	return &JSONLSink{path: path}, nil
}

func (s *JSONLSink) Record(incident models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("audit: marshaling incident: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("audit: opening %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("audit: writing incident: %w", err)
	}
	return f.Sync()
}
