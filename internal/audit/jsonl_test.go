package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fullexpi/ransomguard/pkg/models"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestJSONLSink_RecordAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}

	if err := sink.Record(models.Incident{ID: "1", Risk: models.RiskModified, Path: "/a"}); err != nil {
		t.Fatalf("Record 1: %v", err)
	}
	if err := sink.Record(models.Incident{ID: "2", Risk: models.RiskDeleted, Path: "/b"}); err != nil {
		t.Fatalf("Record 2: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var first models.Incident
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.ID != "1" || first.Risk != models.RiskModified {
		t.Errorf("first line = %+v", first)
	}
}

func TestJSONLSink_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	os.MkdirAll(filepath.Dir(path), 0o750)

	if _, err := NewJSONLSink(path); err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestJSONLSink_AppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	s1, _ := NewJSONLSink(path)
	s1.Record(models.Incident{ID: "1"})

	s2, _ := NewJSONLSink(path)
	s2.Record(models.Incident{ID: "2"})

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}
