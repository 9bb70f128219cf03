package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fairlens/internal/logging"
)

// JSONLWriter is an append-only JSON-lines log with file-level idempotency.
// On open it reads existing rows into a key set; Append is a no-op for keys
// already logged. Rows are buffered and flushed every flushEvery appends (or
// on Flush), and the engine always flushes before advancing a checkpoint.
type JSONLWriter struct {
	path       string
	keyField   string
	flushEvery int
	logged     map[string]struct{}
	pending    [][]byte
}

// OpenJSONL opens (or creates) the log at path. keyField names the JSON field
// used for idempotency checks.
func OpenJSONL(path, keyField string, flushEvery int) (*JSONLWriter, error) {
	if flushEvery <= 0 {
		flushEvery = 10
	}
	w := &JSONLWriter{
		path:       path,
		keyField:   keyField,
		flushEvery: flushEvery,
		logged:     make(map[string]struct{}),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := w.loadExisting(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *JSONLWriter) loadExisting() error {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue // tolerate a torn trailing line from a crash
		}
		if key, ok := row[w.keyField].(string); ok && key != "" {
			w.logged[NormalizeSlash(key)] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", w.path, err)
	}
	logging.Store("[jsonl] %s: loaded %d existing keys", w.path, len(w.logged))
	return nil
}

// Path returns the log path.
func (w *JSONLWriter) Path() string { return w.path }

// Len returns the number of logged keys.
func (w *JSONLWriter) Len() int { return len(w.logged) }

// Logged reports whether key already has a row.
func (w *JSONLWriter) Logged(key string) bool {
	_, ok := w.logged[NormalizeSlash(key)]
	return ok
}

// Append buffers one row under key. Duplicate keys are dropped.
func (w *JSONLWriter) Append(key string, row []byte) error {
	norm := NormalizeSlash(key)
	if _, ok := w.logged[norm]; ok {
		return nil
	}
	w.logged[norm] = struct{}{}
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.flushEvery {
		return w.Flush()
	}
	return nil
}

// AppendRecord marshals v and appends it under key.
func (w *JSONLWriter) AppendRecord(key string, v any) error {
	row, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	return w.Append(key, row)
}

// Flush writes all buffered rows and syncs the file.
func (w *JSONLWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", w.path, err)
	}
	defer f.Close()

	for _, row := range w.pending {
		if _, err := f.Write(append(row, '\n')); err != nil {
			return fmt.Errorf("failed to append to %s: %w", w.path, err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", w.path, err)
	}
	logging.Store("[jsonl] %s: flushed %d rows", w.path, len(w.pending))
	w.pending = w.pending[:0]
	return nil
}

// ReadJSONL decodes every row of a JSONL file into out, one element per line.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row T
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("invalid row in %s: %w", path, err)
		}
		out = append(out, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return out, nil
}
