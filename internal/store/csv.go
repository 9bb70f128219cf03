package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"fairlens/internal/logging"
)

// csvHeader is the image index schema. Column order is part of the contract;
// downstream joins read by position.
var csvHeader = []string{"image_file", "prompt", "category", "model", "setting"}

// CSVIndex is the append-only index of generated image files. The header is
// written exactly once, on first write to a fresh file. image_file paths are
// normalized to forward slashes and used as the idempotency key.
type CSVIndex struct {
	path       string
	flushEvery int
	logged     map[string]struct{}
	pending    [][]string
	hasHeader  bool
}

// CSVRow is one index entry.
type CSVRow struct {
	ImageFile string
	Prompt    string
	Category  string
	Model     string
	Setting   string
}

// OpenCSVIndex opens (or creates) the index at path and loads existing keys.
func OpenCSVIndex(path string, flushEvery int) (*CSVIndex, error) {
	if flushEvery <= 0 {
		flushEvery = 10
	}
	idx := &CSVIndex{
		path:       path,
		flushEvery: flushEvery,
		logged:     make(map[string]struct{}),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := idx.loadExisting(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *CSVIndex) loadExisting() error {
	f, err := os.Open(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", idx.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", idx.path, err)
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if i == 0 && row[0] == csvHeader[0] {
			idx.hasHeader = true
			continue
		}
		idx.logged[NormalizeSlash(row[0])] = struct{}{}
	}
	logging.Store("[csv] %s: loaded %d existing rows", idx.path, len(idx.logged))
	return nil
}

// Logged reports whether the image file already has an index row.
func (idx *CSVIndex) Logged(imageFile string) bool {
	_, ok := idx.logged[NormalizeSlash(imageFile)]
	return ok
}

// Len returns the number of indexed image files.
func (idx *CSVIndex) Len() int { return len(idx.logged) }

// Append buffers one row. Duplicate image files are dropped.
func (idx *CSVIndex) Append(row CSVRow) error {
	key := NormalizeSlash(row.ImageFile)
	if _, ok := idx.logged[key]; ok {
		return nil
	}
	idx.logged[key] = struct{}{}
	idx.pending = append(idx.pending, []string{key, row.Prompt, row.Category, row.Model, row.Setting})
	if len(idx.pending) >= idx.flushEvery {
		return idx.Flush()
	}
	return nil
}

// Flush writes all buffered rows, emitting the header first if needed.
func (idx *CSVIndex) Flush() error {
	if len(idx.pending) == 0 {
		return nil
	}
	f, err := os.OpenFile(idx.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", idx.path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if !idx.hasHeader {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write header to %s: %w", idx.path, err)
		}
		idx.hasHeader = true
	}
	for _, row := range idx.pending {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to append to %s: %w", idx.path, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", idx.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", idx.path, err)
	}
	idx.pending = idx.pending[:0]
	return nil
}

// ReadCSVRows returns every data row of an index file.
func ReadCSVRows(path string) ([]CSVRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var rows []CSVRow
	for i, r := range raw {
		if len(r) < 5 {
			continue
		}
		if i == 0 && r[0] == csvHeader[0] {
			continue
		}
		rows = append(rows, CSVRow{
			ImageFile: r[0], Prompt: r[1], Category: r[2], Model: r[3], Setting: r[4],
		})
	}
	return rows, nil
}
