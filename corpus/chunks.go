package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/internal/fsutil"
)

// DefaultMaxItemsPerFile bounds records per output batch file.
const DefaultMaxItemsPerFile = 1000

// ReadChunkDir loads every *.json chunk batch in dir, in file name order.
// A file that cannot be read or parsed is logged and skipped; the number
// of skipped files is returned.
func ReadChunkDir(dir string, logger *zap.Logger) ([]ChunkRecord, int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	files, err := Discover(dir, JSONPattern)
	if err != nil {
		return nil, 0, err
	}
	var out []ChunkRecord
	skipped := 0
	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable chunk file", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}
		var batch []ChunkRecord
		if err := json.Unmarshal(data, &batch); err != nil {
			logger.Warn("skipping malformed chunk file", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}
		out = append(out, batch...)
	}
	return out, skipped, nil
}

// WriteChunkBatches writes records into dir as <prefix>_000.json,
// <prefix>_001.json, ... with at most maxPerFile records each, and returns
// the written paths. Each file is replaced atomically.
func WriteChunkBatches(dir, prefix string, records []ChunkRecord, maxPerFile int) ([]string, error) {
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxItemsPerFile
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("corpus: mkdir %s: %w", dir, err)
	}
	var paths []string
	for start, n := 0, 0; start < len(records); start, n = start+maxPerFile, n+1 {
		end := min(start+maxPerFile, len(records))
		path := filepath.Join(dir, fmt.Sprintf("%s_%03d.json", prefix, n))
		if err := WriteJSON(path, records[start:end]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteJSON atomically writes v as indented JSON without HTML escaping.
func WriteJSON(path string, v any) error {
	err := fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
	if err != nil {
		return fmt.Errorf("corpus: write %s: %w", path, err)
	}
	return nil
}
