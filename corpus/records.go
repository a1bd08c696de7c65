package corpus

import (
	"os"
	"path/filepath"
	"strings"
)

// TextRecord is one raw document. SourceID is its path relative to the
// discovery root, with forward slashes.
type TextRecord struct {
	Content    string
	SourceID   string
	OriginPath string
}

// ChunkRecord is one chunk as produced by the chunker.
type ChunkRecord struct {
	PageContent  string `json:"page_content"`
	SpecificType string `json:"specific_type"`
	GeneralType  string `json:"general_type"`
	Source       string `json:"source"`
	ID           int64  `json:"id"`
}

// ReadTextRecord loads the document at root/rel.
func ReadTextRecord(root, rel string) (TextRecord, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	data, err := os.ReadFile(path)
	if err != nil {
		return TextRecord{}, err
	}
	return TextRecord{Content: string(data), SourceID: filepath.ToSlash(rel), OriginPath: path}, nil
}

// ParseFolder splits a chunk folder name of the form
// "<specific>_HT_<general>[_txt]" into its specific and general types.
// Names without the marker are all specific.
func ParseFolder(name string) (specific, general string) {
	sp, gp, ok := strings.Cut(name, "_HT_")
	if !ok {
		return name, ""
	}
	return sp, strings.TrimSuffix(gp, "_txt")
}
