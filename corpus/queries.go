package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// QueryFile is one query JSON file: an array of objects each carrying at
// least user_query. Records keep their raw JSON so unrelated fields survive
// rewrites.
type QueryFile struct {
	Path    string
	Stem    string
	Records []json.RawMessage
	Queries []string
}

// Task returns the task name encoded in the file stem before the first
// underscore, e.g. "QA" for "QA_floods.json".
func (q *QueryFile) Task() string {
	task, _, _ := strings.Cut(q.Stem, "_")
	return task
}

// LoadQueryFile reads a query file.
func LoadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
	}
	q := &QueryFile{
		Path:    path,
		Stem:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Records: records,
		Queries: make([]string, len(records)),
	}
	for i, rec := range records {
		q.Queries[i] = strings.TrimSpace(gjson.GetBytes(rec, "user_query").String())
	}
	return q, nil
}
