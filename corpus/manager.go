package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// OrderedCorpusFile is the file name of the flattened corpus.
const OrderedCorpusFile = "ordered_corpus.json"

// Manager builds and loads the ordered passage corpus: every passage of
// every *.json batch in Dir, in file name order, trimmed, empties dropped.
// Row i of every embedding cache corresponds to passage i.
type Manager struct {
	Dir    string
	Out    string
	Logger *zap.Logger
}

// NewManager returns a Manager writing OrderedCorpusFile inside dir.
func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{Dir: dir, Out: filepath.Join(dir, OrderedCorpusFile), Logger: logger}
}

// Build flattens the batches and persists the result. Batch elements may be
// plain strings or chunk records, whose page_content is taken.
func (m *Manager) Build() ([]string, error) {
	files, err := Discover(m.Dir, JSONPattern)
	if err != nil {
		return nil, err
	}
	outName := filepath.Base(m.Out)
	var passages []string
	for _, name := range files {
		if filepath.Dir(m.Out) == filepath.Clean(m.Dir) && name == outName {
			continue
		}
		path := filepath.Join(m.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil || !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
			m.Logger.Warn("skipping corpus file", zap.String("path", path), zap.Error(err))
			continue
		}
		gjson.ParseBytes(data).ForEach(func(_, v gjson.Result) bool {
			text := v.String()
			if v.IsObject() {
				text = v.Get("page_content").String()
			}
			if t := strings.TrimSpace(text); t != "" {
				passages = append(passages, t)
			}
			return true
		})
	}
	if err := WriteJSON(m.Out, passages); err != nil {
		return nil, err
	}
	m.Logger.Info("built ordered corpus", zap.String("path", m.Out), zap.Int("passages", len(passages)))
	return passages, nil
}

// Load reads the persisted corpus.
func (m *Manager) Load() ([]string, error) {
	data, err := os.ReadFile(m.Out)
	if err != nil {
		return nil, err
	}
	var passages []string
	if err := json.Unmarshal(data, &passages); err != nil {
		return nil, fmt.Errorf("corpus: parse %s: %w", m.Out, err)
	}
	return passages, nil
}

// LoadOrBuild loads the corpus, building it first when it does not exist.
func (m *Manager) LoadOrBuild() ([]string, error) {
	passages, err := m.Load()
	if errors.Is(err, os.ErrNotExist) {
		return m.Build()
	}
	return passages, err
}
