package corpus

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// TextPattern matches raw documents at any depth.
	TextPattern = "**/*.txt"
	// JSONPattern matches batch files directly under a directory.
	JSONPattern = "*.json"
)

// Discover returns the slash-separated paths under root matching pattern,
// sorted. A missing root yields no paths.
func Discover(root, pattern string) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("corpus: glob %s in %s: %w", pattern, root, err)
	}
	sort.Strings(matches)
	return matches, nil
}
