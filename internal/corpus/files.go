package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExt is the file extension matched by FindFiles.
const DefaultExt = ".csv"

// FindFiles returns every file directly under dir whose name starts with
// prefix and ends with ext, sorted by name.
func FindFiles(dir, prefix, ext string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if ext == "" {
		ext = DefaultExt
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
			files = append(files, filepath.Join(dir, name))
		}
	}

	sort.Strings(files)
	return files, nil
}
