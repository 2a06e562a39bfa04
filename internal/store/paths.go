package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	defaultCacheDirName = "topoml"
	defaultStoreName    = "vocabularies.db"
)

// ResolveCacheDir returns the cache directory for vocabularies and downloads.
func ResolveCacheDir(cacheDir string) (string, error) {
	if strings.TrimSpace(cacheDir) != "" {
		return ExpandUser(cacheDir)
	}
	base, err := os.UserCacheDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("failed to resolve cache dir: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, defaultCacheDirName), nil
}

// ResolvePath returns the configured store path, or the default under the cache dir.
func ResolvePath(path, cacheDir string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return ExpandUser(path)
	}
	dir, err := ResolveCacheDir(cacheDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultStoreName), nil
}

// ExpandUser replaces a leading ~ with the home directory.
func ExpandUser(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home dir: %w", err)
	}
	if trimmed == "~" {
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Join(home, trimmed[1:]), nil
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateName checks that name is usable as a vocabulary key.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid vocabulary name %q", name)
	}
	return nil
}
