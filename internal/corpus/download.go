package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MaxDownloadBytes caps the size of a downloaded corpus.
const MaxDownloadBytes int64 = 2 << 30

// Download fetches rawURL into dir and returns the local path. When
// expectedSHA is set an existing matching file is reused and a download
// with a different checksum is rejected.
func Download(ctx context.Context, client *http.Client, rawURL, dir, expectedSHA string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid corpus url")
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("corpus url %s has no file name", redactURL(rawURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	dest := filepath.Join(dir, name)
	if err := ensureFileWithSHA(ctx, client, dest, rawURL, expectedSHA, MaxDownloadBytes); err != nil {
		return "", err
	}
	return dest, nil
}

func ensureFileWithSHA(ctx context.Context, client *http.Client, path, rawURL, expectedSHA string, maxBytes int64) error {
	verify := strings.TrimSpace(expectedSHA) != ""
	if verify {
		if ok, err := fileMatchesSHA256(path, expectedSHA); err != nil {
			return err
		} else if ok {
			return nil
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	err = downloadToFile(ctx, client, rawURL, tmp, maxBytes)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to download %s: %w", redactURL(rawURL), err)
	}

	if verify {
		ok, err := fileMatchesSHA256(tmpPath, expectedSHA)
		if err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
		if !ok {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("checksum mismatch for %s", filepath.Base(path))
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	return nil
}

func downloadToFile(ctx context.Context, client *http.Client, rawURL string, out *os.File, maxBytes int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		// *url.Error carries the full URL
		if urlErr, ok := err.(*url.Error); ok {
			return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return fmt.Errorf("content length %d exceeds limit %d", resp.ContentLength, maxBytes)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return err
	}
	if n > maxBytes {
		return fmt.Errorf("download exceeds limit %d", maxBytes)
	}
	return nil
}

func fileMatchesSHA256(path, expected string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return false, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	sum := hex.EncodeToString(hash.Sum(nil))
	return strings.EqualFold(sum, strings.TrimSpace(expected)), nil
}

// redactURL drops credentials, query and fragment.
func redactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path
}
