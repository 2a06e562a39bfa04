package corpus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/fractalmind-ai/topoml/internal/config"
	"google.golang.org/api/option"
)

// Loader reads WKT corpora from local files, directories, Cloud Storage
// objects and http(s) downloads.
type Loader struct {
	// DownloadDir receives http(s) corpora.
	DownloadDir string
	HTTPClient  *http.Client
	GCSOptions  []option.ClientOption

	gcsOnce   sync.Once
	gcsClient *storage.Client
	gcsErr    error
}

// NewLoader builds a loader from the corpus configuration.
func NewLoader(cfg *config.CorpusConfig, downloadDir string) *Loader {
	l := &Loader{DownloadDir: downloadDir}
	if cfg != nil && cfg.GCS != nil {
		if endpoint := strings.TrimSpace(cfg.GCS.Endpoint); endpoint != "" {
			l.GCSOptions = append(l.GCSOptions, option.WithEndpoint(endpoint))
		}
		if cfg.GCS.WithoutAuth {
			l.GCSOptions = append(l.GCSOptions, option.WithoutAuthentication())
		} else if file := strings.TrimSpace(cfg.GCS.CredentialsFile); file != "" {
			l.GCSOptions = append(l.GCSOptions, option.WithCredentialsFile(file))
		}
	}
	return l
}

// Close releases the Cloud Storage client, if one was opened.
func (l *Loader) Close() error {
	if l == nil || l.gcsClient == nil {
		return nil
	}
	return l.gcsClient.Close()
}

// Load returns the corpus described by cfg: one joined string per CSV row,
// across all selected files in order.
func (l *Loader) Load(ctx context.Context, cfg *config.CorpusConfig) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("corpus config is required")
	}

	var sources []string
	switch {
	case strings.TrimSpace(cfg.Dir) != "":
		files, err := FindFiles(cfg.Dir, cfg.Prefix, DefaultExt)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no %s*%s files in %s", cfg.Prefix, DefaultExt, cfg.Dir)
		}
		sources = files
	case strings.TrimSpace(cfg.Path) != "":
		sources = []string{strings.TrimSpace(cfg.Path)}
	default:
		return nil, fmt.Errorf("corpus.path or corpus.dir is required")
	}

	var texts []string
	for _, source := range sources {
		rc, err := l.Open(ctx, source, cfg.SHA256)
		if err != nil {
			return nil, err
		}
		rows, err := ReadCSV(rc, cfg.Columns, cfg.JoinSeparator())
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		texts = append(texts, rows...)
	}
	return texts, nil
}

// Open returns a reader for a local path, gs://bucket/object or http(s) URL.
func (l *Loader) Open(ctx context.Context, uri, expectedSHA string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(uri, "gs://"):
		bucket, object, err := ParseGCSURI(uri)
		if err != nil {
			return nil, err
		}
		client, err := l.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", uri, err)
		}
		return r, nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if strings.TrimSpace(l.DownloadDir) == "" {
			return nil, fmt.Errorf("download dir is required for %s", uri)
		}
		local, err := Download(ctx, l.HTTPClient, uri, l.DownloadDir, expectedSHA)
		if err != nil {
			return nil, err
		}
		return openFile(local)
	default:
		return openFile(uri)
	}
}

func (l *Loader) storageClient(ctx context.Context) (*storage.Client, error) {
	l.gcsOnce.Do(func() {
		l.gcsClient, l.gcsErr = storage.NewClient(ctx, l.GCSOptions...)
	})
	if l.gcsErr != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", l.gcsErr)
	}
	return l.gcsClient, nil
}

// ParseGCSURI splits gs://bucket/object into its bucket and object names.
func ParseGCSURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %s", uri)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs uri must name a bucket and object: %s", uri)
	}
	return bucket, object, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	return f, nil
}
