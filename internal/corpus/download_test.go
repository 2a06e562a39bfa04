package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestDownloadToFileRejectsContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "download-*")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer tmp.Close()

	url := server.URL + "/example.csv?token=secret"
	err = downloadToFile(context.Background(), server.Client(), url, tmp, 4)
	if err == nil {
		t.Fatal("expected error for oversized content-length")
	}
	assertNoURLLeak(t, err, url)
}

func TestDownloadToFileRejectsStreamOverflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 6; i++ {
			_, _ = w.Write([]byte("a"))
		}
	}))
	defer server.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "download-*")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer tmp.Close()

	url := server.URL + "/example.csv?token=secret"
	err = downloadToFile(context.Background(), server.Client(), url, tmp, 5)
	if err == nil {
		t.Fatal("expected error for oversized stream")
	}
	assertNoURLLeak(t, err, url)
}

func TestEnsureFileWithSHARejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	url := server.URL + "/example.csv?token=secret"
	path := filepath.Join(t.TempDir(), "example.csv")
	err := ensureFileWithSHA(context.Background(), server.Client(), path, url, "", 1024)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	assertNoURLLeak(t, err, url)
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file after failed download, stat err=%v", statErr)
	}
}

func TestEnsureFileWithSHADetectsMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("abc"))
	}))
	defer server.Close()

	url := server.URL + "/example.csv?token=secret"
	path := filepath.Join(t.TempDir(), "example.csv")
	err := ensureFileWithSHA(context.Background(), server.Client(), path, url, "deadbeef", 1024)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	assertNoURLLeak(t, err, url)
}

func TestDownloadReusesVerifiedFile(t *testing.T) {
	body := "brt_wkt\nPOINT (1 2)\n"
	sum := sha256.Sum256([]byte(body))
	expected := hex.EncodeToString(sum[:])

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		path, err := Download(context.Background(), server.Client(), server.URL+"/files/example.csv", dir, expected)
		if err != nil {
			t.Fatalf("download %d: %v", i, err)
		}
		if filepath.Base(path) != "example.csv" {
			t.Fatalf("unexpected download path: %s", path)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one request, got %d", n)
	}
}

func assertNoURLLeak(t *testing.T, err error, rawURL string) {
	t.Helper()
	if err == nil {
		return
	}
	msg := err.Error()
	if strings.Contains(msg, rawURL) {
		t.Fatalf("error leaked full URL: %s", msg)
	}
	if strings.Contains(msg, "token=secret") {
		t.Fatalf("error leaked query string: %s", msg)
	}
}
