package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fractalmind-ai/topoml/pkg/protocol"
	"github.com/google/go-cmp/cmp"
)

const exampleCSV = "id,brt_wkt,osm_wkt\n" +
	"1,POINT (1 2),POINT (1 3)\n" +
	"2,\"LINESTRING (0 0, 1 1)\",POINT (0 0)\n"

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "example.csv")
	if err := os.WriteFile(csvPath, []byte(exampleCSV), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	contents := fmt.Sprintf(`corpus:
  path: %s
  columns: [brt_wkt, osm_wkt]
store:
  path: %s
  vocabulary: example
gateway:
  bind: 127.0.0.1
  port: 0
`, csvPath, filepath.Join(dir, "vocab.db"))
	if err := os.WriteFile(configPath, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func appendConfig(t *testing.T, path, extra string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("append config: %v", err)
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, ctx context.Context, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runWithContext(ctx, args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRunMissingConfig(t *testing.T) {
	res := runCLI(t, context.Background(), "", "vocab", "--config", "/nope/config.yaml")
	if res.code == 0 {
		t.Fatalf("expected non-zero exit code")
	}
	if !strings.Contains(res.stderr, "failed to load config") && !strings.Contains(res.stderr, "failed to read config") {
		t.Fatalf("unexpected error output: %q", res.stderr)
	}
}

func TestRunUsageErrors(t *testing.T) {
	configPath := writeTestConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command"},
		{name: "flag first", args: []string{"--config", configPath}},
		{name: "unknown command", args: []string{"train", "--config", configPath}},
		{name: "bad flag", args: []string{"encode", "--nope"}},
		{name: "negative max length", args: []string{"onehot", "--config", configPath, "--max-length", "-1"}},
		{name: "invalid name", args: []string{"encode", "--config", configPath, "--name", "../x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := runCLI(t, context.Background(), "", tt.args...); res.code != 2 {
				t.Fatalf("expected exit code 2, got %d stderr=%q", res.code, res.stderr)
			}
		})
	}
}

func TestVocabEncodeDecode(t *testing.T) {
	configPath := writeTestConfig(t)
	ctx := context.Background()

	res := runCLI(t, ctx, "", "vocab", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("vocab exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "vocabulary example: ") || !strings.Contains(res.stdout, "from 2 texts") {
		t.Fatalf("unexpected vocab output: %q", res.stdout)
	}

	res = runCLI(t, ctx, "", "vocabs", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("vocabs exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "example") {
		t.Fatalf("vocabs did not list example: %q", res.stdout)
	}

	res = runCLI(t, ctx, "", "encode", "--config", configPath, "POINT (1 2)")
	if res.code != 0 {
		t.Fatalf("encode exit %d: %s", res.code, res.stderr)
	}
	var encoded protocol.TokenizeResult
	if err := json.Unmarshal([]byte(res.stdout), &encoded); err != nil {
		t.Fatalf("parse encode output %q: %v", res.stdout, err)
	}
	want := [][]int{{1, 2, 3, 4, 5, 6, 7, 8, 6, 9, 10}}
	if diff := cmp.Diff(want, encoded.Sequences); diff != "" {
		t.Fatalf("sequences mismatch (-want +got):\n%s", diff)
	}

	input, _ := json.Marshal(encoded.Sequences)
	res = runCLI(t, ctx, string(input), "decode", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("decode exit %d: %s", res.code, res.stderr)
	}
	if got := strings.TrimSpace(res.stdout); got != "POINT (1 2)" {
		t.Fatalf("decode output %q", got)
	}
}

func TestEncodeReadsStdinAndReportsUnknownCharacters(t *testing.T) {
	configPath := writeTestConfig(t)
	ctx := context.Background()
	if res := runCLI(t, ctx, "", "vocab", "--config", configPath); res.code != 0 {
		t.Fatalf("vocab exit %d: %s", res.code, res.stderr)
	}

	res := runCLI(t, ctx, "POINT (0 0)\nPOINT (1 1)\n", "encode", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("encode exit %d: %s", res.code, res.stderr)
	}
	var encoded protocol.TokenizeResult
	if err := json.Unmarshal([]byte(res.stdout), &encoded); err != nil {
		t.Fatalf("parse encode output: %v", err)
	}
	if len(encoded.Sequences) != 2 {
		t.Fatalf("expected 2 sequences, got %d", len(encoded.Sequences))
	}

	res = runCLI(t, ctx, "", "encode", "--config", configPath, "POLYGON")
	if res.code != 1 || !strings.Contains(res.stderr, "unknown character") {
		t.Fatalf("expected unknown character failure, got %d %q", res.code, res.stderr)
	}
}

func TestOneHot(t *testing.T) {
	configPath := writeTestConfig(t)
	ctx := context.Background()
	if res := runCLI(t, ctx, "", "vocab", "--config", configPath); res.code != 0 {
		t.Fatalf("vocab exit %d: %s", res.code, res.stderr)
	}

	res := runCLI(t, ctx, "", "onehot", "--config", configPath, "--max-length", "4", "PO", "")
	if res.code != 0 {
		t.Fatalf("onehot exit %d: %s", res.code, res.stderr)
	}
	var out protocol.OneHotResult
	if err := json.Unmarshal([]byte(res.stdout), &out); err != nil {
		t.Fatalf("parse onehot output: %v", err)
	}
	if out.Shape[0] != 2 || out.Shape[1] != 4 {
		t.Fatalf("unexpected shape: %v", out.Shape)
	}
	if !out.Matrices[0][0][1] || !out.Matrices[0][1][2] {
		t.Fatalf("unexpected first matrix rows: %v", out.Matrices[0][:2])
	}
	for _, row := range out.Matrices[1] {
		for _, cell := range row {
			if cell {
				t.Fatalf("expected empty text to encode as all false")
			}
		}
	}

	res = runCLI(t, ctx, "", "onehot", "--config", configPath, "--max-length", "2", "POINT")
	if res.code != 1 || !strings.Contains(res.stderr, "max length is 2") {
		t.Fatalf("expected too-long failure, got %d %q", res.code, res.stderr)
	}
}

func TestEncodeMissingVocabulary(t *testing.T) {
	configPath := writeTestConfig(t)
	res := runCLI(t, context.Background(), "", "encode", "--config", configPath, "--name", "missing", "x")
	if res.code != 1 || !strings.Contains(res.stderr, `vocabulary "missing" not found`) {
		t.Fatalf("expected missing vocabulary failure, got %d %q", res.code, res.stderr)
	}
}

func TestServeExitsOnCancel(t *testing.T) {
	configPath := writeTestConfig(t)
	if res := runCLI(t, context.Background(), "", "vocab", "--config", configPath); res.code != 0 {
		t.Fatalf("vocab exit %d: %s", res.code, res.stderr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := runCLI(t, ctx, "", "serve", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("expected exit code 0, got %d output=%q", res.code, res.stderr)
	}
}

func TestVocabPostsSummaryToSlack(t *testing.T) {
	var mu sync.Mutex
	var paths, channels, texts []string
	slackServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		paths = append(paths, r.URL.Path)
		channels = append(channels, r.FormValue("channel"))
		texts = append(texts, r.FormValue("text"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer slackServer.Close()

	configPath := writeTestConfig(t)
	appendConfig(t, configPath, fmt.Sprintf("notify:\n  slack:\n    enabled: true\n    botToken: xoxb-test\n    channel: C123\n    apiUrl: %s/api/\n", slackServer.URL))

	res := runCLI(t, context.Background(), "", "vocab", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("vocab exit %d: %s", res.code, res.stderr)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 1 {
		t.Fatalf("expected 1 slack post, got %d", len(texts))
	}
	if paths[0] != "/api/chat.postMessage" || channels[0] != "C123" {
		t.Fatalf("unexpected post: path=%s channel=%s", paths[0], channels[0])
	}
	if !strings.Contains(texts[0], "topoml vocab") || !strings.Contains(texts[0], "vocabulary example: ") || !strings.Contains(texts[0], "from 2 texts") {
		t.Fatalf("unexpected summary: %q", texts[0])
	}
}

func TestVocabSucceedsWhenSlackFails(t *testing.T) {
	slackServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer slackServer.Close()

	configPath := writeTestConfig(t)
	appendConfig(t, configPath, fmt.Sprintf("notify:\n  slack:\n    enabled: true\n    botToken: xoxb-test\n    channel: C404\n    apiUrl: %s/\n", slackServer.URL))

	res := runCLI(t, context.Background(), "", "vocab", "--config", configPath)
	if res.code != 0 {
		t.Fatalf("vocab exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "failed to send notification") {
		t.Fatalf("expected notification failure to be logged, got %q", res.stderr)
	}
}
