package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"default",
		"brt_osm.v2",
		"ABC-123",
	}
	for _, value := range valid {
		if err := ValidateName(value); err != nil {
			t.Fatalf("expected valid name %q: %v", value, err)
		}
	}

	invalid := []string{
		"",
		"..",
		"../vocab",
		"a..b",
		"foo/bar",
		"foo\\bar",
		"/absolute",
		"vocab name",
	}
	for _, value := range invalid {
		if err := ValidateName(value); err == nil {
			t.Fatalf("expected invalid name %q", value)
		}
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolvePath("", dir)
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if want := filepath.Join(dir, "vocabularies.db"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	explicit := filepath.Join(dir, "custom.db")
	got, err = ResolvePath(explicit, "")
	if err != nil {
		t.Fatalf("resolve explicit path: %v", err)
	}
	if got != explicit {
		t.Fatalf("expected %s, got %s", explicit, got)
	}
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandUser("~/topoml/vocab.db")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if want := filepath.Join(home, "topoml", "vocab.db"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got, _ := ExpandUser("/abs/path"); got != "/abs/path" {
		t.Fatalf("unexpected expansion of absolute path: %s", got)
	}
}
