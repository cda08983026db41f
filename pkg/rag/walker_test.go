package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/tokens"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func sourcePaths(records []FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.SourcePath
	}
	return out
}

func TestWalkCodeFirstDeterministicOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/guide.md":              "# Guide\nSome documentation.",
		"main.go":                    "package main\n\nfunc main() {}\n",
		"src/app.py":                 "def run():\n    pass\n",
		"node_modules/pkg/index.js":  "module.exports = {}\n",
		"package-lock.json":          "{}",
		"notes.bin":                  "binary payload",
	})

	filters := NewFilters(nil, nil, nil, nil, config.FileFilterConfig{
		ExcludedDirs:  []string{"node_modules"},
		ExcludedFiles: []string{"package-lock.json"},
	})
	counter := tokens.NewCounter(tokens.FamilyLocal)

	records, err := Walk(context.Background(), root, filters, counter)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{"main.go", "src/app.py", "docs/guide.md"}
	got := sourcePaths(records)
	if len(got) != len(want) {
		t.Fatalf("got files %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got files %v, want %v", got, want)
		}
	}

	if records[0].Kind != KindCode || records[1].Kind != KindCode {
		t.Error("expected code files first")
	}
	if records[2].Kind != KindDoc {
		t.Error("expected documentation files last")
	}
	for _, rec := range records {
		if rec.TokenCount <= 0 {
			t.Errorf("%s: token count not populated", rec.SourcePath)
		}
	}
}

func TestWalkSkipsOversizedByKind(t *testing.T) {
	// 40000 chars is 10000 heuristic tokens: over the 8192 doc cap but
	// well under the 81920 code cap.
	big := strings.Repeat("a", 40000)
	root := writeTree(t, map[string]string{
		"big.md": big,
		"big.go": big,
	})

	filters := NewFilters(nil, nil, nil, nil, config.FileFilterConfig{})
	counter := tokens.NewCounter(tokens.FamilyLocal)

	records, err := Walk(context.Background(), root, filters, counter)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	got := sourcePaths(records)
	if len(got) != 1 || got[0] != "big.go" {
		t.Fatalf("got %v, want only big.go", got)
	}
}

func TestWalkSkipsEmptyFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"empty.go": "   \n\t\n",
		"real.go":  "package real\n",
	})

	filters := NewFilters(nil, nil, nil, nil, config.FileFilterConfig{})
	counter := tokens.NewCounter(tokens.FamilyLocal)

	records, err := Walk(context.Background(), root, filters, counter)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(records) != 1 || records[0].SourcePath != "real.go" {
		t.Fatalf("got %v, want only real.go", sourcePaths(records))
	}
}

func TestWalkInclusionReachesNestedDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"deep/src/lib.py": "def lib():\n    pass\n",
		"main.go":         "package main\n",
		"docs/guide.md":   "# Guide\n",
	})

	filters := NewFilters([]string{"src"}, nil, nil, nil, config.FileFilterConfig{})
	counter := tokens.NewCounter(tokens.FamilyLocal)

	records, err := Walk(context.Background(), root, filters, counter)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(records) != 1 || records[0].SourcePath != "deep/src/lib.py" {
		t.Fatalf("got %v, want only deep/src/lib.py", sourcePaths(records))
	}
}

func TestWalkCancellation(t *testing.T) {
	root := writeTree(t, map[string]string{"main.go": "package main\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	filters := NewFilters(nil, nil, nil, nil, config.FileFilterConfig{})
	if _, err := Walk(ctx, root, filters, tokens.NewCounter(tokens.FamilyLocal)); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestIsImplementationFile(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"pkg/engine/engine.go", true},
		{"pkg/engine/engine_test.go", false},
		{"tests/test_app.py", false},
		{"src/app.spec.ts", false},
		{"src/app.test.js", false},
		{"src/contest.go", true},
	}
	for _, tc := range cases {
		if got := isImplementationFile(tc.path); got != tc.want {
			t.Errorf("isImplementationFile(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
