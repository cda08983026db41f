package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchFile_Local(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	want := "package main\n"
	if err := os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte(want), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := ParseLocator(dir, HostLocal)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}

	a := NewAcquirer(t.TempDir())
	got, err := a.FetchFile(context.Background(), d, "src/main.go")
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if got != want {
		t.Errorf("FetchFile() = %q, want %q", got, want)
	}
}

func TestFetchFile_GitHub(t *testing.T) {
	want := "def main():\n    pass\n"
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v3/repos/owner/project/contents/") {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(want)),
		})
	}))
	defer server.Close()

	// A non-github.com host routes API calls to <host>/api/v3, which lets
	// the test server stand in for GitHub Enterprise.
	d, err := ParseLocator(server.URL+"/owner/project", HostGitHub)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}
	d.Credential = "ghp_token"

	a := NewAcquirer(t.TempDir())
	got, err := a.FetchFile(context.Background(), d, "main.py")
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if got != want {
		t.Errorf("FetchFile() = %q, want %q", got, want)
	}
	if gotAuth != "token ghp_token" {
		t.Errorf("Authorization header = %q, want token form", gotAuth)
	}
}

func TestFetchFile_GitLab(t *testing.T) {
	want := "# docs\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/api/v4/projects/") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("PRIVATE-TOKEN") != "glpat_token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(want))
	}))
	defer server.Close()

	d, err := ParseLocator(server.URL+"/group/project", HostGitLab)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}
	d.Credential = "glpat_token"

	a := NewAcquirer(t.TempDir())
	got, err := a.FetchFile(context.Background(), d, "docs/README.md")
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if got != want {
		t.Errorf("FetchFile() = %q, want %q", got, want)
	}
}

func TestFetchFile_ErrorScrubsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`requested with token secret_token_value`))
	}))
	defer server.Close()

	d, err := ParseLocator(server.URL+"/owner/project", HostGitHub)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}
	d.Credential = "secret_token_value"

	a := NewAcquirer(t.TempDir())
	_, err = a.FetchFile(context.Background(), d, "missing.go")
	if err == nil {
		t.Fatal("FetchFile() expected error for 404")
	}
	if strings.Contains(err.Error(), "secret_token_value") {
		t.Errorf("error leaked credential: %v", err)
	}
}

func TestFetchFile_EmptyPath(t *testing.T) {
	d := &Descriptor{Kind: HostLocal, Locator: t.TempDir(), name: "x"}

	a := NewAcquirer(t.TempDir())
	if _, err := a.FetchFile(context.Background(), d, "  "); err == nil {
		t.Error("FetchFile(empty path) did not fail")
	}
}
