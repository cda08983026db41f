package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquire_LocalPath(t *testing.T) {
	dir := t.TempDir()

	d, err := ParseLocator(dir, HostLocal)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}

	a := NewAcquirer(t.TempDir())
	got, err := a.Acquire(context.Background(), d)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got != filepath.Clean(dir) {
		t.Errorf("Acquire() = %q, want %q", got, dir)
	}
}

func TestAcquire_LocalPathMissing(t *testing.T) {
	d, err := ParseLocator("/nonexistent/path/to/repo", HostLocal)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}

	a := NewAcquirer(t.TempDir())
	_, err = a.Acquire(context.Background(), d)
	if err == nil {
		t.Fatal("Acquire() on missing local path did not fail")
	}

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Errorf("Acquire() error type = %T, want *AcquisitionError", err)
	}
}

func TestAcquire_ReusesExistingClone(t *testing.T) {
	reposDir := t.TempDir()

	d, err := ParseLocator("https://github.com/owner/project", HostGitHub)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}

	// Pre-populate the canonical clone location; Acquire must reuse it
	// without shelling out to git.
	target := filepath.Join(reposDir, d.RepoID())
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, "README.md"), []byte("# project"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := NewAcquirer(reposDir)
	got, err := a.Acquire(context.Background(), d)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got != target {
		t.Errorf("Acquire() = %q, want reused path %q", got, target)
	}
}

func TestAcquisitionError_Unwrap(t *testing.T) {
	inner := errors.New("network down")
	err := &AcquisitionError{Op: "clone repository", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is did not reach the wrapped error")
	}
	if err.Error() != "clone repository: network down" {
		t.Errorf("Error() = %q", err.Error())
	}
}
