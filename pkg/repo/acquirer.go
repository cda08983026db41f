package repo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kadirpekel/repochat/pkg/httpclient"
)

// AcquisitionError marks a failure to clone or fetch repository content.
// Its message is safe to surface: credentials are scrubbed before wrapping.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Acquirer materializes repository trees under one repos directory and
// fetches single files through host APIs. Safe for concurrent use; clones
// of the same repo_id are serialized by the filesystem (first writer wins,
// later callers reuse).
type Acquirer struct {
	reposDir string
	client   *httpclient.Client
}

type AcquirerOption func(*Acquirer)

// WithHTTPClient replaces the retrying client used for host API calls.
func WithHTTPClient(client *httpclient.Client) AcquirerOption {
	return func(a *Acquirer) {
		a.client = client
	}
}

func NewAcquirer(reposDir string, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		reposDir: reposDir,
		client:   httpclient.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire ensures the repository tree exists on local disk and returns its
// path. Local descriptors return their own path; remote ones are shallow
// cloned into <reposDir>/<repo_id>, reusing a non-empty existing clone.
func (a *Acquirer) Acquire(ctx context.Context, desc *Descriptor) (string, error) {
	if desc.Kind == HostLocal {
		if !desc.LocalPathExists() {
			return "", &AcquisitionError{
				Op:  "acquire local repository",
				Err: fmt.Errorf("path %q does not exist or is not a directory", desc.Locator),
			}
		}
		return desc.Locator, nil
	}

	target := filepath.Join(a.reposDir, desc.RepoID())
	if entries, err := os.ReadDir(target); err == nil && len(entries) > 0 {
		slog.Debug("Reusing existing clone", "repo", desc.RepoID(), "path", target)
		return target, nil
	}

	cloneURL, err := desc.CloneURL()
	if err != nil {
		return "", &AcquisitionError{Op: "acquire repository", Err: err}
	}

	if err := os.MkdirAll(a.reposDir, 0755); err != nil {
		return "", &AcquisitionError{Op: "acquire repository", Err: err}
	}

	slog.Info("Cloning repository", "repo", desc.RepoID(), "host", string(desc.Kind))

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth=1", "--single-branch", cloneURL, target)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// A partial clone directory would be mistaken for a reusable one.
		_ = os.RemoveAll(target)
		detail := Scrub(string(output), desc.Credential)
		return "", &AcquisitionError{
			Op:  "clone repository",
			Err: fmt.Errorf("git clone failed for %s: %v: %s", desc.RepoID(), err, detail),
		}
	}

	return target, nil
}
