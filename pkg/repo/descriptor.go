// Package repo locates repository trees for ingestion: parsing locators,
// shallow-cloning remote repositories with per-host credential formats, and
// fetching single files through host APIs. Credentials passed in here are
// scrubbed from every error and log line this package produces.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// HostKind identifies where a repository lives.
type HostKind string

const (
	HostGitHub    HostKind = "github"
	HostGitLab    HostKind = "gitlab"
	HostBitbucket HostKind = "bitbucket"
	HostLocal     HostKind = "local"
)

// ParseHostKind validates a host kind string from a request.
func ParseHostKind(s string) (HostKind, error) {
	switch HostKind(strings.ToLower(strings.TrimSpace(s))) {
	case HostGitHub:
		return HostGitHub, nil
	case HostGitLab:
		return HostGitLab, nil
	case HostBitbucket:
		return HostBitbucket, nil
	case HostLocal, "":
		// Empty defaults to github, the dominant case; explicit "local"
		// stays local.
		if s == "" {
			return HostGitHub, nil
		}
		return HostLocal, nil
	default:
		return "", fmt.Errorf("unsupported host kind %q (supported: github, gitlab, bitbucket, local)", s)
	}
}

// Descriptor identifies one repository plus the filter overrides that shape
// its ingestion. Identity is (Kind, normalized locator); RepoID derives the
// stable persistence key from it.
type Descriptor struct {
	Kind       HostKind
	Locator    string // clone URL or local path
	Credential string // optional access token, never logged

	// Filter overrides carried to the file walker. Newline-separated in
	// the transport payload, split before they reach here.
	IncludeDirs  []string
	IncludeFiles []string
	ExcludeDirs  []string
	ExcludeFiles []string

	owner string
	name  string
}

// ParseLocator validates a raw locator for the host kind and derives the
// repository identity.
func ParseLocator(raw string, kind HostKind) (*Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("repository locator is empty")
	}

	d := &Descriptor{Kind: kind, Locator: raw}

	if kind == HostLocal {
		cleaned := filepath.Clean(raw)
		base := filepath.Base(cleaned)
		if base == "." || base == string(filepath.Separator) {
			return nil, fmt.Errorf("cannot derive repository name from local path %q", raw)
		}
		d.Locator = cleaned
		d.name = base
		return d, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported repository URL scheme %q (need http or https)", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("repository URL %q has no host", raw)
	}

	segments := splitPath(u.Path)
	if len(segments) < 2 {
		return nil, fmt.Errorf("cannot derive owner/repository from URL path %q", u.Path)
	}

	// Last two segments carry identity; deeper paths (gitlab subgroups)
	// keep the final pair.
	d.owner = segments[len(segments)-2]
	d.name = strings.TrimSuffix(segments[len(segments)-1], ".git")
	if d.name == "" {
		return nil, fmt.Errorf("cannot derive repository name from URL %q", raw)
	}
	return d, nil
}

func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// RepoID returns the stable persistence key: owner_repo for remote
// repositories, the directory basename for local ones.
func (d *Descriptor) RepoID() string {
	if d.Kind == HostLocal {
		return d.name
	}
	return d.owner + "_" + d.name
}

// Name returns the short repository name used in prompt labels.
func (d *Descriptor) Name() string {
	return d.name
}

// Owner returns the owner segment; empty for local repositories.
func (d *Descriptor) Owner() string {
	return d.owner
}

// CloneURL returns the URL handed to git, with the credential embedded in
// the host-specific userinfo format. Never log the result.
func (d *Descriptor) CloneURL() (string, error) {
	if d.Kind == HostLocal {
		return "", fmt.Errorf("local repositories are not cloned")
	}

	u, err := url.Parse(d.Locator)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}

	if d.Credential != "" {
		switch d.Kind {
		case HostGitHub:
			u.User = url.User(d.Credential)
		case HostGitLab:
			u.User = url.UserPassword("oauth2", d.Credential)
		case HostBitbucket:
			u.User = url.UserPassword("x-token-auth", d.Credential)
		}
	}

	return u.String(), nil
}

// Scrub replaces every occurrence of secret in s with "***". Applied to
// subprocess output and provider errors before they can reach a log or a
// response stream.
func Scrub(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// LocalPathExists reports whether a local descriptor's path is a directory.
func (d *Descriptor) LocalPathExists() bool {
	info, err := os.Stat(d.Locator)
	return err == nil && info.IsDir()
}
