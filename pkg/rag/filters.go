package rag

import (
	"path"
	"strings"

	"github.com/kadirpekel/repochat/pkg/config"
)

// Filters decides which files under a repository tree participate in
// ingestion. The mode is inclusion iff either include list is non-empty;
// otherwise exclusion over the request's excludes merged with the
// configured defaults.
type Filters struct {
	includeDirs  []string
	includeFiles []string
	excludeDirs  []string
	excludeFiles []string
}

// NewFilters builds a filter set from request-level overrides and the
// configured defaults. Defaults only apply in exclusion mode.
func NewFilters(includeDirs, includeFiles, excludeDirs, excludeFiles []string, defaults config.FileFilterConfig) *Filters {
	f := &Filters{
		includeDirs:  normalizeAll(includeDirs),
		includeFiles: normalizeAll(includeFiles),
	}
	if f.InclusionMode() {
		return f
	}
	f.excludeDirs = normalizeAll(append(append([]string{}, defaults.ExcludedDirs...), excludeDirs...))
	f.excludeFiles = normalizeAll(append(append([]string{}, defaults.ExcludedFiles...), excludeFiles...))
	return f
}

// InclusionMode reports whether only listed directories and file
// patterns are admitted.
func (f *Filters) InclusionMode() bool {
	return len(f.includeDirs) > 0 || len(f.includeFiles) > 0
}

// Admit reports whether the slash-separated relative path passes the
// filter set.
func (f *Filters) Admit(relPath string) bool {
	relPath = normalize(relPath)
	if f.InclusionMode() {
		for _, dir := range f.includeDirs {
			if underDir(relPath, dir) {
				return true
			}
		}
		name := path.Base(relPath)
		for _, pattern := range f.includeFiles {
			if matchesFilePattern(name, pattern) {
				return true
			}
		}
		return false
	}

	for _, dir := range f.excludeDirs {
		if hasComponent(path.Dir(relPath), dir) {
			return false
		}
	}
	name := path.Base(relPath)
	for _, excluded := range f.excludeFiles {
		if name == excluded {
			return false
		}
	}
	return true
}

// PruneDir reports whether a directory subtree can be skipped outright.
// Only exclusion mode prunes; inclusion mode must keep walking because a
// nested include may sit below an unlisted parent.
func (f *Filters) PruneDir(relDir string) bool {
	if f.InclusionMode() {
		return false
	}
	relDir = normalize(relDir)
	for _, dir := range f.excludeDirs {
		if hasComponent(relDir, dir) {
			return true
		}
	}
	return false
}

func normalizeAll(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if n := normalize(e); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalize strips the "./" prefix and trailing slash forms that filter
// lists arrive in ("./node_modules/", ".git/").
func normalize(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, "/")
	return p
}

// underDir reports whether relPath lies beneath dir. A bare name matches
// that component anywhere in the path; a multi-segment dir anchors at the
// root.
func underDir(relPath, dir string) bool {
	if dir == "" {
		return false
	}
	if strings.Contains(dir, "/") {
		return relPath == dir || strings.HasPrefix(relPath, dir+"/")
	}
	return hasComponent(path.Dir(relPath), dir) || strings.HasPrefix(relPath, dir+"/")
}

func hasComponent(relDir, name string) bool {
	if relDir == "." || relDir == "" {
		return false
	}
	for _, comp := range strings.Split(relDir, "/") {
		if comp == name {
			return true
		}
	}
	return false
}

// matchesFilePattern matches a basename against an included file entry:
// an exact name or a suffix pattern like "*.go".
func matchesFilePattern(name, pattern string) bool {
	if name == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(name, pattern[1:])
	}
	return strings.HasSuffix(name, pattern)
}
