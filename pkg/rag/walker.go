// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rag

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/repochat/pkg/tokens"
)

// FileKind separates source code from documentation. The kinds carry
// different token caps and are ingested code-first.
type FileKind int

const (
	KindCode FileKind = iota
	KindDoc
)

// Per-kind caps as multiples of tokens.BaseLimit.
const (
	codeCapMultiplier = 10
	docCapMultiplier  = 1
)

// codeExtensions and docExtensions are the fixed discovery sets. Binary
// document formats appear in docExtensions because the extractors turn
// them into plain text before token counting.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".java": true, ".cpp": true,
	".c": true, ".h": true, ".hpp": true, ".go": true, ".rs": true,
	".jsx": true, ".tsx": true, ".html": true, ".css": true, ".php": true,
	".swift": true, ".cs": true,
}

var docExtensions = map[string]bool{
	".md": true, ".txt": true, ".rst": true, ".json": true,
	".yaml": true, ".yml": true,
	".pdf": true, ".docx": true, ".xlsx": true,
}

// FileRecord is one admitted file ready for chunking.
type FileRecord struct {
	AbsPath    string
	SourcePath string // slash-separated, relative to the tree root
	Kind       FileKind
	Text       string
	TokenCount int

	// IsImplementation is false for test files, letting prompts favor
	// production code when labeling context.
	IsImplementation bool
}

// Walk enumerates ingestible files under root: code files first, then
// documentation, both in deterministic lexical order. Oversized files
// and files whose content cannot be read or extracted are skipped with a
// warning, never a failure.
func Walk(ctx context.Context, root string, filters *Filters, counter *tokens.Counter) ([]FileRecord, error) {
	var codePaths, docPaths []string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("Skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if filters.PruneDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(p))
		isCode := codeExtensions[ext]
		isDoc := docExtensions[ext]
		if !isCode && !isDoc {
			return nil
		}
		if !filters.Admit(rel) {
			return nil
		}

		if isCode {
			codePaths = append(codePaths, p)
		} else {
			docPaths = append(docPaths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]FileRecord, 0, len(codePaths)+len(docPaths))
	for _, p := range codePaths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if rec, ok := loadRecord(ctx, root, p, KindCode, counter); ok {
			records = append(records, rec)
		}
	}
	for _, p := range docPaths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if rec, ok := loadRecord(ctx, root, p, KindDoc, counter); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func loadRecord(ctx context.Context, root, absPath string, kind FileKind, counter *tokens.Counter) (FileRecord, bool) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return FileRecord{}, false
	}
	rel = filepath.ToSlash(rel)

	var text string
	if IsExtractable(absPath) {
		text, err = ExtractText(ctx, absPath)
		if err != nil {
			slog.Warn("Skipping file, extraction failed", "path", rel, "error", err)
			return FileRecord{}, false
		}
	} else {
		data, readErr := os.ReadFile(absPath)
		if readErr != nil {
			slog.Warn("Skipping unreadable file", "path", rel, "error", readErr)
			return FileRecord{}, false
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return FileRecord{}, false
	}

	capMultiplier := codeCapMultiplier
	if kind == KindDoc {
		capMultiplier = docCapMultiplier
	}
	if counter.IsTooLarge(text, capMultiplier) {
		slog.Warn("Skipping oversized file",
			"path", rel,
			"tokens", counter.Count(text),
			"cap", capMultiplier*tokens.BaseLimit)
		return FileRecord{}, false
	}

	return FileRecord{
		AbsPath:          absPath,
		SourcePath:       rel,
		Kind:             kind,
		Text:             text,
		TokenCount:       counter.Count(text),
		IsImplementation: isImplementationFile(rel),
	}, true
}

// isImplementationFile flags files that look like production code rather
// than tests.
func isImplementationFile(rel string) bool {
	name := strings.ToLower(filepath.Base(rel))
	if strings.HasPrefix(name, "test_") {
		return false
	}
	for _, suffix := range []string{"_test.go", "_test.py", ".test.js", ".test.ts", ".spec.js", ".spec.ts"} {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}
