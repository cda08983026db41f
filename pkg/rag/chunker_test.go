package rag

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/tokens"
)

// The local counter estimates four characters per token, which makes
// chunk boundaries exact in these tests: a 20-char line is 5 tokens.

func chunkerRecord(counter *tokens.Counter, path, text string) FileRecord {
	return FileRecord{
		SourcePath: path,
		Text:       text,
		TokenCount: counter.Count(text),
	}
}

func TestChunkSmallFilePassesThrough(t *testing.T) {
	counter := tokens.NewCounter(tokens.FamilyLocal)
	c := NewChunker(config.TextSplitterConfig{ChunkSize: 350, ChunkOverlap: 100}, counter)

	text := "package main\n\nfunc main() {}\n"
	chunks := c.Chunk(chunkerRecord(counter, "main.go", text))

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	ch := chunks[0]
	if ch.Text != text {
		t.Errorf("chunk text altered: %q", ch.Text)
	}
	if ch.Ordinal != 0 {
		t.Errorf("ordinal = %d, want 0", ch.Ordinal)
	}
	if ch.SourcePath != "main.go" {
		t.Errorf("source path = %q", ch.SourcePath)
	}
	if ch.ID == uuid.Nil {
		t.Error("chunk ID not assigned")
	}
}

func TestChunkSplitsOnTokenBoundary(t *testing.T) {
	counter := tokens.NewCounter(tokens.FamilyLocal)
	c := NewChunker(config.TextSplitterConfig{ChunkSize: 10, ChunkOverlap: 0}, counter)

	line := strings.Repeat("a", 20) // 5 tokens
	text := strings.Join([]string{line, line, line, line, line, line}, "\n")
	chunks := c.Chunk(chunkerRecord(counter, "big.go", text))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Ordinal != i {
			t.Errorf("chunk %d: ordinal = %d", i, ch.Ordinal)
		}
		if got := strings.Count(ch.Text, "\n"); got != 1 {
			t.Errorf("chunk %d: expected two lines, got %d newlines", i, got)
		}
		if ch.TokenCount != 10 {
			t.Errorf("chunk %d: token count = %d, want 10", i, ch.TokenCount)
		}
	}

	// Concatenating the chunks reproduces the file exactly when no
	// overlap is configured.
	joined := strings.Join([]string{chunks[0].Text, chunks[1].Text, chunks[2].Text}, "\n")
	if joined != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestChunkOverlapRepeatsTrailingLines(t *testing.T) {
	counter := tokens.NewCounter(tokens.FamilyLocal)
	c := NewChunker(config.TextSplitterConfig{ChunkSize: 10, ChunkOverlap: 5}, counter)

	lines := make([]string, 6)
	for i := range lines {
		// Distinct 20-char lines so overlap is observable.
		lines[i] = strings.Repeat(string(rune('a'+i)), 20)
	}
	chunks := c.Chunk(chunkerRecord(counter, "code.py", strings.Join(lines, "\n")))

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevLines := strings.Split(chunks[i-1].Text, "\n")
		lastOfPrev := prevLines[len(prevLines)-1]
		if !strings.HasPrefix(chunks[i].Text, lastOfPrev) {
			t.Errorf("chunk %d does not start with the previous chunk's trailing line", i)
		}
	}
}

func TestChunkNeverSplitsInsideALine(t *testing.T) {
	counter := tokens.NewCounter(tokens.FamilyLocal)
	c := NewChunker(config.TextSplitterConfig{ChunkSize: 10, ChunkOverlap: 0}, counter)

	short := strings.Repeat("s", 8) // 2 tokens
	long := strings.Repeat("L", 80) // 20 tokens, over the cap on its own
	text := strings.Join([]string{short, long, short}, "\n")
	chunks := c.Chunk(chunkerRecord(counter, "mixed.go", text))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[1].Text != long {
		t.Errorf("oversized line was not kept atomic: %q", chunks[1].Text)
	}
	if chunks[1].TokenCount != 20 {
		t.Errorf("oversized chunk token count = %d, want 20", chunks[1].TokenCount)
	}
}

func TestChunkIDsAreUnique(t *testing.T) {
	counter := tokens.NewCounter(tokens.FamilyLocal)
	c := NewChunker(config.TextSplitterConfig{ChunkSize: 10, ChunkOverlap: 0}, counter)

	line := strings.Repeat("x", 20)
	text := strings.Join([]string{line, line, line, line}, "\n")
	chunks := c.Chunk(chunkerRecord(counter, "u.go", text))

	seen := make(map[uuid.UUID]bool)
	for _, ch := range chunks {
		if seen[ch.ID] {
			t.Fatalf("duplicate chunk ID %s", ch.ID)
		}
		seen[ch.ID] = true
	}
}

func TestNewChunkerDefaults(t *testing.T) {
	counter := tokens.NewCounter(tokens.FamilyLocal)

	c := NewChunker(config.TextSplitterConfig{}, counter)
	if c.size != 350 {
		t.Errorf("default size = %d, want 350", c.size)
	}

	// Overlap at or above the chunk size would never make progress.
	c = NewChunker(config.TextSplitterConfig{ChunkSize: 100, ChunkOverlap: 100}, counter)
	if c.overlap != 0 {
		t.Errorf("degenerate overlap = %d, want 0", c.overlap)
	}
}
