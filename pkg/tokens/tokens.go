// Package tokens provides token counting for chunking decisions and
// file-size caps. Counts come from tiktoken encodings when available and a
// length heuristic otherwise, so ingestion never fails on tokenizer issues.
package tokens

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Family selects the tokenizer behavior. Remote BPE-style providers share
// one encoding; local embedding models get a cheap heuristic because their
// vocabularies are not distributed with the binary.
type Family int

const (
	FamilyBPE Family = iota
	FamilyLocal
)

// BaseLimit is the reference token cap. Per-kind caps are expressed as
// multiples of it (10x for code files, 1x for docs).
const BaseLimit = 8192

const bpeEncoding = "cl100k_base"

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// Counter counts tokens under one tokenizer family. Safe for concurrent use.
type Counter struct {
	family   Family
	encoding *tiktoken.Tiktoken
}

// NewCounter returns a counter for the family. A tokenizer load failure
// degrades to the heuristic with a warning rather than failing ingestion.
func NewCounter(family Family) *Counter {
	c := &Counter{family: family}
	if family == FamilyLocal {
		return c
	}

	encoding, err := cachedEncoding(bpeEncoding)
	if err != nil {
		slog.Warn("Tokenizer unavailable, falling back to length heuristic", "encoding", bpeEncoding, "error", err)
		return c
	}
	c.encoding = encoding
	return c
}

func cachedEncoding(name string) (*tiktoken.Tiktoken, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[name]
	cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	encodingCache[name] = encoding
	cacheMu.Unlock()
	return encoding, nil
}

// Count returns the token count of text under the counter's family.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return Estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// IsTooLarge reports whether text exceeds capMultiplier times the base
// limit. The walker passes 10 for code files and 1 for documentation.
func (c *Counter) IsTooLarge(text string, capMultiplier int) bool {
	if capMultiplier <= 0 {
		capMultiplier = 1
	}
	return c.Count(text) > capMultiplier*BaseLimit
}

// Family returns the tokenizer family this counter was built for.
func (c *Counter) Family() Family {
	if c == nil {
		return FamilyLocal
	}
	return c.family
}

// Estimate is the rough fallback: four characters per token.
func Estimate(text string) int {
	return len(text) / 4
}
