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
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/tokens"
	"github.com/kadirpekel/repochat/pkg/vector"
)

// Chunker splits file text into ordered, token-bounded chunks. Lines are
// the atomic unit: a chunk never splits inside one, so a single line
// larger than the cap becomes its own chunk. Overlap is seeded from the
// trailing lines of the previous chunk.
type Chunker struct {
	size    int
	overlap int
	counter *tokens.Counter
}

func NewChunker(cfg config.TextSplitterConfig, counter *tokens.Counter) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 350
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap, counter: counter}
}

// Chunk splits one file record. Ordinals start at zero and follow source
// order; every chunk carries the record's source path.
func (c *Chunker) Chunk(record FileRecord) []vector.Chunk {
	if record.TokenCount > 0 && record.TokenCount <= c.size {
		return []vector.Chunk{c.newChunk(record.SourcePath, 0, record.Text, record.TokenCount)}
	}

	lines := strings.Split(record.Text, "\n")
	lineTokens := make([]int, len(lines))
	for i, line := range lines {
		lineTokens[i] = c.counter.Count(line)
	}

	var chunks []vector.Chunk
	var current []string
	currentTokens := 0
	chunkStart := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n")
		chunks = append(chunks, c.newChunk(record.SourcePath, len(chunks), text, currentTokens))
	}

	for i, line := range lines {
		lt := lineTokens[i]
		if currentTokens > 0 && currentTokens+lt > c.size {
			flush()

			// Seed the next chunk with trailing lines of the one just
			// flushed, newest first, until the overlap budget is spent.
			var seed []string
			seedTokens := 0
			for j := i - 1; j >= chunkStart && seedTokens < c.overlap; j-- {
				t := lineTokens[j]
				if seedTokens+t > c.overlap && len(seed) > 0 {
					break
				}
				seed = append([]string{lines[j]}, seed...)
				seedTokens += t
			}
			current = seed
			currentTokens = seedTokens
			chunkStart = i
		}

		current = append(current, line)
		currentTokens += lt
	}
	flush()

	return chunks
}

func (c *Chunker) newChunk(sourcePath string, ordinal int, text string, tokenCount int) vector.Chunk {
	return vector.Chunk{
		ID:         uuid.New(),
		SourcePath: sourcePath,
		Text:       text,
		TokenCount: tokenCount,
		Ordinal:    ordinal,
	}
}
