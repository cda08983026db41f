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

// Package wikicache stores generated wiki content as JSON blobs keyed by
// repository and language. The generator that produces the blobs lives
// outside this process; this package is the storage contract it writes
// through and the read side the HTTP handlers browse.
package wikicache

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("wiki cache entry not found")

// Key identifies one cached wiki.
type Key struct {
	Owner    string
	Repo     string
	Language string
}

// Validate rejects keys that cannot round-trip through a file name.
// Components come straight from URL parameters, so anything that could
// escape the cache directory is refused.
func (k Key) Validate() error {
	for _, part := range []struct{ name, value string }{
		{"owner", k.Owner},
		{"repo", k.Repo},
		{"language", k.Language},
	} {
		if part.value == "" {
			return fmt.Errorf("wiki cache key: %s is empty", part.name)
		}
		if strings.ContainsAny(part.value, "/\\") || strings.Contains(part.value, "..") {
			return fmt.Errorf("wiki cache key: %s %q contains path separators", part.name, part.value)
		}
	}
	// Owner and language become the outer segments of the file name;
	// an underscore inside either would make parsing ambiguous. Code
	// hosts do not allow underscores in account names, and language
	// codes use hyphens.
	if strings.Contains(k.Owner, "_") {
		return fmt.Errorf("wiki cache key: owner %q contains an underscore", k.Owner)
	}
	if strings.Contains(k.Language, "_") {
		return fmt.Errorf("wiki cache key: language %q contains an underscore", k.Language)
	}
	return nil
}

func (k Key) fileName() string {
	return k.Owner + "_" + k.Repo + "_" + k.Language + ".json"
}

// parseFileName inverts fileName. The first segment is the owner, the
// last is the language; the repo keeps any interior underscores.
func parseFileName(name string) (Key, bool) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return Key{}, false
	}
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return Key{}, false
	}
	k := Key{
		Owner:    parts[0],
		Repo:     strings.Join(parts[1:len(parts)-1], "_"),
		Language: parts[len(parts)-1],
	}
	if k.Validate() != nil {
		return Key{}, false
	}
	return k, true
}

// Entry describes a stored blob without its payload.
type Entry struct {
	Key        Key
	Size       int64
	ModifiedAt time.Time
}

// Store is the wiki cache contract.
type Store interface {
	// Put stores a blob, replacing any previous one for the key.
	Put(key Key, blob []byte) error

	// Get returns the blob for a key, or ErrNotFound.
	Get(key Key) ([]byte, error)

	// List enumerates stored entries in no particular order.
	List() ([]Entry, error)

	// Delete removes a blob. Deleting a missing key is not an error.
	Delete(key Key) error
}
