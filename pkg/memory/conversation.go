// Package memory holds per-session conversation history: an ordered,
// bounded sequence of user/assistant turns that the query pipeline replays
// into prompts and appends to after each completed stream.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one completed user/assistant exchange.
type Turn struct {
	ID            uuid.UUID
	UserText      string
	AssistantText string
	CreatedAt     time.Time
}

// Conversation is an append-only turn sequence with a size cap. With
// AutoCleanup the oldest turns are dropped on overflow; without it an
// append past the cap fails so the bound always holds.
type Conversation struct {
	mu          sync.RWMutex
	turns       []Turn
	maxTurns    int
	autoCleanup bool
}

// NewConversation creates a conversation capped at maxTurns. A cap of zero
// or less means unbounded.
func NewConversation(maxTurns int, autoCleanup bool) *Conversation {
	return &Conversation{
		maxTurns:    maxTurns,
		autoCleanup: autoCleanup,
	}
}

// Append records a completed exchange and returns the stored turn.
// Appends are ordered by call time, which the caller aligns with stream
// completion time.
func (c *Conversation) Append(userText, assistantText string) (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxTurns > 0 && len(c.turns) >= c.maxTurns {
		if !c.autoCleanup {
			return Turn{}, fmt.Errorf("conversation is full (%d turns) and auto cleanup is disabled", c.maxTurns)
		}
		// Drop oldest turns until one slot is free.
		drop := len(c.turns) - c.maxTurns + 1
		c.turns = append(c.turns[:0], c.turns[drop:]...)
	}

	turn := Turn{
		ID:            uuid.New(),
		UserText:      userText,
		AssistantText: assistantText,
		CreatedAt:     time.Now(),
	}
	c.turns = append(c.turns, turn)
	return turn, nil
}

// Snapshot returns a copy of all turns in append order.
func (c *Conversation) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Get returns the turn with the given ID.
func (c *Conversation) Get(id uuid.UUID) (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.turns {
		if t.ID == id {
			return t, true
		}
	}
	return Turn{}, false
}

// Remove deletes the turn with the given ID, preserving the order of the
// remaining turns.
func (c *Conversation) Remove(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.turns {
		if t.ID == id {
			c.turns = append(c.turns[:i], c.turns[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("turn %s not found", id)
}

// Clear removes all turns.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// Len returns the current number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
