package memory

import "sync"

// SessionService maps caller session IDs to their conversations. Sessions
// are process-scoped: they outlive single queries but not the process.
type SessionService struct {
	mu          sync.RWMutex
	sessions    map[string]*Conversation
	maxTurns    int
	autoCleanup bool
}

// NewSessionService creates a service whose conversations share one cap
// and cleanup policy.
func NewSessionService(maxTurns int, autoCleanup bool) *SessionService {
	return &SessionService{
		sessions:    make(map[string]*Conversation),
		maxTurns:    maxTurns,
		autoCleanup: autoCleanup,
	}
}

// Conversation returns the session's conversation, creating it on first use.
func (s *SessionService) Conversation(sessionID string) *Conversation {
	s.mu.RLock()
	conv, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock; another goroutine may have created it.
	if conv, ok := s.sessions[sessionID]; ok {
		return conv
	}
	conv = NewConversation(s.maxTurns, s.autoCleanup)
	s.sessions[sessionID] = conv
	return conv
}

// Remove drops a session and its history.
func (s *SessionService) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
