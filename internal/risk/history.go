// Package risk classifies transcribed call segments for voice-phishing
// indicators using an LLM backend, keeping per-session dialogue history so
// the model sees the conversation so far.
package risk

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Role values match the chat-completions convention.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DialogueTurn is one entry of a session's classification history.
type DialogueTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the append-only dialogue record for one session. Within a
// session it grows without bound; a call's worth of turns is small, and
// whole sessions are evicted by the store's LRU policy instead.
type History struct {
	mu    sync.Mutex
	turns []DialogueTurn
}

// Append adds one turn to the end of the history.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, DialogueTurn{Role: role, Content: content})
}

// AppendExchange adds a user turn and its assistant answer atomically so
// concurrent sessions cannot interleave within one exchange.
func (h *History) AppendExchange(query, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns,
		DialogueTurn{Role: RoleUser, Content: query},
		DialogueTurn{Role: RoleAssistant, Content: answer},
	)
}

// Snapshot returns a copy of the history in order.
func (h *History) Snapshot() []DialogueTurn {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]DialogueTurn, len(h.turns))
	copy(out, h.turns)

	return out
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.turns)
}

// HistoryStore holds per-session dialogue histories behind an LRU cache so
// long-running deployments shed sessions that ended without cleanup.
type HistoryStore struct {
	cache *lru.Cache[string, *History]
}

// NewHistoryStore creates a store bounded to size sessions.
func NewHistoryStore(size int) (*HistoryStore, error) {
	cache, err := lru.New[string, *History](size)
	if err != nil {
		return nil, err
	}

	return &HistoryStore{cache: cache}, nil
}

// GetOrCreate returns the session's history, creating it on first use.
func (s *HistoryStore) GetOrCreate(sessionID string) *History {
	if h, ok := s.cache.Get(sessionID); ok {
		return h
	}

	h := &History{}
	if prev, ok, _ := s.cache.PeekOrAdd(sessionID, h); ok {
		return prev
	}

	return h
}

// Remove drops the session's history, e.g. when the session ends.
func (s *HistoryStore) Remove(sessionID string) {
	s.cache.Remove(sessionID)
}
