package chat

import (
	"sync"

	"github.com/suPer8Hu/moodtune/internal/ai"
)

// Session is one user's in-memory conversation. It is never persisted.
//
// The mutex only keeps fields consistent; callers are expected to run one
// turn at a time, and racing turns append in undefined order.
type Session struct {
	mu        sync.Mutex
	messages  []ChatMessage
	isLoading bool
	err       string
}

// State is a point-in-time copy of a Session.
type State struct {
	Messages  []ChatMessage `json:"messages"`
	IsLoading bool          `json:"is_loading"`
	Error     string        `json:"error,omitempty"`
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Append(m ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Clear starts a new conversation.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.isLoading = false
	s.err = ""
}

func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.messages...)
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLoading
}

func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Messages:  append([]ChatMessage{}, s.messages...),
		IsLoading: s.isLoading,
		Error:     s.err,
	}
}

// beginTurn appends the user message and returns the transcript to send
// upstream: roles and content only.
func (s *Session) beginTurn(userMsg ChatMessage) []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, userMsg)
	s.isLoading = true
	s.err = ""

	out := make([]ai.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (s *Session) completeTurn(assistantMsg ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, assistantMsg)
	s.isLoading = false
	s.err = ""
}

func (s *Session) failTurn(userFacing string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	s.err = userFacing
}

// abandonTurn ends a turn the caller walked away from.
func (s *Session) abandonTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
}

// Sessions holds the live session of each user, created lazily.
type Sessions struct {
	mu     sync.Mutex
	byUser map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byUser: make(map[string]*Session)}
}

func (ss *Sessions) Get(userID string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.byUser[userID]
	if !ok {
		s = NewSession()
		ss.byUser[userID] = s
	}
	return s
}

// Clear resets userID's session if one exists.
func (ss *Sessions) Clear(userID string) {
	ss.mu.Lock()
	s, ok := ss.byUser[userID]
	ss.mu.Unlock()
	if ok {
		s.Clear()
	}
}

func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.byUser)
}
