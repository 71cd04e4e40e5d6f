package coach

import (
	"sync"

	"github.com/hmori/gamecoach/pkg/types"
)

// Session holds one player's running coaching conversation.
//
// The history grows as the player asks questions and the coach replies; the
// engine trims it from the front against the model's context budget before
// every request. Safe for concurrent use.
type Session struct {
	// PlayerID identifies the player this session belongs to.
	PlayerID string

	// GameID identifies which game is being coached.
	GameID string

	mu       sync.Mutex
	messages []types.Message
}

// NewSession creates an empty session for the given player and game.
func NewSession(playerID, gameID string) *Session {
	return &Session{PlayerID: playerID, GameID: gameID}
}

// Append adds a message to the history.
func (s *Session) Append(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// History returns a copy of the conversation history.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
