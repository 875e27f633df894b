package core

import (
	"time"

	"github.com/google/uuid"
)

// Reserved message authors. Any other author value is an Agent ID.
const (
	AuthorUser   = "user"
	AuthorSystem = "system"
)

// Message is one immutable transcript entry. Transcript order is round number
// first, insertion order second; the engine only ever appends.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"` // Agent ID, "user" or "system"
	Content   string    `json:"content"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a transcript message stamped with the current UTC time.
func NewMessage(author, content string, round int) Message {
	return Message{
		ID:        NewID(),
		Author:    author,
		Content:   content,
		Round:     round,
		Timestamp: time.Now().UTC(),
	}
}

// IsUser reports whether the message was authored by the human user.
func (m Message) IsUser() bool { return m.Author == AuthorUser }

// NewID generates a unique identifier for conversations, agents, messages and
// rounds.
func NewID() string { return uuid.NewString() }
