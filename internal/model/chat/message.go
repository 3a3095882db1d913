package chat

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable turn of a conversation.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId,omitempty"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}
