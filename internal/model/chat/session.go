package chat

import "time"

// Session captures an anonymous conversation identity.
type Session struct {
	ID        string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}
