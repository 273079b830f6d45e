package model

import "time"

// Role of a transcript message
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one transcript entry
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Mode      Mode      `json:"mode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is the opaque per-conversation document kept by the session
// store. The assistant only owns the registration state sub-field.
type ChatSession struct {
	ID           string               `json:"sessionId"`
	Title        string               `json:"title"`
	Messages     []ChatMessage        `json:"messages"`
	Registration *RegistrationSession `json:"registrationState,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"lastActivity"`
}

// SessionSummary is a chat session without its transcript
type SessionSummary struct {
	ID           string    `json:"sessionId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"lastActivity"`
}

// Summary drops the transcript
func (s *ChatSession) Summary() SessionSummary {
	return SessionSummary{ID: s.ID, Title: s.Title, MessageCount: len(s.Messages), UpdatedAt: s.UpdatedAt}
}

// ChatRequest is the body of POST /api/v1/chat
type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"sessionId"`
}

// Source tells the client where the reply text came from
type Source string

const (
	SourceLocal        Source = "local"
	SourceAI           Source = "ai"
	SourceFallback     Source = "fallback"
	SourceRegistration Source = "registration"
)

// ChatReply is the result of handling one user message
type ChatReply struct {
	SessionID          string           `json:"sessionId"`
	Response           string           `json:"response"`
	Mode               Mode             `json:"mode"`
	Intent             *IntentResult    `json:"intent,omitempty"`
	Source             Source           `json:"source"`
	IsRegistrationFlow bool             `json:"isRegistrationFlow"`
	Matches            []LocationRecord `json:"matches,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
}

// Route is a walking path between two campus locations
type Route struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Path  []string `json:"path"`
	Steps []string `json:"steps"`
	Found bool     `json:"found"`
}
