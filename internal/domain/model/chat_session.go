package model

// DefaultSessionName is the name of the session every user talks into.
const DefaultSessionName = "default"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage represents one message within a chat session.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionKey identifies one stored conversation history.
type SessionKey struct {
	UserID string
	Name   string
}

func NewSessionKey(userID, name string) SessionKey {
	if name == "" {
		name = DefaultSessionName
	}
	return SessionKey{UserID: userID, Name: name}
}

// CloneMessages returns a copy that can be appended to without touching the source.
// A nil or empty input yields a non-nil empty slice.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(msgs), len(msgs)+2)
	copy(out, msgs)
	return out
}

// LastMessage returns the final message of a history.
func LastMessage(msgs []ChatMessage) (ChatMessage, bool) {
	if len(msgs) == 0 {
		return ChatMessage{}, false
	}
	return msgs[len(msgs)-1], true
}
