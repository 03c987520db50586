package domain

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether the role is one the conversation model accepts
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn in a conversation. Content is untrusted user or model
// text and must be escaped by whatever renders it.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// MessageCreate represents a message append request
type MessageCreate struct {
	Role    MessageRole `json:"role" validate:"required,oneof=user assistant"`
	Content string      `json:"content" validate:"required,max=32000"`
}
