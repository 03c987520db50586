package domain

import (
	"time"
	"unicode/utf8"
)

const (
	// DefaultTitle is the placeholder title of a conversation without messages
	DefaultTitle = "New Chat"

	titleMaxRunes = 30
	titleEllipsis = "..."
)

// Conversation represents one chat thread
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the conversation
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// ConversationSet is the full local state: conversations most-recent-first and
// the active selection. A nil ActiveID is the unsaved draft state.
type ConversationSet struct {
	Conversations []Conversation `json:"conversations"`
	ActiveID      *string        `json:"activeId"`
}

// NewConversationSet returns an empty set
func NewConversationSet() *ConversationSet {
	return &ConversationSet{Conversations: []Conversation{}}
}

// Clone returns a deep copy of the set
func (s *ConversationSet) Clone() *ConversationSet {
	out := &ConversationSet{Conversations: make([]Conversation, len(s.Conversations))}
	for i := range s.Conversations {
		out.Conversations[i] = s.Conversations[i].Clone()
	}
	if s.ActiveID != nil {
		id := *s.ActiveID
		out.ActiveID = &id
	}
	return out
}

// IndexOf returns the position of the conversation with the given id or -1
func (s *ConversationSet) IndexOf(id string) int {
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the conversation with the given id or nil
func (s *ConversationSet) Find(id string) *Conversation {
	if i := s.IndexOf(id); i >= 0 {
		return &s.Conversations[i]
	}
	return nil
}

// Active returns the active conversation or nil
func (s *ConversationSet) Active() *Conversation {
	if s.ActiveID == nil {
		return nil
	}
	return s.Find(*s.ActiveID)
}

// Normalize repairs a set decoded from storage: nil slices become empty and a
// dangling active pointer is cleared.
func (s *ConversationSet) Normalize() {
	if s.Conversations == nil {
		s.Conversations = []Conversation{}
	}
	for i := range s.Conversations {
		if s.Conversations[i].Messages == nil {
			s.Conversations[i].Messages = []Message{}
		}
	}
	if s.ActiveID != nil && s.IndexOf(*s.ActiveID) < 0 {
		s.ActiveID = nil
	}
}

// DeriveTitle builds a conversation title from its first user message:
// the first 30 characters, with an ellipsis marker when truncated.
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		if utf8.RuneCountInString(m.Content) <= titleMaxRunes {
			return m.Content
		}
		return string([]rune(m.Content)[:titleMaxRunes]) + titleEllipsis
	}
	return DefaultTitle
}

// ConversationRename represents a rename request
type ConversationRename struct {
	Title string `json:"title" validate:"required,max=200"`
}

// ActiveSelection represents a change of the active pointer; a nil ID clears it
type ActiveSelection struct {
	ID *string `json:"id"`
}
