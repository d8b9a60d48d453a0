package model

import "encoding/json"

type ConversationType string

const (
	ConversationTypeChat    ConversationType = "chat"
	ConversationTypeSummary ConversationType = "summary"
)

const DefaultConversationTitle = "New Conversation"

func (t ConversationType) Valid() bool {
	return t == ConversationTypeChat || t == ConversationTypeSummary
}

type Conversation struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Type      ConversationType `json:"type"`
	CreatedAt int64            `json:"created_at"`
	UpdatedAt int64            `json:"updated_at"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Role           MessageRole  `json:"role"`
	Content        string       `json:"content"`
	Documents      []ChunkMatch `json:"documents"`
	CreatedAt      int64        `json:"created_at"`
}

// DocumentsJSON encodes Documents for storage; nil stays NULL.
func (m *Message) DocumentsJSON() (*string, error) {
	if m.Documents == nil {
		return nil, nil
	}
	data, err := json.Marshal(m.Documents)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
