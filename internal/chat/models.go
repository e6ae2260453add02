package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role/content entry of a conversation.
type Turn struct {
	Role    string `json:"role" bson:"role"`
	Content string `json:"content" bson:"content"`
}

// Document is the per-identity conversation as document stores keep it.
type Document struct {
	UserEmail string    `json:"userEmail" bson:"userEmail"`
	Messages  []Turn    `json:"messages" bson:"messages"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Conversation is the SQL row owning a user's turns. One row per email.
type Conversation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserEmail string    `gorm:"type:varchar(320);uniqueIndex;not null" json:"userEmail"`
	TurnCount int       `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "chat_conversations" }

// TurnRecord stores one turn at position Seq of its conversation.
type TurnRecord struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID uint64    `gorm:"not null;index:uniq_chat_turn_seq,unique,priority:1" json:"-"`
	Seq            int       `gorm:"not null;index:uniq_chat_turn_seq,unique,priority:2" json:"-"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `json:"-"`
}

func (TurnRecord) TableName() string { return "chat_turns" }
