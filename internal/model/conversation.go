// Package model holds the data types shared across layers.
package model

import "time"

// Role tags a conversation turn or prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry of a conversation history.
// For assistant turns Annotation holds the display-only citation suffix already contained in Text.
type Turn struct {
	Role       Role      `json:"role"`
	Text       string    `json:"content"`
	Annotation string    `json:"annotation,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatMessage is one role-tagged message of an assembled prompt.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRecord is the durable record of one completed turn.
type ChatRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"type:varchar(64);index;not null" json:"sessionId"`
	UserMessage string    `gorm:"type:text;not null" json:"userMessage"`
	BotResponse string    `gorm:"type:text;not null" json:"botResponse"`
	Interrupted bool      `gorm:"not null;default:false" json:"interrupted"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
}

func (ChatRecord) TableName() string {
	return "chat_records"
}
