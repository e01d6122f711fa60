// Package tasks defines the messages exchanged over Kafka.
package tasks

import (
	"time"

	"cyberchat-go/internal/model"
)

// ChatRecordTask carries one completed turn to the archiver.
type ChatRecordTask struct {
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Interrupted bool      `json:"interrupted"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewChatRecordTask converts a record for publishing.
func NewChatRecordTask(rec model.ChatRecord) ChatRecordTask {
	return ChatRecordTask{
		SessionID:   rec.SessionID,
		UserMessage: rec.UserMessage,
		BotResponse: rec.BotResponse,
		Interrupted: rec.Interrupted,
		Timestamp:   rec.Timestamp,
	}
}

// Record converts the task back into a storable record.
func (t ChatRecordTask) Record() model.ChatRecord {
	return model.ChatRecord{
		SessionID:   t.SessionID,
		UserMessage: t.UserMessage,
		BotResponse: t.BotResponse,
		Interrupted: t.Interrupted,
		Timestamp:   t.Timestamp,
	}
}

// Key identifies the task for retry bookkeeping.
func (t ChatRecordTask) Key() string {
	return t.SessionID + ":" + t.Timestamp.UTC().Format(time.RFC3339Nano)
}
