// Package repository implements the MySQL and Redis data access layer.
package repository

import (
	"context"

	"gorm.io/gorm"

	"cyberchat-go/internal/model"
)

// ChatRecordRepository persists completed turns.
type ChatRecordRepository interface {
	Create(ctx context.Context, record *model.ChatRecord) error
	FindBySession(ctx context.Context, sessionID string) ([]model.ChatRecord, error)
}

type chatRecordRepository struct {
	db *gorm.DB
}

// NewChatRecordRepository creates a GORM-backed ChatRecordRepository.
func NewChatRecordRepository(db *gorm.DB) ChatRecordRepository {
	return &chatRecordRepository{db: db}
}

// Create inserts one record. Records are never updated.
func (r *chatRecordRepository) Create(ctx context.Context, record *model.ChatRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindBySession returns a session's records in chronological order.
func (r *chatRecordRepository) FindBySession(ctx context.Context, sessionID string) ([]model.ChatRecord, error) {
	var records []model.ChatRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&records).Error
	return records, err
}
