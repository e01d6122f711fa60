// Package pipeline archives chat records consumed from Kafka.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
	"cyberchat-go/pkg/tasks"
)

// ErrInvalidTask is returned for tasks that can never be stored.
var ErrInvalidTask = errors.New("invalid chat record task")

// RecordWriter stores chat records.
type RecordWriter interface {
	Create(ctx context.Context, record *model.ChatRecord) error
}

// Processor writes archived chat records to durable storage.
type Processor struct {
	records RecordWriter
}

// NewProcessor creates a Processor.
func NewProcessor(records RecordWriter) *Processor {
	return &Processor{records: records}
}

// Process stores one task.
func (p *Processor) Process(ctx context.Context, task tasks.ChatRecordTask) error {
	if task.SessionID == "" || task.Timestamp.IsZero() {
		return fmt.Errorf("%w: session id and timestamp are required", ErrInvalidTask)
	}
	rec := task.Record()
	if err := p.records.Create(ctx, &rec); err != nil {
		return fmt.Errorf("store chat record: %w", err)
	}
	log.Infof("[Processor] archived chat record %d, session: %s", rec.ID, task.SessionID)
	return nil
}
