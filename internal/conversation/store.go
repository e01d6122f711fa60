// Package conversation holds the per-session turn log and the sinks it persists to.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
)

var (
	// ErrPersistenceFailure wraps sink errors. It never invalidates the in-memory append.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrTurnInFlight is returned when a turn is submitted while another one is running.
	ErrTurnInFlight = errors.New("a turn is already in progress for this session")
	// ErrSessionClosed is returned when a turn is submitted to a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Sink durably records completed turns.
type Sink interface {
	Write(ctx context.Context, record model.ChatRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record model.ChatRecord) error

func (f SinkFunc) Write(ctx context.Context, record model.ChatRecord) error {
	return f(ctx, record)
}

// Mirror keeps a resumable copy of the full history outside the process.
type Mirror interface {
	SaveHistory(ctx context.Context, sessionID string, turns []model.Turn) error
}

// Store is an append-only log of turns for one session.
type Store struct {
	sessionID string
	sink      Sink
	mirror    Mirror
	now       func() time.Time

	mu    sync.RWMutex
	turns []model.Turn
}

// NewStore creates an empty store. sink and mirror may be nil.
func NewStore(sessionID string, sink Sink, mirror Mirror) *Store {
	return &Store{sessionID: sessionID, sink: sink, mirror: mirror, now: time.Now}
}

// RestoreStore creates a store that continues from previously mirrored turns.
func RestoreStore(sessionID string, turns []model.Turn, sink Sink, mirror Mirror) *Store {
	s := NewStore(sessionID, sink, mirror)
	s.turns = append(s.turns, turns...)
	return s
}

// SessionID returns the owning session id.
func (s *Store) SessionID() string { return s.sessionID }

// AppendUser records a user turn.
func (s *Store) AppendUser(ctx context.Context, text string) model.Turn {
	t := model.Turn{Role: model.RoleUser, Text: text, CreatedAt: s.now()}
	s.mu.Lock()
	s.turns = append(s.turns, t)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.saveMirror(ctx, snapshot)
	return t
}

// AppendAssistant records the full assistant text, annotation included, then writes the
// completed exchange to the sink. A sink error is returned wrapped in ErrPersistenceFailure;
// the turn stays appended either way.
func (s *Store) AppendAssistant(ctx context.Context, text, annotation string, interrupted bool) (model.Turn, error) {
	t := model.Turn{Role: model.RoleAssistant, Text: text, Annotation: annotation, CreatedAt: s.now()}
	s.mu.Lock()
	userText := s.lastUserTextLocked()
	s.turns = append(s.turns, t)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.saveMirror(ctx, snapshot)

	if s.sink == nil {
		return t, nil
	}
	record := model.ChatRecord{
		SessionID:   s.sessionID,
		UserMessage: userText,
		BotResponse: text,
		Interrupted: interrupted,
		Timestamp:   t.CreatedAt,
	}
	if err := s.sink.Write(ctx, record); err != nil {
		log.Error(fmt.Sprintf("[ConversationStore] persist chat record failed, session: %s", s.sessionID), err)
		return t, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return t, nil
}

// All returns a copy of the turns in append order.
func (s *Store) All() []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Store) snapshotLocked() []model.Turn {
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) lastUserTextLocked() string {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == model.RoleUser {
			return s.turns[i].Text
		}
	}
	return ""
}

func (s *Store) saveMirror(ctx context.Context, turns []model.Turn) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SaveHistory(ctx, s.sessionID, turns); err != nil {
		log.Warnw("[ConversationStore] mirror history failed", "session", s.sessionID, "error", err)
	}
}
