package conversation

import (
	"context"
	"sync"
	"time"

	"cyberchat-go/internal/model"
)

// Session is the single owner of one conversation. At most one turn runs at a time.
type Session struct {
	ID        string
	Provider  string
	Store     *Store
	CreatedAt time.Time

	mu       sync.Mutex
	inFlight bool
	closed   bool
	cancel   context.CancelFunc
	idle     chan struct{}
	state    model.TurnState
}

// NewSession creates an idle session bound to provider.
func NewSession(id, provider string, store *Store) *Session {
	return &Session{
		ID:        id,
		Provider:  provider,
		Store:     store,
		CreatedAt: time.Now(),
		state:     model.StateIdle,
	}
}

// Begin claims the session for one turn and returns the turn's context.
// It fails with ErrTurnInFlight while another turn holds the session.
func (s *Session) Begin(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.inFlight {
		return nil, ErrTurnInFlight
	}
	ctx, cancel := context.WithCancel(parent)
	s.inFlight = true
	s.cancel = cancel
	s.idle = make(chan struct{})
	return ctx, nil
}

// End releases the session and returns it to idle.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	s.inFlight = false
	s.state = model.StateIdle
}

// Close refuses further turns, cancels the running one and waits until it has ended,
// persistence included. It returns ctx's error if the turn outlives ctx.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	idle := s.idle
	if s.inFlight && s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the running turn, reporting whether there was one.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Busy reports whether a turn is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Session) SetState(state model.TurnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) State() model.TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
