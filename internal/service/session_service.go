package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cyberchat-go/internal/conversation"
	"cyberchat-go/internal/model"
	"cyberchat-go/internal/repository"
	"cyberchat-go/pkg/llm"
	"cyberchat-go/pkg/log"
	"cyberchat-go/pkg/storage"
	"cyberchat-go/pkg/token"
)

// ErrSessionNotFound is returned for unknown, closed or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// closeWait bounds how long Close waits for a running turn to finish persisting.
const closeWait = 10 * time.Second

// TranscriptArchiver stores a closed session's transcript.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, t storage.Transcript) (string, error)
}

// SessionInfo is returned when a session is opened.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Model     string `json:"model"`
}

// SessionService owns the live sessions of this process.
type SessionService interface {
	// Create opens a session bound to a configured provider. An empty name selects the active one.
	Create(ctx context.Context, provider string) (*SessionInfo, error)
	// Resolve verifies a token and returns its session, rehydrating it from the mirror if needed.
	Resolve(ctx context.Context, tokenString string) (*conversation.Session, error)
	// Close discards a session after archiving its transcript. It returns the archive object name, if any.
	Close(ctx context.Context, sessionID string) (string, error)
}

type sessionService struct {
	registry   *llm.Registry
	jwtManager *token.JWTManager
	sink       conversation.Sink
	mirror     repository.SessionRepository
	archiver   TranscriptArchiver

	mu       sync.Mutex
	sessions map[string]*conversation.Session
	// closed holds the ids of closed sessions until their tokens expire, so they are never resumed.
	closed map[string]time.Time
}

// NewSessionService creates a SessionService. sink, mirror and archiver may be nil.
func NewSessionService(registry *llm.Registry, jwtManager *token.JWTManager, sink conversation.Sink, mirror repository.SessionRepository, archiver TranscriptArchiver) SessionService {
	return &sessionService{
		registry:   registry,
		jwtManager: jwtManager,
		sink:       sink,
		mirror:     mirror,
		archiver:   archiver,
		sessions:   make(map[string]*conversation.Session),
		closed:     make(map[string]time.Time),
	}
}

func (s *sessionService) Create(ctx context.Context, providerName string) (*SessionInfo, error) {
	provider, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	tok, err := s.jwtManager.GenerateToken(id, provider.Name())
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	sess := conversation.NewSession(id, provider.Name(), conversation.NewStore(id, s.sink, s.mirrorOrNil()))
	s.mu.Lock()
	s.evictExpiredLocked()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Infof("[SessionService] session created: %s, provider: %s, model: %s", id, provider.Name(), provider.Model())
	return &SessionInfo{SessionID: id, Token: tok, Model: provider.Name()}, nil
}

func (s *sessionService) Resolve(ctx context.Context, tokenString string) (*conversation.Session, error) {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[claims.SessionID]
	_, closed := s.closed[claims.SessionID]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}
	if closed {
		return nil, ErrSessionNotFound
	}

	if s.mirror == nil {
		return nil, ErrSessionNotFound
	}
	turns, err := s.mirror.LoadHistory(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotMirrored) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if _, err := s.registry.Get(claims.Provider); err != nil {
		return nil, err
	}

	restored := conversation.NewSession(claims.SessionID, claims.Provider,
		conversation.RestoreStore(claims.SessionID, turns, s.sink, s.mirrorOrNil()))
	s.mu.Lock()
	if _, closed := s.closed[claims.SessionID]; closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if existing, ok := s.sessions[claims.SessionID]; ok {
		restored = existing
	} else {
		s.sessions[claims.SessionID] = restored
	}
	s.mu.Unlock()
	log.Infof("[SessionService] session resumed from mirror: %s, turns: %d", claims.SessionID, len(turns))
	return restored, nil
}

func (s *sessionService) Close(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		s.closed[sessionID] = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return "", ErrSessionNotFound
	}

	waitCtx, cancel := context.WithTimeout(ctx, closeWait)
	err := sess.Close(waitCtx)
	cancel()
	if err != nil {
		log.Warnw("[SessionService] running turn did not finish before close", "session", sessionID, "error", err)
	}

	var objectName string
	if s.archiver != nil && sess.Store.Len() > 0 {
		name, err := s.archiver.ArchiveTranscript(ctx, storage.Transcript{
			SessionID: sessionID,
			Provider:  sess.Provider,
			Turns:     sess.Store.All(),
		})
		if err != nil {
			log.Error(fmt.Sprintf("[SessionService] archive transcript failed, session: %s", sessionID), err)
		} else {
			objectName = name
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, sessionID); err != nil {
			log.Warnw("[SessionService] delete mirrored history failed", "session", sessionID, "error", err)
		}
	}
	log.Infof("[SessionService] session closed: %s", sessionID)
	return objectName, nil
}

// evictExpiredLocked forgets idle sessions whose token can no longer be valid.
func (s *sessionService) evictExpiredLocked() {
	cutoff := time.Now().Add(-s.jwtManager.SessionDuration())
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) && !sess.Busy() {
			delete(s.sessions, id)
		}
	}
	for id, at := range s.closed {
		if at.Before(cutoff) {
			delete(s.closed, id)
		}
	}
}

func (s *sessionService) mirrorOrNil() conversation.Mirror {
	if s.mirror == nil {
		return nil
	}
	return s.mirror
}

// HistoryViews renders a session's turns for the API.
func HistoryViews(sess *conversation.Session) []model.TurnView {
	return model.NewTurnViews(sess.Store.All())
}
