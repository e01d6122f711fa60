package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cyberchat-go/internal/conversation"
	"cyberchat-go/internal/model"
	"cyberchat-go/internal/prompt"
	"cyberchat-go/pkg/embedding"
	"cyberchat-go/pkg/llm"
	"cyberchat-go/pkg/log"
)

// ErrTurnCanceled is returned when the caller stops a turn before the stream completed.
// The partial text is discarded and no assistant turn is appended.
var ErrTurnCanceled = errors.New("turn canceled")

// TurnResult describes a turn whose assistant reply was appended.
type TurnResult struct {
	// Answer is the model output without the citation annotation.
	Answer string
	// Text is the stored assistant text, annotation included.
	Text        string
	Citations   []string
	Interrupted bool
	// PersistenceErr is set when the durable write failed. The turn is still complete.
	PersistenceErr error
}

// ChatService runs one retrieval-augmented turn against a session.
type ChatService interface {
	// Generate runs the whole turn. onDelta is called with each streamed delta in order.
	//
	// On a mid-stream provider failure the partial reply is still appended; Generate then returns
	// both the result and an error matching llm.ErrStreamInterrupted.
	Generate(ctx context.Context, sess *conversation.Session, query string, onDelta func(delta string) error) (*TurnResult, error)
}

type chatService struct {
	searchService     SearchService
	assembler         *prompt.Assembler
	registry          *llm.Registry
	topK              int
	completionTimeout time.Duration
	persistTimeout    time.Duration
}

// NewChatService creates a ChatService.
func NewChatService(searchService SearchService, assembler *prompt.Assembler, registry *llm.Registry, topK int, completionTimeout, persistTimeout time.Duration) ChatService {
	return &chatService{
		searchService:     searchService,
		assembler:         assembler,
		registry:          registry,
		topK:              topK,
		completionTimeout: completionTimeout,
		persistTimeout:    persistTimeout,
	}
}

func (s *chatService) Generate(ctx context.Context, sess *conversation.Session, query string, onDelta func(delta string) error) (*TurnResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	provider, err := s.registry.Get(sess.Provider)
	if err != nil {
		return nil, err
	}

	ctx, err = sess.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.End()

	history := sess.Store.All()
	sess.Store.AppendUser(ctx, query)
	sess.SetState(model.StateUserAppended)
	log.Infof("[ChatService] turn started, session: %s, provider: %s, history: %d turns", sess.ID, provider.Name(), len(history))

	// 1. Retrieval
	sess.SetState(model.StateRetrieving)
	matches, err := s.searchService.Search(ctx, query, s.topK)
	if err != nil {
		if canceled(ctx) {
			return nil, fmt.Errorf("%w: %w", ErrTurnCanceled, err)
		}
		if errors.Is(err, embedding.ErrEmbeddingFailure) || errors.Is(err, embedding.ErrEmptyInput) {
			sess.SetState(model.StateEmbeddingFailed)
		} else {
			sess.SetState(model.StateRetrievalFailed)
		}
		log.Errorf("[ChatService] retrieval failed, session: %s, state: %s: %v", sess.ID, sess.State(), err)
		return nil, err
	}

	// 2. Prompt
	p, err := s.assembler.Build(history, query, matches)
	if err != nil {
		log.Errorf("[ChatService] prompt assembly failed, session: %s: %v", sess.ID, err)
		return nil, err
	}
	sess.SetState(model.StatePromptBuilt)
	log.Infof("[ChatService] prompt built, messages: %d, citations: %d", len(p.Messages), len(p.Citations))

	// 3. Completion
	streamCtx, cancel := withStageTimeout(ctx, s.completionTimeout)
	defer cancel()
	stream, err := provider.StreamCompletion(streamCtx, toLLMMessages(p.Messages), nil)
	if err != nil {
		if canceled(ctx) {
			return nil, fmt.Errorf("%w: %w", ErrTurnCanceled, err)
		}
		log.Errorf("[ChatService] open completion stream failed, session: %s: %v", sess.ID, err)
		return nil, err
	}
	sess.SetState(model.StateStreaming)

	answer, streamErr := llm.Collect(streamCtx, stream, onDelta)
	interrupted := false
	if streamErr != nil {
		switch {
		case canceled(ctx) || !errors.Is(streamErr, llm.ErrStreamInterrupted):
			log.Infof("[ChatService] turn canceled, session: %s, discarded %d bytes", sess.ID, len(answer))
			return nil, fmt.Errorf("%w: %w", ErrTurnCanceled, streamErr)
		case answer == "":
			log.Errorf("[ChatService] completion failed before any delta, session: %s: %v", sess.ID, streamErr)
			return nil, fmt.Errorf("%w: %w", llm.ErrCompletionFailure, streamErr)
		default:
			interrupted = true
			sess.SetState(model.StateStreamInterrupted)
			log.Warnf("[ChatService] stream interrupted, session: %s, keeping %d bytes: %v", sess.ID, len(answer), streamErr)
		}
	}

	// 4. Append and persist
	annotation := prompt.Annotation(p.Citations)
	result := &TurnResult{
		Answer:      answer,
		Text:        answer + annotation,
		Citations:   p.Citations,
		Interrupted: interrupted,
	}
	persistCtx, persistCancel := withStageTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer persistCancel()
	if _, err := sess.Store.AppendAssistant(persistCtx, result.Text, annotation, interrupted); err != nil {
		result.PersistenceErr = err
	}
	if !interrupted {
		sess.SetState(model.StateAssistantAppended)
	}
	log.Infof("[ChatService] turn finished, session: %s, answer: %d bytes, interrupted: %t", sess.ID, len(answer), interrupted)

	if interrupted {
		return result, streamErr
	}
	return result, nil
}

func canceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func toLLMMessages(messages []model.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
