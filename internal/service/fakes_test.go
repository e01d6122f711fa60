package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/embedding"
	"cyberchat-go/pkg/llm"
)

// fakeEmbedder blocks until its context ends when hang is set.
type fakeEmbedder struct {
	err   error
	hang  bool
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeIndex struct {
	matches []model.RetrievalMatch
	err     error
	hang    bool
	topK    int
}

func (f *fakeIndex) Query(ctx context.Context, _ []float32, topK int, _ bool) ([]model.RetrievalMatch, error) {
	f.topK = topK
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

// fakeProvider streams deltas, then fails with err if set.
// When gate is non-nil every stream waits on it before the first delta.
// With stall set the stream blocks after the last delta until its context ends.
type fakeProvider struct {
	name    string
	deltas  []string
	err     error
	stall   bool
	openErr error
	gate    chan struct{}
	started chan struct{}

	mu       sync.Mutex
	messages [][]llm.Message
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) StreamCompletion(ctx context.Context, messages []llm.Message, _ *llm.GenerationParams) (llm.Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.mu.Unlock()
	return &fakeStream{ctx: ctx, p: f}, nil
}

func (f *fakeProvider) lastMessages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

type fakeStream struct {
	ctx    context.Context
	p      *fakeProvider
	i      int
	waited bool
}

func (s *fakeStream) Recv() (string, error) {
	if !s.waited && s.p.gate != nil {
		s.waited = true
		if s.p.started != nil {
			close(s.p.started)
		}
		select {
		case <-s.p.gate:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if s.i < len(s.p.deltas) {
		d := s.p.deltas[s.i]
		s.i++
		return d, nil
	}
	if s.p.stall {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.p.err != nil {
		return "", s.p.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type memorySink struct {
	mu      sync.Mutex
	records []model.ChatRecord
	err     error
}

func (m *memorySink) Write(_ context.Context, rec model.ChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

var errEmbeddingDown = errors.Join(embedding.ErrEmbeddingFailure, errors.New("503 from embedding api"))
