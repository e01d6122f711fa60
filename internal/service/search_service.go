// Package service contains the retrieval-augmented chat pipeline and session management.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/embedding"
	"cyberchat-go/pkg/log"
	"cyberchat-go/pkg/vectorindex"
)

// ErrEmptyQuery is returned for empty or whitespace-only query text.
var ErrEmptyQuery = errors.New("query is empty")

// SearchService performs semantic search: embed the query, then query the vector index.
type SearchService interface {
	// Search returns at most topK matches in the index's ranking order.
	// A topK of zero selects the configured default.
	Search(ctx context.Context, query string, topK int) ([]model.RetrievalMatch, error)
}

type searchService struct {
	embeddingClient embedding.Client
	index           vectorindex.Client
	defaultTopK     int
	embedTimeout    time.Duration
	queryTimeout    time.Duration
}

// NewSearchService creates a SearchService. Zero timeouts disable the stage deadline.
func NewSearchService(embeddingClient embedding.Client, index vectorindex.Client, defaultTopK int, embedTimeout, queryTimeout time.Duration) SearchService {
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &searchService{
		embeddingClient: embeddingClient,
		index:           index,
		defaultTopK:     defaultTopK,
		embedTimeout:    embedTimeout,
		queryTimeout:    queryTimeout,
	}
}

func (s *searchService) Search(ctx context.Context, query string, topK int) ([]model.RetrievalMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK == 0 {
		topK = s.defaultTopK
	}
	log.Infof("[SearchService] semantic search, query: '%s', topK: %d", query, topK)

	start := time.Now()
	embedCtx, cancel := withStageTimeout(ctx, s.embedTimeout)
	vector, err := s.embeddingClient.CreateEmbedding(embedCtx, query)
	cancel()
	if err != nil {
		log.Errorf("[SearchService] embedding query failed: %v", err)
		if !errors.Is(err, embedding.ErrEmbeddingFailure) && !errors.Is(err, embedding.ErrEmptyInput) {
			err = fmt.Errorf("%w: %w", embedding.ErrEmbeddingFailure, err)
		}
		return nil, err
	}
	log.Infof("[SearchService] query embedded, dimensions: %d, took: %s", len(vector), time.Since(start))

	start = time.Now()
	queryCtx, cancel := withStageTimeout(ctx, s.queryTimeout)
	matches, err := s.index.Query(queryCtx, vector, topK, true)
	cancel()
	if err != nil {
		log.Errorf("[SearchService] vector index query failed: %v", err)
		if !errors.Is(err, vectorindex.ErrRetrievalFailure) && !errors.Is(err, vectorindex.ErrInvalidTopK) {
			err = fmt.Errorf("%w: %w", vectorindex.ErrRetrievalFailure, err)
		}
		return nil, err
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	log.Infof("[SearchService] retrieved %d matches, took: %s", len(matches), time.Since(start))
	return matches, nil
}

func withStageTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
