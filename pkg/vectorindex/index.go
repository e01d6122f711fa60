// Package vectorindex queries a remote nearest-neighbour index for passages.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
)

var (
	// ErrRetrievalFailure wraps index-side errors, including provider-reported query errors.
	ErrRetrievalFailure = errors.New("retrieval failure")
	// ErrMalformedMatch marks a single match missing required metadata. Such matches are dropped.
	ErrMalformedMatch = errors.New("malformed match")
	// ErrInvalidTopK is returned for a non-positive topK.
	ErrInvalidTopK = errors.New("topK must be a positive integer")
)

// Client queries a vector index. Matches come back in the index's own ranking order.
type Client interface {
	Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]model.RetrievalMatch, error)
}

// NewClient builds the index client selected by cfg.Provider.
func NewClient(cfg config.VectorIndexConfig, esCfg config.ElasticsearchConfig) (Client, error) {
	switch cfg.Provider {
	case "", "pinecone":
		return NewPineconeIndex(cfg), nil
	case "elasticsearch":
		return NewElasticIndex(esCfg, cfg)
	default:
		return nil, fmt.Errorf("unknown vector index provider %q", cfg.Provider)
	}
}

// extractMatch reads the three required metadata fields from a raw match.
func extractMatch(fields config.MetadataFields, metadata map[string]interface{}, score float64) (model.RetrievalMatch, error) {
	title, okTitle := stringField(metadata, fields.Title)
	text, okText := stringField(metadata, fields.Text)
	url, okURL := stringField(metadata, fields.URL)
	if !okTitle || !okText || !okURL {
		return model.RetrievalMatch{}, fmt.Errorf("%w: missing one of %q, %q, %q", ErrMalformedMatch, fields.Title, fields.Text, fields.URL)
	}
	return model.RetrievalMatch{Title: title, Passage: text, SourceURL: url, Score: score}, nil
}

func stringField(metadata map[string]interface{}, key string) (string, bool) {
	v, ok := metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// collectMatches converts raw hits, dropping malformed ones.
func collectMatches(component string, fields config.MetadataFields, hits []rawHit) []model.RetrievalMatch {
	matches := make([]model.RetrievalMatch, 0, len(hits))
	for _, h := range hits {
		m, err := extractMatch(fields, h.metadata, h.score)
		if err != nil {
			log.Warnw("["+component+"] dropping match", "id", h.id, "error", err)
			continue
		}
		matches = append(matches, m)
	}
	return matches
}

type rawHit struct {
	id       string
	score    float64
	metadata map[string]interface{}
}

func withDefaults(fields config.MetadataFields) config.MetadataFields {
	if fields.Title == "" {
		fields.Title = "video_title"
	}
	if fields.Text == "" {
		fields.Text = "text"
	}
	if fields.URL == "" {
		fields.URL = "video_url"
	}
	return fields
}
