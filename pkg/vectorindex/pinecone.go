package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
)

const pineconeAPIVersion = "2024-07"

// pineconeIndex is a REST client for a Pinecone serverless index.
// When no host is configured it is resolved once from the control plane by index name.
type pineconeIndex struct {
	cfg    config.VectorIndexConfig
	fields config.MetadataFields
	client *http.Client

	hostMu sync.Mutex
	host   string
}

// NewPineconeIndex creates a Pinecone index client.
func NewPineconeIndex(cfg config.VectorIndexConfig) Client {
	host := strings.TrimRight(cfg.Host, "/")
	if host != "" && !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}
	return &pineconeIndex{
		cfg:    cfg,
		fields: withDefaults(cfg.Fields),
		client: &http.Client{Timeout: config.Seconds(cfg.TimeoutSeconds, 15*time.Second)},
		host:   host,
	}
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string                 `json:"id"`
		Score    float64                `json:"score"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"matches"`
	Error   interface{} `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (p *pineconeIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]model.RetrievalMatch, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	host, err := p.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: includeMetadata,
		Namespace:       p.cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal query: %w", ErrRetrievalFailure, err)
	}

	var out pineconeQueryResponse
	status, err := p.doJSON(ctx, http.MethodPost, host+"/query", body, &out)
	if err != nil {
		log.Errorf("[Pinecone] query failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailure, err)
	}
	if out.Error != nil || status != http.StatusOK {
		log.Errorf("[Pinecone] query returned an error, status: %d, error: %v, message: %s", status, out.Error, out.Message)
		return nil, fmt.Errorf("%w: query failed: %s", ErrRetrievalFailure, describeError(status, out.Error, out.Message))
	}

	hits := make([]rawHit, 0, len(out.Matches))
	for _, m := range out.Matches {
		hits = append(hits, rawHit{id: m.ID, score: m.Score, metadata: m.Metadata})
	}
	matches := collectMatches("Pinecone", p.fields, hits)
	log.Infof("[Pinecone] query returned %d matches, %d usable", len(out.Matches), len(matches))
	return matches, nil
}

// resolveHost returns the data-plane host, describing the index once if it is not configured.
func (p *pineconeIndex) resolveHost(ctx context.Context) (string, error) {
	p.hostMu.Lock()
	defer p.hostMu.Unlock()
	if p.host != "" {
		return p.host, nil
	}
	if p.cfg.IndexName == "" {
		return "", fmt.Errorf("%w: neither index host nor index name configured", ErrRetrievalFailure)
	}

	var desc struct {
		Host string `json:"host"`
	}
	url := strings.TrimRight(p.cfg.ControlPlaneURL, "/") + "/indexes/" + p.cfg.IndexName
	status, err := p.doJSON(ctx, http.MethodGet, url, nil, &desc)
	if err != nil {
		return "", fmt.Errorf("%w: describe index: %w", ErrRetrievalFailure, err)
	}
	if status != http.StatusOK || desc.Host == "" {
		return "", fmt.Errorf("%w: describe index %q returned status %d", ErrRetrievalFailure, p.cfg.IndexName, status)
	}
	p.host = desc.Host
	if !strings.HasPrefix(p.host, "http") {
		p.host = "https://" + p.host
	}
	log.Infof("[Pinecone] resolved index '%s' host: %s", p.cfg.IndexName, p.host)
	return p.host, nil
}

// doJSON performs the request and decodes any JSON body into out, whatever the status.
func (p *pineconeIndex) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Api-Key", p.cfg.APIKey)
	req.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call index: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func describeError(status int, apiErr interface{}, message string) string {
	switch {
	case apiErr != nil && message != "":
		return fmt.Sprintf("%v (%s)", apiErr, message)
	case apiErr != nil:
		return fmt.Sprintf("%v", apiErr)
	case message != "":
		return fmt.Sprintf("status %d: %s", status, message)
	default:
		return fmt.Sprintf("status %d", status)
	}
}
