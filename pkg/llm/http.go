package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cyberchat-go/internal/config"
)

// openStream POSTs a JSON body and returns the response body once the provider answered 200.
func openStream(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}) (io.ReadCloser, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal chat request: %w", ErrCompletionFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: create chat request: %w", ErrCompletionFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call chat api: %w", ErrCompletionFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: chat api returned non-200 status: %s, body: %s", ErrCompletionFailure, resp.Status, strings.TrimSpace(string(bodyBytes)))
	}
	return resp.Body, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// defaultGeneration converts configured sampling values, skipping zero values.
func defaultGeneration(cfg config.LLMGenerationConfig) *GenerationParams {
	var gp GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

func pick(gen, fallback *GenerationParams) *GenerationParams {
	if gen != nil {
		return gen
	}
	return fallback
}
