package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberchat-go/internal/config"
)

func sseServer(t *testing.T, check func(r *http.Request), lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_StreamsDeltas(t *testing.T) {
	var got openAIChatRequest
	srv := sseServer(t, func(r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	},
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"Le "}}]}`,
		`data: {"choices":[{"delta":{"content":"phishing"}}]}`,
		`data: [DONE]`,
	)

	p := NewOpenAIProvider("groq", config.ProviderConfig{
		APIKey: "sk-test", BaseURL: srv.URL, Model: "llama3-70b-8192",
		Generation: config.LLMGenerationConfig{Temperature: 0.2},
	}, 5*time.Second)
	stream, err := p.StreamCompletion(context.Background(), []Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "Qu'est-ce que le phishing ?"},
	}, nil)
	require.NoError(t, err)

	text, err := CollectText(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "Le phishing", text)
	assert.True(t, got.Stream)
	assert.Equal(t, "llama3-70b-8192", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "groq", p.Name())
}

func TestOpenAIProvider_Non200IsCompletionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", config.ProviderConfig{BaseURL: srv.URL, Model: "gpt-4o"}, 5*time.Second)
	_, err := p.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailure)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAIProvider_ErrorChunkInterrupts(t *testing.T) {
	srv := sseServer(t, nil,
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
		`data: {"error":{"message":"rate limited"}}`,
	)
	p := NewOpenAIProvider("openai", config.ProviderConfig{BaseURL: srv.URL}, 5*time.Second)
	stream, err := p.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)

	text, err := CollectText(context.Background(), stream)
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.Equal(t, "partial", text)
}

func TestAnthropicProvider_LiftsSystemMessage(t *testing.T) {
	var got anthropicRequest
	srv := sseServer(t, func(r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	},
		"event: message_start\ndata: {\"type\":\"message_start\"}",
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Bonjour"}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" !"}}`,
		`data: {"type":"message_stop"}`,
	)

	p := NewAnthropicProvider("anthropic", config.ProviderConfig{APIKey: "key", BaseURL: srv.URL, Model: "claude"}, 5*time.Second)
	stream, err := p.StreamCompletion(context.Background(), []Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "salut"},
	}, nil)
	require.NoError(t, err)

	text, err := CollectText(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", text)
	assert.Equal(t, "persona", got.System)
	assert.Equal(t, []Message{{Role: "user", Content: "salut"}}, got.Messages)
	assert.Equal(t, anthropicDefaultMaxTokens, got.MaxTokens)
}

func TestOllamaProvider_NDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_, _ = io.WriteString(w, `{"message":{"content":"un"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"content":" deux"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider("ollama", config.ProviderConfig{BaseURL: srv.URL, Model: "llama3"}, 5*time.Second)
	stream, err := p.StreamCompletion(context.Background(), []Message{{Role: "user", Content: "compte"}}, nil)
	require.NoError(t, err)

	text, err := CollectText(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "un deux", text)
}

func TestToGeminiContents(t *testing.T) {
	contents, system := toGeminiContents([]Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	})

	assert.Equal(t, "persona", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "a1", contents[1].Parts[0].Text)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(config.LLMConfig{
		Active: "groq",
		Providers: map[string]config.ProviderConfig{
			"openai": {Type: "openai", Model: "gpt-4o"},
			"groq":   {Type: "openai", BaseURL: "https://api.groq.com/openai/v1", Model: "llama3"},
			"unused": {},
		},
	})
	require.NoError(t, err)

	p, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())
	assert.Equal(t, []string{"groq", "openai"}, r.Names())

	_, err = r.Get("mistral")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewRegistry(config.LLMConfig{Active: "openai", Providers: map[string]config.ProviderConfig{
		"openai": {Type: "cohere"},
	}})
	assert.Error(t, err)
}

func TestProviders_BodyEndingWithoutEndMarkerInterrupts(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		ndjson  bool
		open    func(url string) Provider
		partial string
	}{
		{
			name: "openai without [DONE]",
			lines: []string{
				`data: {"choices":[{"delta":{"content":"Le phishing"}}]}`,
				`data: {"choices":[{"delta":{"content":" est"}}]}`,
			},
			open: func(url string) Provider {
				return NewOpenAIProvider("openai", config.ProviderConfig{BaseURL: url}, 5*time.Second)
			},
			partial: "Le phishing est",
		},
		{
			name: "anthropic without message_stop",
			lines: []string{
				`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Le phishing "}}`,
			},
			open: func(url string) Provider {
				return NewAnthropicProvider("anthropic", config.ProviderConfig{BaseURL: url}, 5*time.Second)
			},
			partial: "Le phishing ",
		},
		{
			name: "ollama without done",
			lines: []string{
				`{"message":{"content":"un"},"done":false}`,
				`{"message":{"content":" deux"},"done":false}`,
			},
			ndjson: true,
			open: func(url string) Provider {
				return NewOllamaProvider("ollama", config.ProviderConfig{BaseURL: url}, 5*time.Second)
			},
			partial: "un deux",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srv *httptest.Server
			if tt.ndjson {
				srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					for _, l := range tt.lines {
						_, _ = io.WriteString(w, l+"\n")
					}
				}))
				t.Cleanup(srv.Close)
			} else {
				srv = sseServer(t, nil, tt.lines...)
			}

			stream, err := tt.open(srv.URL).StreamCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
			require.NoError(t, err)

			text, err := CollectText(context.Background(), stream)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStreamInterrupted)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.Equal(t, tt.partial, text)

			var interrupted *StreamInterruptedError
			require.ErrorAs(t, err, &interrupted)
			assert.Equal(t, tt.partial, interrupted.Partial)
		})
	}
}
