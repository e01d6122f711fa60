package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberchat-go/internal/config"
)

func pineconeServer(t *testing.T, status int, body string, check func(req pineconeQueryRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		var req pineconeQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPineconeQuery_KeepsRankingOrder(t *testing.T) {
	srv := pineconeServer(t, http.StatusOK, `{"matches":[
		{"id":"a","score":0.92,"metadata":{"video_title":"Phishing 101","text":"Le phishing consiste à...","video_url":"https://cyber.gouv.fr/phishing"}},
		{"id":"b","score":0.81,"metadata":{"video_title":"Mots de passe","text":"Un bon mot de passe...","video_url":"https://cyber.gouv.fr/mdp"}}
	]}`, func(req pineconeQueryRequest) {
		assert.Equal(t, 3, req.TopK)
		assert.True(t, req.IncludeMetadata)
		assert.Equal(t, []float32{0.5, 0.25}, req.Vector)
	})

	idx := NewPineconeIndex(config.VectorIndexConfig{APIKey: "pc-key", Host: srv.URL})
	matches, err := idx.Query(context.Background(), []float32{0.5, 0.25}, 3, true)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Phishing 101", matches[0].Title)
	assert.Equal(t, "https://cyber.gouv.fr/phishing", matches[0].SourceURL)
	assert.InDelta(t, 0.92, matches[0].Score, 1e-9)
	assert.Equal(t, "https://cyber.gouv.fr/mdp", matches[1].SourceURL)
}

func TestPineconeQuery_DropsMalformedMatch(t *testing.T) {
	srv := pineconeServer(t, http.StatusOK, `{"matches":[
		{"id":"a","score":0.9,"metadata":{"video_title":"Sans lien","text":"..."}},
		{"id":"b","score":0.8,"metadata":{"video_title":"T","text":"P","video_url":"https://u"}}
	]}`, nil)

	matches, err := NewPineconeIndex(config.VectorIndexConfig{APIKey: "pc-key", Host: srv.URL}).
		Query(context.Background(), []float32{1}, 3, true)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "https://u", matches[0].SourceURL)
}

func TestPineconeQuery_ProviderErrorIsRetrievalFailure(t *testing.T) {
	srv := pineconeServer(t, http.StatusOK, `{"matches":[],"error":"namespace not found"}`, nil)

	_, err := NewPineconeIndex(config.VectorIndexConfig{APIKey: "pc-key", Host: srv.URL}).
		Query(context.Background(), []float32{1}, 3, true)

	assert.ErrorIs(t, err, ErrRetrievalFailure)
	assert.Contains(t, err.Error(), "namespace not found")
}

func TestPineconeQuery_Non200(t *testing.T) {
	srv := pineconeServer(t, http.StatusUnauthorized, `{"message":"invalid api key"}`, nil)

	_, err := NewPineconeIndex(config.VectorIndexConfig{APIKey: "pc-key", Host: srv.URL}).
		Query(context.Background(), []float32{1}, 3, true)

	assert.ErrorIs(t, err, ErrRetrievalFailure)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestPineconeQuery_InvalidTopK(t *testing.T) {
	_, err := NewPineconeIndex(config.VectorIndexConfig{Host: "http://unused"}).Query(context.Background(), []float32{1}, 0, true)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestPineconeQuery_ResolvesHostOnce(t *testing.T) {
	data := pineconeServer(t, http.StatusOK, `{"matches":[]}`, nil)
	var describes atomic.Int32
	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		describes.Add(1)
		assert.Equal(t, "/indexes/anssi", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"anssi","host":"` + data.URL + `"}`))
	}))
	defer control.Close()

	idx := NewPineconeIndex(config.VectorIndexConfig{APIKey: "pc-key", IndexName: "anssi", ControlPlaneURL: control.URL})
	for i := 0; i < 2; i++ {
		matches, err := idx.Query(context.Background(), []float32{1}, 3, true)
		require.NoError(t, err)
		assert.Empty(t, matches)
	}
	assert.Equal(t, int32(1), describes.Load())
}
