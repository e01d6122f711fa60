package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/es"
	"cyberchat-go/pkg/log"
)

// elasticIndex runs approximate kNN queries against a dense_vector field.
type elasticIndex struct {
	client      *elasticsearch.Client
	indexName   string
	vectorField string
	fields      config.MetadataFields
}

// NewElasticIndex creates an index client backed by Elasticsearch.
func NewElasticIndex(esCfg config.ElasticsearchConfig, cfg config.VectorIndexConfig) (Client, error) {
	client, err := es.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return NewElasticIndexWithClient(client, esCfg, cfg), nil
}

// NewElasticIndexWithClient wraps an existing client.
func NewElasticIndexWithClient(client *elasticsearch.Client, esCfg config.ElasticsearchConfig, cfg config.VectorIndexConfig) Client {
	vectorField := esCfg.VectorField
	if vectorField == "" {
		vectorField = "vector"
	}
	return &elasticIndex{
		client:      client,
		indexName:   esCfg.IndexName,
		vectorField: vectorField,
		fields:      withDefaults(cfg.Fields),
	}
}

func (e *elasticIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]model.RetrievalMatch, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          e.vectorField,
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
		},
		"size":    topK,
		"_source": includeMetadata,
	}
	if includeMetadata {
		esQuery["_source"] = map[string]interface{}{"excludes": []string{e.vectorField}}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("%w: encode es query: %w", ErrRetrievalFailure, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[Elasticsearch] search request failed: %v", err)
		return nil, fmt.Errorf("%w: elasticsearch search: %w", ErrRetrievalFailure, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[Elasticsearch] search returned an error, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("%w: elasticsearch returned %s", ErrRetrievalFailure, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string                 `json:"_id"`
				Score  float64                `json:"_score"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("%w: decode es response: %w", ErrRetrievalFailure, err)
	}

	hits := make([]rawHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, rawHit{id: h.ID, score: h.Score, metadata: h.Source})
	}
	matches := collectMatches("Elasticsearch", e.fields, hits)
	log.Infof("[Elasticsearch] knn returned %d hits, %d usable", len(esResponse.Hits.Hits), len(matches))
	return matches, nil
}
