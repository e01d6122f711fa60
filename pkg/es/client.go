// Package es builds the Elasticsearch client used as an alternative vector index.
package es

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"cyberchat-go/internal/config"
	"cyberchat-go/pkg/log"
)

// NewClient creates an Elasticsearch client from cfg.
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// EnsureArticleIndex creates the article index when it does not exist yet.
// dims must match the embedding model's output dimension.
func EnsureArticleIndex(client *elasticsearch.Client, esCfg config.ElasticsearchConfig, fields config.MetadataFields, dims int) error {
	indexName := esCfg.IndexName
	vectorField := esCfg.VectorField
	if vectorField == "" {
		vectorField = "vector"
	}
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("[Elasticsearch] checking index existence failed: %v", err)
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[Elasticsearch] index '%s' already exists", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index '%s': %d", indexName, res.StatusCode)
	}
	if dims <= 0 {
		return errors.New("cannot create article index without embedding dimensions")
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id":   { "type": "keyword" },
				%q: { "type": "text" },
				%q: { "type": "text" },
				%q: { "type": "keyword" },
				%q: {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, fields.Title, fields.Text, fields.URL, vectorField, dims)

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("[Elasticsearch] creating index '%s' failed: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[Elasticsearch] rejected index '%s' creation: %s", indexName, res.String())
		return errors.New("elasticsearch returned an error creating the index")
	}

	log.Infof("[Elasticsearch] index '%s' created", indexName)
	return nil
}
