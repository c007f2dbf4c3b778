package search

import (
	"bytes"
	"context"
	"encoding/json"
	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexMovement indexes a completed stock movement in Elasticsearch
func (c *ElasticClient) IndexMovement(ctx context.Context, movement *models.StockMovement, order *models.Order) error {
	log.Info().Str("movement_id", movement.ID.String()).Msg("indexing stock movement")

	// Unique identifiers are stored as a JSON array column
	var identifiers []string
	if movement.UniqueIdentifiers != nil {
		if err := json.Unmarshal(movement.UniqueIdentifiers, &identifiers); err != nil {
			log.Error().Err(err).Msg("could not unmarshal movement identifiers")
			return errors.Wrap(err, "failed to unmarshal movement identifiers")
		}
	}

	movementDoc := map[string]interface{}{
		"id":                 movement.ID.String(),
		"session_id":         movement.SessionID.String(),
		"invoice_number":     movement.InvoiceNumber,
		"movement_type":      movement.MovementType,
		"status":             movement.Status,
		"design":             movement.Design,
		"lot_number":         movement.LotNumber,
		"quantity":           movement.Quantity,
		"unique_identifiers": identifiers,
		"image_url":          movement.ImageURL,
		"created_at":         movement.CreatedAt,
	}

	if order != nil {
		movementDoc["order_id"] = order.ID.String()
		movementDoc["order_number"] = order.OrderNumber
		movementDoc["customer_name"] = order.CustomerName
	}

	docJson, err := json.Marshal(movementDoc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal movement document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: movement.ID.String(),
		Body:       bytes.NewReader(docJson),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("movement_id", movement.ID.String()).Msg("stock movement indexed successfully")
	return nil
}

// SearchMovements searches stock movements with the given criteria
func (c *ElasticClient) SearchMovements(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}
