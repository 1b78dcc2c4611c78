// Package docdb is a thin REST client for the external metadata document
// store. The store speaks MongoDB query semantics over HTTP: aggregation
// pipelines, filtered retrieval, and counts, all encoded as relaxed extended
// JSON documents.
package docdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	errx "github.com/metachat-core-poc/server/internal/core/error"
	logx "github.com/metachat-core-poc/server/pkg/logger"
)

const maxErrorBody = 512

// Client calls the metadata store REST API.
type Client struct {
	baseURL    string
	database   string
	collection string
	apiKey     string
	httpClient *http.Client
}

// Config mirrors model.DocDBConfig without importing the agent packages.
type Config struct {
	BaseURL    string
	Database   string
	Collection string
	APIKey     string
	Timeout    time.Duration
}

// NewClient creates a metadata store client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("docdb base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		database:   cfg.Database,
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type aggregationRequest struct {
	Database   string `bson:"database"`
	Collection string `bson:"collection"`
	Pipeline   bson.A `bson:"pipeline"`
}

type findRequest struct {
	Database   string `bson:"database"`
	Collection string `bson:"collection"`
	Filter     bson.M `bson:"filter"`
	Projection bson.M `bson:"projection,omitempty"`
	Limit      int    `bson:"limit,omitempty"`
}

type countRequest struct {
	Database   string `bson:"database"`
	Collection string `bson:"collection"`
	Filter     bson.M `bson:"filter"`
}

type resultsResponse struct {
	Results []json.RawMessage `json:"results"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Aggregate runs an aggregation pipeline and returns the raw result documents.
func (c *Client) Aggregate(ctx context.Context, pipeline bson.A) ([]json.RawMessage, error) {
	req := aggregationRequest{
		Database:   c.database,
		Collection: c.collection,
		Pipeline:   pipeline,
	}
	var out resultsResponse
	if err := c.post(ctx, "/v1/aggregation", req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Find retrieves documents matching a filter, with optional projection and limit.
func (c *Client) Find(ctx context.Context, filter, projection bson.M, limit int) ([]json.RawMessage, error) {
	req := findRequest{
		Database:   c.database,
		Collection: c.collection,
		Filter:     filter,
		Projection: projection,
		Limit:      limit,
	}
	var out resultsResponse
	if err := c.post(ctx, "/v1/find", req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Count returns the number of documents matching a filter.
func (c *Client) Count(ctx context.Context, filter bson.M) (int64, error) {
	req := countRequest{
		Database:   c.database,
		Collection: c.collection,
		Filter:     filter,
	}
	var out countResponse
	if err := c.post(ctx, "/v1/count", req, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// post encodes the request document as relaxed extended JSON, issues the call,
// and decodes a JSON response body. Error taxonomy: encode, transport, HTTP
// status (with a body snippet), decode.
func (c *Client) post(ctx context.Context, path string, reqBody any, respBody any) error {
	payload, err := bson.MarshalExtJSON(reqBody, false, false)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errx.WrapDocDB(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logx.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("metadata store returned non-OK status")
		return errx.WrapDocDB(
			fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet))),
			resp.StatusCode,
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
