// Package qdrant provides a minimal Qdrant HTTP client used as the chunk index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// Client is a minimal Qdrant HTTP client bound to a single collection.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

// New constructs a Qdrant client with baseURL, optional apiKey and the
// collection all operations target.
func New(baseURL, apiKey, collection string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// EnsureCollection creates the collection if it does not exist and installs
// keyword payload indexes for the fields retrieval filters on.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int, distance string) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection), nil)
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	payload := map[string]any{
		"vectors": map[string]any{"size": vectorSize, "distance": distance},
	}
	b, _ := json.Marshal(payload)
	req, _ = http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection), bytes.NewReader(b))
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err = c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant ensure create status %d", resp.StatusCode)
	}
	for _, field := range []string{"resume_id", "content_type", "file_format"} {
		if err := c.ensureIndex(ctx, field); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, field string) error {
	body := map[string]any{"field_name": field, "field_schema": "keyword"}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/index", c.baseURL, c.collection), bytes.NewReader(b))
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	// 409 means the index already exists.
	if resp.StatusCode != http.StatusConflict && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("qdrant index %s status %d", field, resp.StatusCode)
	}
	return nil
}

// UpsertChunks inserts or replaces points. vectors, payloads and ids must be
// the same length; ids are stable so force re-ingest overwrites in place.
func (c *Client) UpsertChunks(ctx context.Context, vectors [][]float32, payloads []map[string]any, ids []string) error {
	if len(vectors) != len(payloads) || len(vectors) != len(ids) {
		return fmt.Errorf("vectors, payloads and ids length mismatch")
	}
	points := make([]map[string]any, 0, len(vectors))
	for i := range vectors {
		points = append(points, map[string]any{
			"id":      ids[i],
			"vector":  vectors[i],
			"payload": payloads[i],
		})
	}
	body := map[string]any{"points": points}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection), bytes.NewReader(b))
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	return nil
}

// Search returns top-k nearest points for a given vector. filter, when
// non-empty, becomes a must-match keyword condition per field.
func (c *Client) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]domain.ScoredChunk, error) {
	body := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for k, v := range filter {
			must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
		}
		body["filter"] = map[string]any{"must": must}
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection), bytes.NewReader(b))
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status %d", resp.StatusCode)
	}
	var out struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	hits := make([]domain.ScoredChunk, 0, len(out.Result))
	for _, r := range out.Result {
		hits = append(hits, domain.ScoredChunk{Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// DeleteByResumeID removes all points whose payload carries the resume id.
func (c *Client) DeleteByResumeID(ctx context.Context, resumeID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "resume_id", "match": map[string]any{"value": resumeID}},
			},
		},
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection), bytes.NewReader(b))
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant delete status %d", resp.StatusCode)
	}
	return nil
}

// Healthz pings the server root for readiness checks.
func (c *Client) Healthz(ctx context.Context) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant readyz status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}
