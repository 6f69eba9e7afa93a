package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Metadata travels with every stored vector so query hits can be turned
// back into timestamped transcript text without a database round trip.
type Metadata struct {
	VideoID   string  `json:"video_id"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type Vector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is a scored query hit.
type Match struct {
	Text      string
	StartTime float64
	EndTime   float64
	Score     float64
}

// Index stores embedding vectors and finds the closest ones for a query
// vector, scoped to a single video.
type Index interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, values []float32, videoID string, topK int) ([]Match, error)
}

// Client talks to a Pinecone-compatible index over its REST API.
type Client struct {
	indexURL   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(indexURL, apiKey string) *Client {
	return &Client{
		indexURL: indexURL,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type upsertRequest struct {
	Vectors []Vector `json:"vectors"`
}

type queryRequest struct {
	Vector          []float32         `json:"vector"`
	TopK            int               `json:"topK"`
	Filter          map[string]string `json:"filter"`
	IncludeMetadata bool              `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string   `json:"id"`
		Score    float64  `json:"score"`
		Metadata Metadata `json:"metadata"`
	} `json:"matches"`
}

func (c *Client) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	var resp upsertResponse
	if err := c.post(ctx, "/vectors/upsert", upsertRequest{Vectors: vectors}, &resp); err != nil {
		return err
	}
	return nil
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

func (c *Client) Query(ctx context.Context, values []float32, videoID string, topK int) ([]Match, error) {
	req := queryRequest{
		Vector:          values,
		TopK:            topK,
		Filter:          map[string]string{"video_id": videoID},
		IncludeMetadata: true,
	}

	var resp queryResponse
	if err := c.post(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{
			Text:      m.Metadata.Text,
			StartTime: m.Metadata.StartTime,
			EndTime:   m.Metadata.EndTime,
			Score:     m.Score,
		})
	}
	return matches, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.indexURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector index returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
