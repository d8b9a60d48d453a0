package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xxxsen/docchat/internal/model"
)

const defaultQdrantCollection = "documents"

var errQdrantNotFound = errors.New("qdrant collection not found")

type QdrantConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	Collection     string `json:"collection"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// qdrantIndex talks to the Qdrant REST API. The collection is dropped on
// Clear and recreated by UpsertAll with the vector size of the incoming
// chunks. Qdrant has no multi-request transactions, so racing writers are
// only ordered by the time their requests reach the server.
type qdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

func init() {
	Register("qdrant", func(args interface{}, deps Deps) (Index, error) {
		cfg := &QdrantConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("qdrant url is required")
		}
		return NewQdrant(*cfg), nil
	})
}

func NewQdrant(cfg QdrantConfig) Index {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultQdrantCollection
	}
	return &qdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (q *qdrantIndex) Type() string {
	return "qdrant"
}

func (q *qdrantIndex) collectionURL() string {
	return q.url + "/collections/" + q.collection
}

func (q *qdrantIndex) Clear(ctx context.Context) error {
	err := q.do(ctx, http.MethodDelete, q.collectionURL(), nil, nil)
	if errors.Is(err, errQdrantNotFound) {
		return nil
	}
	return err
}

func (q *qdrantIndex) UpsertAll(ctx context.Context, chunks []model.Chunk) error {
	if err := q.Clear(ctx); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return err
	}
	points := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, map[string]any{
			"id":     uuid.NewString(),
			"vector": c.Embedding,
			"payload": map[string]any{
				"text":     c.Text,
				"source":   c.Source,
				"page":     c.Page,
				"position": c.Position,
			},
		})
	}
	return q.do(ctx, http.MethodPut, q.collectionURL()+"/points?wait=true", map[string]any{"points": points}, nil)
}

func (q *qdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err := q.do(ctx, http.MethodPut, q.collectionURL(), body, nil)
	var statusErr *qdrantStatusError
	if errors.As(err, &statusErr) && statusErr.code == http.StatusConflict {
		return nil
	}
	return err
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]model.ChunkMatch, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32 `json:"score"`
			Payload struct {
				Text   string `json:"text"`
				Source string `json:"source"`
				Page   int    `json:"page"`
			} `json:"payload"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/search", req, &resp)
	if errors.Is(err, errQdrantNotFound) {
		return []model.ChunkMatch{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.ChunkMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, toMatch(model.Chunk{Text: r.Payload.Text, Source: r.Payload.Source, Page: r.Payload.Page}, r.Score))
	}
	return out, nil
}

func (q *qdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

type qdrantStatusError struct {
	method string
	url    string
	code   int
	body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.code, e.body)
}

func (q *qdrantIndex) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errQdrantNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &qdrantStatusError{method: method, url: url, code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
