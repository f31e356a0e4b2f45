package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/pkg/utils"
)

// Wire field names of the embedding service.
const (
	InputField     = "input"
	DataField      = "data"
	EmbeddingField = "embedding"
)

// DefaultEndpoint and DefaultBatchSize match a locally served OpenAI-style embeddings API.
const (
	DefaultEndpoint  = "http://localhost:8001/v1/embeddings"
	DefaultBatchSize = 32
)

// HTTPEmbedder calls a remote embedding service. Texts are sent in consecutive
// batches, one synchronous POST per batch, in order.
type HTTPEmbedder struct {
	endpoint  string
	batchSize int
	extra     map[string]any
	timeout   time.Duration
	client    *http.Client
	logger    *zap.Logger

	mu         sync.Mutex
	dimensions int
}

// HTTPOption configures an HTTPEmbedder.
type HTTPOption func(*HTTPEmbedder)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEmbedder) {
		if c != nil {
			e.client = c
		}
	}
}

// WithExtraParams merges params into every request body.
func WithExtraParams(params map[string]any) HTTPOption {
	return func(e *HTTPEmbedder) {
		for k, v := range params {
			e.extra[k] = v
		}
	}
}

// WithRequestTimeout bounds each batch request. Zero means no timeout.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEmbedder) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) HTTPOption {
	return func(e *HTTPEmbedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewHTTPEmbedder returns a client for endpoint sending at most batchSize texts per request.
func NewHTTPEmbedder(endpoint string, batchSize int, opts ...HTTPOption) (*HTTPEmbedder, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid embedding endpoint %q", endpoint)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	e := &HTTPEmbedder{
		endpoint:  endpoint,
		batchSize: batchSize,
		extra:     make(map[string]any),
		client:    http.DefaultClient,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, ok := e.extra[InputField]; ok {
		return nil, fmt.Errorf("extra params must not set %q", InputField)
	}
	return e, nil
}

// Embed returns the embedding of a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts preserving length and order. Empty input makes no call.
// The first failing batch aborts the call and no vectors are returned.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	for batch, start := 1, 0; start < len(texts); batch, start = batch+1, start+e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, batch, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if len(out[0]) > 0 {
		e.mu.Lock()
		e.dimensions = len(out[0])
		e.mu.Unlock()
	}
	return out, nil
}

func (e *HTTPEmbedder) embedBatch(ctx context.Context, batch int, texts []string) ([][]float32, error) {
	payload := make(map[string]any, len(e.extra)+1)
	for k, v := range e.extra {
		payload[k] = v
	}
	payload[InputField] = texts
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ServiceError{Endpoint: e.endpoint, Err: fmt.Errorf("encode request: %w", err)}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ServiceError{Endpoint: e.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	e.logger.Debug("sending embedding request",
		zap.String("endpoint", e.endpoint), zap.Int("batch", batch), zap.Int("texts", len(texts)))
	started := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Endpoint: e.endpoint, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Endpoint: e.endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{
			Endpoint:   e.endpoint,
			StatusCode: resp.StatusCode,
			Err:        errors.New(utils.Truncate(string(bytes.TrimSpace(data)), 200)),
		}
	}
	e.logger.Debug("received embedding response",
		zap.Int("batch", batch), zap.Int("texts", len(texts)), zap.Duration("elapsed", time.Since(started)))

	vecs, err := e.decodeResponse(batch, data)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, &ResponseCountError{Batch: batch, Expected: len(texts), Got: len(vecs)}
	}
	return vecs, nil
}

// decodeResponse extracts the vectors of one batch response. A missing data field
// decodes to no vectors and is reported by the count check.
func (e *HTTPEmbedder) decodeResponse(batch int, data []byte) ([][]float32, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &ServiceError{Endpoint: e.endpoint, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	rawList, ok := envelope[DataField]
	if !ok || isJSONNull(rawList) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawList, &items); err != nil {
		return nil, &ResponseFormatError{Batch: batch, Item: -1, Reason: fmt.Sprintf("%q is not a list", DataField)}
	}
	vecs := make([][]float32, len(items))
	for i, item := range items {
		vec, reason := decodeItem(item)
		if reason != "" {
			return nil, &ResponseFormatError{Batch: batch, Item: i, Reason: reason}
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// decodeItem accepts a bare numeric array or an object with the array under "embedding".
func decodeItem(item json.RawMessage) ([]float32, string) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return nil, "empty item"
	}
	switch item[0] {
	case '[':
		var vec []float32
		if err := json.Unmarshal(item, &vec); err != nil {
			return nil, "vector must be a list of numbers"
		}
		return vec, ""
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, "malformed object"
		}
		raw, ok := obj[EmbeddingField]
		if !ok {
			return nil, fmt.Sprintf("object has no %q field", EmbeddingField)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '[' {
			return nil, fmt.Sprintf("%q must be a list of numbers", EmbeddingField)
		}
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Sprintf("%q must be a list of numbers", EmbeddingField)
		}
		return vec, ""
	default:
		return nil, "item is neither a vector nor an object"
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// Dimensions returns the vector length observed in the last successful call, or 0.
func (e *HTTPEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimensions
}

// Endpoint returns the configured service URL.
func (e *HTTPEmbedder) Endpoint() string {
	return e.endpoint
}

// Close is a no-op; the HTTP client is shared.
func (e *HTTPEmbedder) Close() error {
	return nil
}
