// Package upstream opens progress streams against the document processing
// backend. Files are uploaded as multipart form data and the response body,
// a server-sent event stream, is handed to the stream controller as a
// ByteSource.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/stream"
)

const (
	defaultBaseURL = "http://localhost:8000"

	// maxErrorBody bounds how much of a non-200 response is kept for the error.
	maxErrorBody = 4 << 10
)

// Kind selects which upstream pass to run.
type Kind string

const (
	KindAnalysis  Kind = "analysis"
	KindIngestion Kind = "ingestion"
)

// ParseKind validates a pass kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAnalysis, KindIngestion:
		return k, nil
	default:
		return "", fmt.Errorf("unknown pass kind %q", s)
	}
}

func (k Kind) path() string {
	if k == KindIngestion {
		return "/ingest/"
	}
	return "/process-files"
}

// Item describes one file to upload.
type Item struct {
	ID        domain.EntityID `json:"id"`
	Name      string          `json:"name"`
	Path      string          `json:"path"`
	Size      int64           `json:"size,omitempty"`
	SourceURL string          `json:"sourceUrl,omitempty"`

	// Analysis is the result of an earlier analysis pass, forwarded to
	// ingestion untouched.
	Analysis json.RawMessage `json:"analysis,omitempty"`
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout bounds each upstream exchange, including the streamed body.
// Zero means no limit.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithChunkSize sets the read size for response bodies.
func WithChunkSize(n int) ClientOption {
	return func(c *Client) {
		c.chunkSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client uploads files to the processing backend and opens its event stream.
type Client struct {
	mu      sync.RWMutex
	baseURL string

	apiKey     string
	timeout    time.Duration
	chunkSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		chunkSize: stream.DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   c.timeout,
		}
	}
	return c
}

// BaseURL returns the current backend address.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL points subsequent passes at a new backend address. Streams
// already open are unaffected.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// Open uploads items and returns the response event stream.
func (c *Client) Open(ctx context.Context, kind Kind, items []Item) (stream.ByteSource, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to upload")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, kind, items))
	}()

	url := c.BaseURL() + kind.path()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, mw.FormDataContentType())

	c.logger.Debug("opening upstream stream",
		slog.String("kind", string(kind)),
		slog.String("url", url),
		slog.Int("items", len(items)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		pr.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		c.logger.Warn("unexpected upstream content type", slog.String("content_type", ct))
	}

	return stream.NewReaderSource(resp.Body, c.chunkSize), nil
}

// Opener returns a stream.Opener that resolves the pass ids to items with
// lookup and uploads them as a kind pass.
func (c *Client) Opener(kind Kind, lookup func([]domain.EntityID) ([]Item, error)) stream.Opener {
	return stream.OpenerFunc(func(ctx context.Context, ids []domain.EntityID) (stream.ByteSource, error) {
		items, err := lookup(ids)
		if err != nil {
			return nil, err
		}
		return c.Open(ctx, kind, items)
	})
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// writeForm streams the multipart body. Analysis passes pair each file with
// a file_ids field; ingestion passes send the item records as file_details.
func writeForm(mw *multipart.Writer, kind Kind, items []Item) error {
	for _, item := range items {
		if err := writeFile(mw, item); err != nil {
			return err
		}
		if kind == KindAnalysis {
			if err := mw.WriteField("file_ids", string(item.ID)); err != nil {
				return err
			}
		}
	}

	if kind == KindIngestion {
		details, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to marshal file details: %w", err)
		}
		if err := mw.WriteField("file_details", string(details)); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, item Item) error {
	if item.Path == "" {
		return fmt.Errorf("item %s has no path", item.ID)
	}
	f, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", item.ID, err)
	}
	defer f.Close()

	name := item.Name
	if name == "" {
		name = item.Path
	}
	part, err := mw.CreateFormFile("files", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to upload %s: %w", item.ID, err)
	}
	return nil
}
