// Package extraction provides the client for the remote document data
// extraction service. The service is an opaque network collaborator: a
// call succeeds, fails, or times out, and every failure mode is treated
// the same way by the task queue.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docuflow/docuflow-api/internal/config"
	"github.com/google/uuid"
)

// ErrExtractionFailed is the root of all extraction call failures,
// including timeouts.
var ErrExtractionFailed = errors.New("extraction call failed")

// Request describes one extraction invocation.
type Request struct {
	AttachmentRef string    `json:"attachment_ref"`
	SourceTag     string    `json:"source_tag,omitempty"`
	DestTag       string    `json:"dest_tag,omitempty"`
	CorrelationID uuid.UUID `json:"correlation_id"`
}

// Result holds the extracted document data returned by the service.
type Result struct {
	Reference string          `json:"reference"`
	Data      json.RawMessage `json:"data"`
}

// Extractor is the capability the task queue and job facade depend on.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Client is the HTTP implementation of Extractor.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an extraction client with the configured hard
// timeout. The timeout counts toward the caller's attempt budget like
// any other failure.
func NewClient(cfg config.ExtractionConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "extraction_client"),
	}
}

// Extract invokes the remote extraction service for one attachment.
func (c *Client) Extract(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrExtractionFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExtractionFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID.String())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("extraction call failed",
			"correlation_id", req.CorrelationID,
			"elapsed", time.Since(start),
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for the error record.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("extraction call returned non-success status",
			"correlation_id", req.CorrelationID,
			"status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d: %s", ErrExtractionFailed, resp.StatusCode, snippet)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtractionFailed, err)
	}

	c.logger.Debug("extraction call succeeded",
		"correlation_id", req.CorrelationID,
		"elapsed", time.Since(start))

	return &result, nil
}
