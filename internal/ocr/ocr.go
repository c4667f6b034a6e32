// Package ocr is the HTTP client of the document OCR service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/cardcapture/internal/logger"
)

// DefaultTimeout bounds one OCR request.
const DefaultTimeout = 30 * time.Second

// SeeThrough marks requests that carry illuminated window images.
const SeeThrough = "1"

// Request is the OCR request body.
type Request struct {
	SeeThroughFlag string `json:"seeThroughFlag"`
	File           File   `json:"file"`
}

// File holds transport-encoded images and their content digests, index aligned.
type File struct {
	Images []string `json:"images"`
	Tokens []string `json:"tokens"`
}

// Response is the OCR reply. Data is nil when the service recognized nothing.
type Response struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the response carries recognition data.
func (r *Response) HasData() bool {
	return r != nil && len(r.Data) > 0 && string(r.Data) != "null"
}

// APIError is a non-2xx reply of the OCR service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ocr: status %d: %s", e.StatusCode, e.Message)
}

// Callback receives the outcome of an asynchronous OCR call.
type Callback func(resp *Response, err error)

// Transport submits OCR requests asynchronously. done is called exactly once.
type Transport interface {
	Submit(ctx context.Context, req *Request, done Callback)
}

// Client posts OCR requests as JSON.
type Client struct {
	endpoint string
	http     *http.Client
	log      *logger.Logger
}

// NewClient creates a Client for endpoint. A non-positive timeout uses
// DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		log:      logger.Named("ocr"),
	}
}

// Recognize posts req and decodes the reply.
func (c *Client) Recognize(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ocr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}

	c.log.Debug().
		Dur("latency", time.Since(start)).
		Bool("has_data", out.HasData()).
		Msg("ocr request finished")
	return &out, nil
}

// Submit runs Recognize in the background and reports to done.
func (c *Client) Submit(ctx context.Context, req *Request, done Callback) {
	go func() {
		resp, err := c.Recognize(ctx, req)
		if err != nil {
			c.log.Warn().Err(err).Msg("ocr request failed")
		}
		done(resp, err)
	}()
}
