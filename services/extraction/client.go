package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sahilchouksey/icm-reconcile/model"
)

// Service is the external structured-extraction service
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) error
	Status(ctx context.Context, jobID string) (*RemoteStatus, error)
	Result(ctx context.Context, jobID string) ([]byte, error)
}

// SubmitRequest is one sheet handed to the service
type SubmitRequest struct {
	JobID       string
	DocumentID  uint
	FileName    string
	ContentType string
	Content     []byte
	CallbackURL string
}

// RemoteStatus is the service's view of a job
type RemoteStatus struct {
	JobID  string                 `json:"job_id"`
	Status model.ExtractionStatus `json:"status"`
	Error  string                 `json:"error,omitempty"`
	Method string                 `json:"method,omitempty"`
}

// Client talks to the extraction service over HTTP
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new extraction service client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Submit posts a sheet for extraction
func (c *Client) Submit(ctx context.Context, sr SubmitRequest) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", sr.FileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(sr.Content); err != nil {
		return fmt.Errorf("failed to write file content: %w", err)
	}

	fields := map[string]string{
		"job_id":      sr.JobID,
		"document_id": fmt.Sprint(sr.DocumentID),
	}
	if sr.CallbackURL != "" {
		fields["callback_url"] = sr.CallbackURL
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extractions", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Status fetches the current state of a job
func (c *Client) Status(ctx context.Context, jobID string) (*RemoteStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/extractions/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status RemoteStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return &status, nil
}

// Result fetches the raw extraction payload of a finished job
func (c *Client) Result(ctx context.Context, jobID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/extractions/"+url.PathEscape(jobID)+"/result", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading result: %v", model.ErrTransient, err)
	}
	return data, nil
}

// HealthCheck checks if the extraction service is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// do sends a request and classifies failures. Network errors, 5xx and 429 are transient.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTransient, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: extraction service returned status %d: %s", model.ErrTransient, resp.StatusCode, string(bodyBytes))
	}
	return nil, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, string(bodyBytes))
}
