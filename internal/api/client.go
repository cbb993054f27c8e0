package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/logger"
)

// Client is the typed HTTP client for the LUSIA Studio backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var (
	_ domain.ChatStreamer        = (*Client)(nil)
	_ domain.DocumentService     = (*Client)(nil)
	_ domain.ConversationService = (*Client)(nil)
)

// NewClient creates a backend client. baseURL should point at the API
// root, e.g. https://api.lusia.example/api/v1.
func NewClient(baseURL, apiKey string, timeoutSeconds int) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

// newRequest builds a request with auth and tracing headers applied
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	return req, nil
}

// do executes a request and decodes the JSON response into out
func (c *Client) do(req *http.Request, out any) error {
	log := logger.FromContext(req.Context()).With(
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Debug("failed to decode response body", zap.Error(err))
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// responseError turns a non-success response into an error carrying
// the backend's error text
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		return fmt.Errorf("server returned error: %s (status: %d)", detail.Detail, resp.StatusCode)
	}

	return fmt.Errorf("server returned error: %s (status: %d)", strings.TrimSpace(string(body)), resp.StatusCode)
}

// StreamMessage sends a chat message and returns the raw SSE body.
// The caller owns the returned body and must close it.
func (c *Client) StreamMessage(ctx context.Context, conversationID string, msg domain.SendMessageRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	path := fmt.Sprintf("/chat/conversations/%s/stream", url.PathEscape(conversationID))
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := responseError(resp)
		_ = resp.Body.Close()
		return nil, err
	}

	if resp.Body == nil {
		return nil, fmt.Errorf("stream response has no body")
	}

	logger.FromContext(ctx).Debug("chat stream opened",
		zap.String("conversation_id", conversationID))

	return resp.Body, nil
}

// GetJobStatus polls the processing status of a job
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}

	var status domain.JobStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListProcessing returns the current in-progress documents for the user
func (c *Client) ListProcessing(ctx context.Context) ([]domain.Artifact, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents/processing", nil)
	if err != nil {
		return nil, err
	}

	var artifacts []domain.Artifact
	if err := c.do(req, &artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// RetryArtifact re-enqueues a failed document and returns the fresh job
func (c *Client) RetryArtifact(ctx context.Context, artifactID string) (*domain.JobStatus, error) {
	path := fmt.Sprintf("/documents/%s/retry", url.PathEscape(artifactID))
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	var job domain.JobStatus
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetArtifact fetches the full artifact record
func (c *Client) GetArtifact(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/artifacts/"+url.PathEscape(artifactID), nil)
	if err != nil {
		return nil, err
	}

	var artifact domain.Artifact
	if err := c.do(req, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// UploadDocument uploads a raw document and enqueues its processing
// pipeline. Metadata travels in the x-upload-metadata header, the file
// name in x-file-name, matching the backend's upload contract.
func (c *Client) UploadDocument(ctx context.Context, file io.Reader, fileName, contentType string, meta UploadMetadata) (*domain.Artifact, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/documents/upload", file)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Upload-Metadata", url.QueryEscape(string(metaJSON)))
	req.Header.Set("X-File-Name", fileName)

	var artifact domain.Artifact
	if err := c.do(req, &artifact); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("document uploaded",
		zap.String("artifact_id", artifact.ID),
		zap.String("job_id", artifact.JobID))

	return &artifact, nil
}

// CreateConversation creates a new chat conversation
func (c *Client) CreateConversation(ctx context.Context, title string) (*domain.Conversation, error) {
	payload, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/conversations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var conversation domain.Conversation
	if err := c.do(req, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListConversations returns the user's conversations
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chat/conversations", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// ListMessages returns the stored transcript of a conversation
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	path := fmt.Sprintf("/chat/conversations/%s/messages", url.PathEscape(conversationID))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// DeleteConversation removes a conversation
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/chat/conversations/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
