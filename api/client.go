package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/askdb/askdb"
)

// Interface compliance checks.
var (
	_ askdb.Streamer            = (*Client)(nil)
	_ askdb.Uploader            = (*Client)(nil)
	_ askdb.ConversationService = (*Client)(nil)
)

// Client talks to the assistant backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The default client has no
// timeout, which the streaming endpoint requires; bound individual calls
// with a context instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the backend at baseURL. An empty baseURL falls
// back to the local development default.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OpenTurn posts one turn to the streaming endpoint and returns a
// [askdb.Stream] that decodes the SSE response incrementally. Cancelling ctx
// aborts the underlying connection; no further events are delivered after
// that.
func (c *Client) OpenTurn(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	body, err := json.Marshal(apiTurnRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.parseHTTPError(resp)
	}

	return newStream(ctx, resp.Body), nil
}

// ListConversations fetches the conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]askdb.Conversation, error) {
	var dtos []apiConversation
	if err := c.do(ctx, http.MethodGet, conversationsPath, nil, &dtos); err != nil {
		return nil, err
	}
	convs := make([]askdb.Conversation, len(dtos))
	for i, d := range dtos {
		convs[i] = d.toDomain()
	}
	return convs, nil
}

// GetConversation fetches the full message list for a conversation. A 404 or
// 410 response means the server no longer knows the id and is reported as
// [askdb.ErrConversationNotFound] so the caller can invalidate it locally.
func (c *Client) GetConversation(ctx context.Context, id string) ([]askdb.Message, error) {
	var detail apiConversationDetail
	if err := c.do(ctx, http.MethodGet, conversationsPath+"/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	msgs := make([]askdb.Message, len(detail.Messages))
	for i, m := range detail.Messages {
		msgs[i] = m.toDomain()
	}
	return msgs, nil
}

// DeleteConversation deletes a single conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, conversationsPath+"/"+url.PathEscape(id), nil, nil)
}

// DeleteAllConversations deletes every conversation and returns the server's
// deleted count.
func (c *Client) DeleteAllConversations(ctx context.Context) (int, error) {
	var out apiDeleted
	if err := c.do(ctx, http.MethodDelete, conversationsPath, nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

// RenameConversation updates a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	return c.do(ctx, http.MethodPatch, conversationsPath+"/"+url.PathEscape(id), apiRename{Title: title}, nil)
}

// UploadFile uploads one local file as a multipart form and returns the
// server's attachment handle. The media type is inferred from the filename on
// the client side; the server stores whatever bytes it received.
func (c *Client) UploadFile(ctx context.Context, path string) (askdb.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: open attachment: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: read attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+filesPath, &buf)
	if err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return askdb.Attachment{}, c.parseHTTPError(resp)
	}

	var out apiFileUpload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return askdb.Attachment{}, fmt.Errorf("api: decode upload response: %w", err)
	}
	return askdb.Attachment{
		ID:        out.FileID,
		Name:      out.Filename,
		MediaType: mediaTypeFor(path),
		Size:      out.Size,
	}, nil
}

// do issues a JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseHTTPError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) parseHTTPError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("api: HTTP %d: %w", resp.StatusCode, askdb.ErrConversationNotFound)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("api: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("api: HTTP %d: %s", resp.StatusCode, apiErr.Error)
}

func mediaTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
