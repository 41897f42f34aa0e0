// Package coach is an HTTP client for the external AI coach backend. It wraps
// the session RPCs, the fast-path evaluation endpoint, and the two SSE streams
// (reply chunks and preparation progress).
package coach

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultBaseURL = "https://coach.careerflow.internal/v1"
	userAgent      = "careerflow-practice/1.0"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is an HTTP client for the coach backend API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new coach API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession starts a new practice session.
func (c *Client) StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error) {
	var resp StartSessionResponse
	if err := c.post(ctx, "/interview/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("start session: %w",
			protocolErr("response missing session_id"))
	}
	return &resp, nil
}

// SendMessage persists one user turn. The reply text itself comes from the
// streaming path; this call only reports collected info and intent side
// effects.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	var resp SendMessageResponse
	path := fmt.Sprintf("/interview/sessions/%s/messages", url.PathEscape(req.SessionID))
	if err := c.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EndSession ends a session and returns the terminal feedback payload.
func (c *Client) EndSession(ctx context.Context, req *EndSessionRequest) (*EndSessionResponse, error) {
	var resp EndSessionResponse
	path := fmt.Sprintf("/interview/sessions/%s/end", url.PathEscape(req.SessionID))
	if err := c.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Evaluate runs the fast-path status/intent classification for a new user
// message. It is expected to return well before the reply stream finishes.
func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	var resp EvaluateResponse
	if err := c.post(ctx, "/interview/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamReply requests the assistant's next message as an SSE chunk stream
// and returns a channel of results. The channel is closed when the stream
// ends; an in-band error terminates it early.
func (c *Client) StreamReply(ctx context.Context, req *ReplyRequest) (<-chan ReplyResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interview/reply", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		if apiErr := ParseErrorResponse(respBody); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	out := make(chan ReplyResult)
	go c.replyReader(resp.Body, out)
	return out, nil
}

func (c *Client) replyReader(body io.ReadCloser, out chan<- ReplyResult) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	// Increase buffer size for potentially large chunks
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		data, ok := sseData(scanner.Text())
		if !ok {
			continue
		}

		if data == "[DONE]" {
			return
		}

		var chunk ReplyChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			out <- ReplyResult{Err: fmt.Errorf("failed to unmarshal chunk: %w", err)}
			return
		}

		out <- ReplyResult{Chunk: &chunk}
	}

	if err := scanner.Err(); err != nil {
		out <- ReplyResult{Err: fmt.Errorf("stream read error: %w", err)}
	}
}

// StreamPreparation opens the preparation progress stream for one dream-job
// query and returns a channel of progress events. The stream naturally ends
// with a terminal complete or error event; a transport drop before that
// simply closes the channel, which the progress reader converts into a
// synthesized connection-lost error.
func (c *Client) StreamPreparation(ctx context.Context, dreamJob string) (<-chan ProgressResult, error) {
	u := fmt.Sprintf("%s/preparation/stream?dream_job=%s", c.baseURL, url.QueryEscape(dreamJob))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		if apiErr := ParseErrorResponse(respBody); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	out := make(chan ProgressResult)
	go c.progressReader(resp.Body, out)
	return out, nil
}

func (c *Client) progressReader(body io.ReadCloser, out chan<- ProgressResult) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		data, ok := sseData(scanner.Text())
		if !ok {
			continue
		}

		var event wireProgressEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			out <- ProgressResult{Err: fmt.Errorf("failed to unmarshal progress event: %w", err)}
			return
		}

		canonical, err := event.toCanonical()
		if err != nil {
			out <- ProgressResult{Err: err}
			return
		}

		out <- ProgressResult{Event: canonical}
		if canonical.Step.Terminal() {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- ProgressResult{Err: fmt.Errorf("stream read error: %w", err)}
	}
}

// sseData extracts the payload of an SSE data line. Blank lines, comments,
// and event-name lines are skipped.
func sseData(line string) (string, bool) {
	if line == "" || !strings.HasPrefix(line, "data: ") {
		return "", false
	}
	return strings.TrimPrefix(line, "data: "), true
}

// post issues a JSON POST and decodes the response into result.
func (c *Client) post(ctx context.Context, path string, req, result any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if apiErr := ParseErrorResponse(respBody); apiErr != nil {
			return apiErr
		}
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", protocolErr(err.Error()))
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", userAgent)
}
