// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434)
	BaseURL string

	// ConnectTimeout bounds dialing for every request (default: 30s)
	ConnectTimeout time.Duration

	// StreamReadTimeout is the longest a stream may go without receiving a
	// byte, including the wait for response headers (default: 120s)
	StreamReadTimeout time.Duration

	// RequestTimeout bounds a whole non-streaming request (default: 300s)
	RequestTimeout time.Duration

	// HealthTimeout bounds CheckHealth (default: 5s)
	HealthTimeout time.Duration

	Logger zerolog.Logger
}

// Defaults applied by NewClientWithConfig for zero values.
const (
	DefaultBaseURL           = "http://localhost:11434"
	DefaultConnectTimeout    = 30 * time.Second
	DefaultStreamReadTimeout = 120 * time.Second
	DefaultRequestTimeout    = 300 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
)

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           DefaultBaseURL,
		ConnectTimeout:    DefaultConnectTimeout,
		StreamReadTimeout: DefaultStreamReadTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		HealthTimeout:     DefaultHealthTimeout,
		Logger:            zerolog.Nop(),
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API. It is safe for
// concurrent use. No request is ever retried.
type Client struct {
	config *ClientConfig

	// httpClient carries the overall timeout for non-streaming calls.
	httpClient *http.Client
	// streamClient has no overall timeout; streams rely on the idle reader.
	streamClient *http.Client
	// pullClient waits indefinitely for headers; pulls can queue.
	pullClient *http.Client

	log zerolog.Logger
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// Fill in defaults for any zero values
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.StreamReadTimeout <= 0 {
		cfg.StreamReadTimeout = DefaultStreamReadTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}

	newTransport := func(headerTimeout time.Duration) *http.Transport {
		dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
		return &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
		}
	}

	return &Client{
		config:       &cfg,
		httpClient:   &http.Client{Transport: newTransport(0), Timeout: cfg.RequestTimeout},
		streamClient: &http.Client{Transport: newTransport(cfg.StreamReadTimeout)},
		pullClient:   &http.Client{Transport: newTransport(0)},
		log:          cfg.Logger.With().Str("component", "ollama").Logger(),
	}
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// GetConfig returns a copy of the client configuration.
func (c *Client) GetConfig() ClientConfig {
	return *c.config
}

func (c *Client) endpoint(path string) string {
	return c.config.BaseURL + path
}

// newJSONRequest builds a request with an optional JSON body.
func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// statusError turns a non-2xx response into a ClientError, preferring the
// error message from the body.
func statusError(resp *http.Response, endpoint, prefix string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		ce := upstreamError(endpoint, apiErr.Error)
		ce.StatusCode = resp.StatusCode
		return ce
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	return &ClientError{
		Type:       ErrTypeHTTP,
		Message:    prefix + msg,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
	}
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckHealth reports whether Ollama answers GET /api/tags with 200 within
// the health timeout. It never returns an error.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := c.newJSONRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Str("event", "OLLAMA_UNHEALTHY").Err(err).Send()
		return false
	}
	defer drainAndClose(resp.Body)
	return resp.StatusCode == http.StatusOK
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all installed models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	endpoint := c.endpoint("/api/tags")
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.requestErr(ctx, endpoint, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, endpoint, "Failed to fetch models: ")
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode model list", Endpoint: endpoint, Cause: err}
	}
	if result.Models == nil {
		result.Models = []ModelInfo{}
	}
	return result.Models, nil
}

// DeleteModel removes an installed model.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	endpoint := c.endpoint("/api/delete")
	req, err := c.newJSONRequest(ctx, http.MethodDelete, "/api/delete", modelNameRequest{Name: name})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.requestErr(ctx, endpoint, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp, endpoint, "Failed to delete model: ")
	}
	c.log.Info().Str("event", "MODEL_DELETED").Str("model", name).Send()
	return nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a non-streaming chat request and returns the reply text. The
// whole exchange is bounded by RequestTimeout.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	endpoint := c.endpoint("/api/chat")
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/api/chat", ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.requestErr(ctx, endpoint, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp, endpoint, "Ollama API error: ")
	}

	var result chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return "", requestTimeoutError(endpoint, c.config.RequestTimeout, err)
		}
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode chat response", Endpoint: endpoint, Cause: err}
	}
	if result.Error != "" {
		return "", upstreamError(endpoint, result.Error)
	}
	return result.Message.Content, nil
}

// ChatStream starts a streaming chat request. The returned stream must be
// closed. Errors before the first byte of the body (refused connection,
// header timeout, non-2xx status) are returned here.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message) (*ChatStream, error) {
	endpoint := c.endpoint("/api/chat")
	reqCtx, cancel := context.WithCancel(ctx)
	req, err := c.newJSONRequest(reqCtx, http.MethodPost, "/api/chat", ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	c.log.Debug().Str("event", "CHAT_STREAM_START").Str("model", model).Int("messages", len(messages)).Send()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, classifyDoErr(ctx, c.config.BaseURL, endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer drainAndClose(resp.Body)
		return nil, statusError(resp, endpoint, "Ollama API error: ")
	}

	return newChatStream(ctx, resp.Body, cancel, c.config.StreamReadTimeout, c.config.BaseURL, endpoint), nil
}

// PullModel starts downloading a model and returns its progress stream.
// There is no read timeout; cancel ctx to abort.
func (c *Client) PullModel(ctx context.Context, name string) (*PullStream, error) {
	endpoint := c.endpoint("/api/pull")
	reqCtx, cancel := context.WithCancel(ctx)
	req, err := c.newJSONRequest(reqCtx, http.MethodPost, "/api/pull", modelNameRequest{Name: name})
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.pullClient.Do(req)
	if err != nil {
		cancel()
		return nil, classifyDoErr(ctx, c.config.BaseURL, endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer drainAndClose(resp.Body)
		return nil, statusError(resp, endpoint, "Ollama API error: ")
	}

	c.log.Info().Str("event", "MODEL_PULL_START").Str("model", name).Send()
	return newPullStream(ctx, resp.Body, cancel, c.config.BaseURL, endpoint), nil
}

// requestErr classifies a failure of a non-streaming request.
func (c *Client) requestErr(ctx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isTimeout(err) {
		return requestTimeoutError(endpoint, c.config.RequestTimeout, err)
	}
	return transportError(c.config.BaseURL, endpoint, err)
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}

// errIdleTimeout marks a stream that went silent for too long.
var errIdleTimeout = errors.New("stream idle timeout")
