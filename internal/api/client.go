// Package api is the HTTP surface of the agent service: the synchronous
// transcript fetch and the stream start call. Transport setup, TLS, and
// request signing belong to the caller, which supplies a pre-configured
// Doer.
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

	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SessionIDHeader carries the server-assigned session id on a stream
// response.
const SessionIDHeader = "X-Session-Id"

// Doer issues HTTP requests. Callers provide one with transport, TLS, and
// signing already configured.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the agent service.
type Client struct {
	baseURL string
	doer    Doer
	apiKey  string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey injects a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func New(baseURL string, doer Doer, opts ...Option) *Client {
	if doer == nil {
		doer = DefaultHTTPClient()
	}
	c := &Client{baseURL: baseURL, doer: doer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultHTTPClient is suitable for long-lived streaming responses.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout -- streaming responses can be long-lived
		Timeout: 0,
		// Don't follow redirects
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// FetchTranscript returns the server's full ordered message list for the
// session. This is the authoritative copy used by reconciliation and
// catch-up polling.
func (c *Client) FetchTranscript(ctx context.Context, sessionID string) ([]protocol.Message, error) {
	target := c.buildURL("/v1/sessions/" + url.PathEscape(sessionID) + "/messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	c.setHeaders(req, "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, classifyTransport("fetch transcript", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport("fetch transcript", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus("fetch transcript", resp.StatusCode, body)
	}

	var parsed struct {
		Messages []protocol.Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &CallError{Kind: ErrRemoteServer, Op: "fetch transcript", Err: fmt.Errorf("decode body: %w", err)}
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("messages", len(parsed.Messages)).
		Msg("fetched transcript")
	return parsed.Messages, nil
}

// StartStream opens a new streaming attempt carrying the full message list.
// An empty sessionID asks the server to create a session; the assigned id is
// returned alongside the live event stream. The caller owns closing the
// returned body.
func (c *Client) StartStream(ctx context.Context, sessionID string, msgs []protocol.Message) (io.ReadCloser, string, error) {
	payload, err := json.Marshal(struct {
		Messages []protocol.Message `json:"messages"`
	}{Messages: msgs})
	if err != nil {
		return nil, "", fmt.Errorf("encode stream request: %w", err)
	}

	path := "/v1/sessions/stream"
	if sessionID != "" {
		path = "/v1/sessions/" + url.PathEscape(sessionID) + "/stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build stream request: %w", err)
	}
	c.setHeaders(req, "text/event-stream")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, "", classifyTransport("start stream", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, "", classifyStatus("start stream", resp.StatusCode, body)
	}
	if !isEventStream(resp) {
		resp.Body.Close()
		return nil, "", &CallError{
			Kind: ErrRemoteServer,
			Op:   "start stream",
			Err:  fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")),
		}
	}

	assigned := resp.Header.Get(SessionIDHeader)
	if assigned == "" {
		assigned = sessionID
	}
	return resp.Body, assigned, nil
}

func (c *Client) buildURL(path string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		u = &url.URL{Scheme: "https", Host: c.baseURL}
	}
	// JoinPath keeps any path prefix carried by the base URL.
	return u.JoinPath(path).String()
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Accept", accept)
	// Streams must arrive uncompressed for incremental framing.
	req.Header.Del("Accept-Encoding")
	if c.apiKey != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func isEventStream(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
}
