// Package supa is a thin client for the hosted platform's REST, RPC, auth
// and storage endpoints. Every call attaches the project's public API key
// plus a bearer token (the caller's access token when present, the public
// key otherwise), matching the platform's row-level-security model.
package supa

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
)

const defaultTimeout = 15 * time.Second

// Config holds connection settings for the platform project.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the platform over HTTP. Instances are immutable; a suspected
// stale transport is replaced wholesale via Reinit rather than mutated in
// place, so in-flight calls on the old handle cannot race a swap.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// New constructs a platform client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Reinit returns a fresh client with a brand-new transport handle. The
// receiver is left untouched.
func (c *Client) Reinit() *Client {
	return New(Config{BaseURL: c.baseURL, APIKey: c.apiKey, Timeout: c.timeout})
}

// BaseURL returns the configured project URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// From starts a query against a table.
func (c *Client) From(table string) *Query {
	return &Query{
		client: c,
		table:  table,
		params: url.Values{},
	}
}

// Rpc invokes a named server-side procedure with JSON args and decodes the
// result into out (pass nil to discard).
func (c *Client) Rpc(ctx context.Context, token, name string, args, out any) error {
	return c.doJSON(ctx, http.MethodPost, "/rest/v1/rpc/"+name, token, nil, args, out)
}

// doJSON performs a request against the REST surface. Non-2xx responses
// decode the platform's {message, code} envelope into an *APIError.
func (c *Client) doJSON(ctx context.Context, method, path, token string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req, token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// setAuthHeaders attaches the public key and bearer token. When the caller
// has no session the public key doubles as the bearer, which the platform
// treats as the anonymous role.
func (c *Client) setAuthHeaders(req *http.Request, token string) {
	req.Header.Set("apikey", c.apiKey)
	if strings.TrimSpace(token) == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Code    string `json:"code"`
		Error   string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = json.Unmarshal(raw, &envelope)
	msg := envelope.Message
	if msg == "" {
		msg = envelope.Msg
	}
	if msg == "" {
		msg = envelope.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{
		Status:  resp.StatusCode,
		Message: msg,
		Code:    strings.TrimSpace(envelope.Code),
	}
}
