// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package client talks to the capd HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/capd/internal/api"
	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/target"
)

// DefaultTimeout bounds a single request. Snapshots and stream shutdown
// can take a while, so it is generous.
const DefaultTimeout = 5 * time.Minute

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Command   string
	ExitCode  *int
	Output    []string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s: %s", e.Status, e.Code, e.Message)
	if e.Command != "" {
		fmt.Fprintf(&b, " (command %q", e.Command)
		if e.ExitCode != nil {
			fmt.Fprintf(&b, ", exit code %d", *e.ExitCode)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Client is safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	token string
	user  string
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates with a bearer token.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithUser names the caller on servers without tokens.
func WithUser(user string) Option { return func(c *Client) { c.user = user } }

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// New returns a client for the server at base, e.g. http://lab1:8080.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Targets lists the server's targets.
func (c *Client) Targets(ctx context.Context) ([]target.Info, error) {
	var out struct {
		Targets []target.Info `json:"targets"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/targets", nil, &out); err != nil {
		return nil, err
	}
	return out.Targets, nil
}

// Acquire takes ownership of a target.
func (c *Client) Acquire(ctx context.Context, id string) (target.Info, error) {
	var info target.Info
	err := c.doJSON(ctx, http.MethodPost, targetPath(id, "acquire"), nil, &info)
	return info, err
}

// Release gives a target up; force releases someone else's.
func (c *Client) Release(ctx context.Context, id string, force bool) (target.Info, error) {
	var info target.Info
	p := targetPath(id, "release")
	if force {
		p += "?force=" + strconv.FormatBool(force)
	}
	err := c.doJSON(ctx, http.MethodPost, p, nil, &info)
	return info, err
}

// List reports every capturer's state on a target.
func (c *Client) List(ctx context.Context, id string) (map[string]capture.State, error) {
	var out struct {
		Components map[string]capture.State `json:"components"`
	}
	if err := c.doJSON(ctx, http.MethodGet, targetPath(id, "capture/list"), nil, &out); err != nil {
		return nil, err
	}
	return out.Components, nil
}

// Inventory describes the capturers of a target.
func (c *Client) Inventory(ctx context.Context, id string) ([]capture.Descriptor, error) {
	var out struct {
		Capturers []capture.Descriptor `json:"capturers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, targetPath(id, "capture/inventory"), nil, &out); err != nil {
		return nil, err
	}
	return out.Capturers, nil
}

// Start begins a stream capture.
func (c *Client) Start(ctx context.Context, id, capturer string) error {
	return c.doJSON(ctx, http.MethodPut, targetPath(id, "capture/start"), api.CaptureRequest{Capturer: capturer}, nil)
}

// Output is what StopAndGet produced: a file to read from Body, or data.
type Output struct {
	FileName  string
	MediaType string
	Size      int64 // -1 when unknown
	Body      io.ReadCloser
	Data      map[string]any
}

// Close releases the file body, if any.
func (o *Output) Close() error {
	if o.Body == nil {
		return nil
	}
	return o.Body.Close()
}

// StopAndGet stops a stream or takes a snapshot. For file output the caller
// reads and closes Output.Body.
func (c *Client) StopAndGet(ctx context.Context, id, capturer string) (*Output, error) {
	res, err := c.do(ctx, http.MethodPut, targetPath(id, "capture/stop_and_get"), api.CaptureRequest{Capturer: capturer})
	if err != nil {
		return nil, err
	}
	if name := res.Header.Get(api.HeaderCaptureFile); name != "" {
		return &Output{
			FileName:  name,
			MediaType: res.Header.Get("Content-Type"),
			Size:      res.ContentLength,
			Body:      res.Body,
		}, nil
	}
	defer res.Body.Close()
	var data map[string]any
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Output{Size: -1, Data: data}, nil
}

func targetPath(id, rest string) string {
	return "/api/v1/targets/" + url.PathEscape(id) + "/" + rest
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	res, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends the request and turns non-2xx answers into *APIError. The
// caller closes the body of a successful response.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set(api.HeaderUser, c.user)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var er api.ErrorResponse
	if err := json.Unmarshal(raw, &er); err != nil || er.Code == "" {
		er.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(res.StatusCode), " ", "_"))
		er.Error = strings.TrimSpace(string(raw))
	}
	return nil, &APIError{
		Status:    res.StatusCode,
		Code:      er.Code,
		Message:   er.Error,
		RequestID: er.RequestID,
		Command:   er.Command,
		ExitCode:  er.ExitCode,
		Output:    er.Output,
	}
}

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
