// Package remote talks to the remote task service over its JSON HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kazz187/taskdesk/internal/task"
	"github.com/kazz187/taskdesk/pkg/cerr"
)

const (
	apiKeyHeader   = "X-API-Key"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each request. Zero means 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// Query narrows ListTasks. The zero Query asks for every open task.
type Query struct {
	IncludeDone bool
	Client      string
	Owner       string
	Status      string
}

func (q Query) IsZero() bool {
	return q == Query{}
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.IncludeDone {
		v.Set("include_done", "true")
	}
	if q.Client != "" {
		v.Set("client", q.Client)
	}
	if q.Owner != "" {
		v.Set("owner", q.Owner)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "remote-tasks",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !IsRetryable(err)
			},
		}),
	}
}

type listResponse struct {
	Tasks []task.Task `json:"tasks"`
}

func (c *Client) ListTasks(ctx context.Context, q Query) ([]task.Task, error) {
	path := "/api/tasks"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	tasks := make([]task.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		tasks = append(tasks, task.Normalize(t))
	}
	return tasks, nil
}

func (c *Client) Summary(ctx context.Context) (task.Summary, error) {
	var s task.Summary
	if err := c.do(ctx, http.MethodGet, "/api/tasks/summary", nil, &s); err != nil {
		return task.Summary{}, err
	}
	return s, nil
}

func (c *Client) CreateTask(ctx context.Context, t task.Task) error {
	return c.do(ctx, http.MethodPost, "/api/tasks", t, nil)
}

func (c *Client) PatchTask(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), fields, nil)
}

type ImportRequest struct {
	Tasks []task.Task `json:"tasks"`
	Merge bool        `json:"merge"`
}

func (c *Client) ImportTasks(ctx context.Context, tasks []task.Task, merge bool) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/import", ImportRequest{Tasks: tasks, Merge: merge}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return cerr.NewError(cerr.InvalidArgument, "failed to encode request", err)
		}
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, payload, out)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return cerr.NewError(cerr.Unavailable, "remote circuit open", err)
	default:
		return err
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return cerr.NewError(cerr.InvalidArgument, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return cerr.NewError(cerr.DeadlineExceeded, "remote timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return cerr.NewError(cerr.Canceled, "request canceled", err)
		}
		return cerr.NewError(cerr.Unavailable, "remote unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
		return cerr.NewError(cerr.FromHTTPStatus(resp.StatusCode), fmt.Sprintf("%s %s failed", method, path), statusErr)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cerr.NewError(cerr.DataLoss, "invalid response body", err)
	}
	return nil
}
