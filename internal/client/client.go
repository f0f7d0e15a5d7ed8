// Package client provides a typed HTTP client for the croft API.
//
// Every call takes a context; the configured request timeout applies on top
// of whatever deadline the caller carries. Responses are decoded into the
// shared model types so callers never touch raw JSON.
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

	"github.com/xtxerr/croft/internal/model"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrEmptyBaseURL = errors.New("client base URL is empty")
)

// APIError is a non-2xx response from the server, carrying the detail
// string the API returned.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8000",
		RequestTimeout: 30 * time.Second,
	}
}

// Client talks to a croft server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// =============================================================================
// Response Types
// =============================================================================

// ServiceInfo is the root endpoint banner.
type ServiceInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// IngestResult is the outcome of submitting a batch. Small batches are stored
// inline and come back as rows; large ones are queued and come back as a task.
type IngestResult struct {
	Async   bool
	Stored  []model.SensorReading
	TaskID  string
	Status  string
	Message string
}

// ReadingsQuery narrows a readings listing. Zero values are omitted so the
// server applies its own defaults.
type ReadingsQuery struct {
	FieldID    string
	SensorType string
	Limit      int
	Offset     int
}

// TaskStatus is the state of a background task.
type TaskStatus struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ClearResult reports what an administrative clear removed.
type ClearResult struct {
	Message               string    `json:"message"`
	SensorReadingsDeleted int64     `json:"sensor_readings_deleted"`
	DailyStatsDeleted     int64     `json:"daily_stats_deleted"`
	Timestamp             time.Time `json:"timestamp"`
}

// Health is the server's dependency health snapshot.
type Health struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
	RedisConnected    bool      `json:"redis_connected"`
}

// =============================================================================
// API Methods
// =============================================================================

// Info fetches the root service banner.
func (c *Client) Info(ctx context.Context) (*ServiceInfo, error) {
	var info ServiceInfo
	if err := c.get(ctx, "/", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreateReadings submits a batch of readings. The server decides whether to
// store them inline or queue a background task; Async tells which happened.
func (c *Client) CreateReadings(ctx context.Context, inputs []model.ReadingInput) (*IngestResult, error) {
	body, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("encode readings: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/sensor-data", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	// The endpoint returns an array when stored inline and an object when
	// queued; the first byte tells them apart.
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		result := &IngestResult{}
		if err := json.Unmarshal(data, &result.Stored); err != nil {
			return nil, fmt.Errorf("decode stored readings: %w", err)
		}
		return result, nil
	}

	var accepted struct {
		Message string `json:"message"`
		TaskID  string `json:"task_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(data, &accepted); err != nil {
		return nil, fmt.Errorf("decode async response: %w", err)
	}
	return &IngestResult{
		Async:   true,
		TaskID:  accepted.TaskID,
		Status:  accepted.Status,
		Message: accepted.Message,
	}, nil
}

// Readings lists stored readings, newest first.
func (c *Client) Readings(ctx context.Context, q ReadingsQuery) ([]model.SensorReading, error) {
	params := url.Values{}
	if q.FieldID != "" {
		params.Set("field_id", q.FieldID)
	}
	if q.SensorType != "" {
		params.Set("sensor_type", q.SensorType)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var readings []model.SensorReading
	if err := c.get(ctx, "/readings", params, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// Analytics fetches the dashboard-wide overview.
func (c *Client) Analytics(ctx context.Context) (*model.Overview, error) {
	var overview model.Overview
	if err := c.get(ctx, "/analytics", nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

// FieldAnalytics fetches the summary for one field.
func (c *Client) FieldAnalytics(ctx context.Context, fieldID string) (*model.FieldAnalytics, error) {
	var fa model.FieldAnalytics
	if err := c.get(ctx, "/analytics/field/"+url.PathEscape(fieldID), nil, &fa); err != nil {
		return nil, err
	}
	return &fa, nil
}

// SensorTypeAnalytics fetches the summary for one sensor type.
func (c *Client) SensorTypeAnalytics(ctx context.Context, sensorType string) (*model.SensorTypeAnalytics, error) {
	var sa model.SensorTypeAnalytics
	if err := c.get(ctx, "/analytics/sensor/"+url.PathEscape(sensorType), nil, &sa); err != nil {
		return nil, err
	}
	return &sa, nil
}

// Task fetches the status of a background task.
func (c *Client) Task(ctx context.Context, taskID string) (*TaskStatus, error) {
	var ts TaskStatus
	if err := c.get(ctx, "/task/"+url.PathEscape(taskID), nil, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// ClearData deletes all stored readings and daily stats.
func (c *Client) ClearData(ctx context.Context) (*ClearResult, error) {
	data, err := c.do(ctx, http.MethodDelete, "/data/clear", nil)
	if err != nil {
		return nil, err
	}

	var result ClearResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode clear response: %w", err)
	}
	return &result, nil
}

// Health fetches the dependency health snapshot.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do performs one request and returns the response body, mapping non-2xx
// statuses to *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: res.StatusCode, Detail: http.StatusText(res.StatusCode)}
		var er struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &er) == nil && er.Detail != "" {
			apiErr.Detail = er.Detail
		}
		return nil, apiErr
	}

	return data, nil
}
