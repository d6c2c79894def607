package nanomdm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/metrics"
)

const apiUsername = "nanomdm"

// StatusError is returned when the server answers with an unexpected HTTP
// status.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "nanomdm " + e.Operation + ": " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// APIResult is the JSON reply of the enqueue and push endpoints.
type APIResult struct {
	Status       map[string]EnrollmentResult `json:"status,omitempty"`
	NoPush       bool                        `json:"no_push,omitempty"`
	PushError    string                      `json:"push_error,omitempty"`
	CommandError string                      `json:"command_error,omitempty"`
	CommandUUID  string                      `json:"command_uuid,omitempty"`
	RequestType  string                      `json:"request_type,omitempty"`
}

type EnrollmentResult struct {
	PushError    string `json:"push_error,omitempty"`
	PushResult   string `json:"push_result,omitempty"`
	CommandError string `json:"command_error,omitempty"`
}

type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration
	metrics    *metrics.CommandMetrics
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithMaxElapsed bounds how long a request is retried for. Zero disables
// retries.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid nanomdm URL %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid nanomdm URL %q", baseURL)
	}

	commandMetrics, err := metrics.NewCommandMetrics()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize")
	}

	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxElapsed: 30 * time.Second,
		metrics:    commandMetrics,
		logger:     logger.With(slog.String("source", "nanomdm")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path ...string) string {
	return c.baseURL.JoinPath(path...).String()
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	if c.maxElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed
	return backoff.WithContext(b, ctx)
}

type request struct {
	operation   string
	requestType string
	method      string
	endpoint    string
	body        []byte
	// accept lists statuses besides 200 that count as success.
	accept []int
}

// attempt performs a single API call. 4xx replies are marked permanent so
// callers retrying through backoff give up straight away.
func (c *Client) attempt(ctx context.Context, r request) ([]byte, error) {
	started := time.Now()
	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.endpoint, reader)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "failed to create request"))
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/x-plist")
	}
	if c.apiKey != "" {
		req.SetBasicAuth(apiUsername, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Observe(r.operation, r.requestType, 0, started)
		return nil, errors.Wrapf(err, "nanomdm %s failed", r.operation)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close body", "error", err)
		}
	}()

	c.metrics.Observe(r.operation, r.requestType, resp.StatusCode, started)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode == http.StatusOK || slices.Contains(r.accept, resp.StatusCode) {
		return data, nil
	}

	statusErr := &StatusError{Operation: r.operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	if resp.StatusCode < http.StatusInternalServerError {
		return nil, backoff.Permanent(statusErr)
	}
	return nil, statusErr
}

// do is attempt retried on transport errors and 5xx replies.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	notify := func(err error, wait time.Duration) {
		c.metrics.Retries.Inc()
		c.logger.Warn("nanomdm request failed, retrying", "operation", r.operation, "wait", wait, "error", err)
	}
	return backoff.RetryNotifyWithData(func() ([]byte, error) {
		return c.attempt(ctx, r)
	}, c.newBackOff(ctx), notify)
}

func decodeResult(data []byte) (*APIResult, error) {
	var result APIResult
	if len(bytes.TrimSpace(data)) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode nanomdm reply")
	}
	return &result, nil
}

// Enqueue queues cmd for every device id and asks nanomdm to push. A 207
// reply (some devices failed) is returned together with the per-device
// status rather than as an error.
func (c *Client) Enqueue(ctx context.Context, cmd *Command, ids ...string) (*APIResult, error) {
	if len(ids) == 0 {
		return nil, errors.New("enqueue requires at least one device id")
	}
	body, err := cmd.Encode()
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, request{
		operation:   "enqueue",
		requestType: cmd.Command.RequestType,
		method:      http.MethodPut,
		endpoint:    c.endpoint("v1", "enqueue", joinIDs(ids)),
		body:        body,
		accept:      []int{http.StatusMultiStatus},
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeResult(data)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveDevices(ids)
	c.logger.Info("Command enqueued",
		"request_type", cmd.Command.RequestType,
		"command_uuid", cmd.CommandUUID,
		"devices", len(ids),
		"push_error", result.PushError)
	return result, nil
}

// Push sends an APNs wake-up to the devices without queuing anything.
func (c *Client) Push(ctx context.Context, ids ...string) (*APIResult, error) {
	if len(ids) == 0 {
		return nil, errors.New("push requires at least one device id")
	}
	data, err := c.do(ctx, request{
		operation: "push",
		method:    http.MethodGet,
		endpoint:  c.endpoint("v1", "push", joinIDs(ids)),
		accept:    []int{http.StatusMultiStatus},
	})
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

func (c *Client) versionRequest() request {
	return request{operation: "version", method: http.MethodGet, endpoint: c.endpoint("version")}
}

// Version returns the server's reported version.
func (c *Client) Version(ctx context.Context) (string, error) {
	data, err := c.do(ctx, c.versionRequest())
	if err != nil {
		return "", err
	}
	return parseVersion(data)
}

func parseVersion(data []byte) (string, error) {
	var reply struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", errors.Wrap(err, "failed to decode version reply")
	}
	return reply.Version, nil
}

// WaitReady polls the server until it answers, with exponential backoff
// bounded by the client's max elapsed time or ctx.
func (c *Client) WaitReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = max(c.maxElapsed, time.Second)

	version, err := backoff.RetryWithData(func() (string, error) {
		data, err := c.attempt(ctx, c.versionRequest())
		if err != nil {
			return "", err
		}
		return parseVersion(data)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return errors.Wrap(err, "nanomdm did not become ready")
	}
	c.logger.Info("nanomdm is ready", "url", c.baseURL.Redacted(), "version", version)
	return nil
}

func joinIDs(ids []string) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(id)
	}
	return strings.Join(escaped, ",")
}
