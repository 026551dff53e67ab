// Package client talks to the submission store over HTTP. Every response is decoded at
// this boundary into typed values or an explicit error; untyped payloads never leave it.
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

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
	"go.uber.org/zap"
)

var (
	// ErrNotFound: the submission (or worker) is gone. Terminal for the open view.
	ErrNotFound = errors.New("submission not found")
	// ErrConflict: the write was based on a stale version.
	ErrConflict = errors.New("submission was modified concurrently")
)

// APIError is a non-2xx answer from the store.
type APIError struct {
	Status   int
	Code     int
	Message  string
	Failures []validation.Failure
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("store error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("store error %d", e.Status)
}

// Unwrap maps 404 and 409 to the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// DecodeError is a 2xx response whose body did not match the expected shape.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// envelope is the store's {code, message, data} wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout on a copy of the current http client, so a
// shared client passed through WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the store mounted at baseURL, e.g. http://host:8080/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the store root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the bearer token, empty when none is configured.
func (c *Client) Token() string { return c.token }

// request is one store call.
type request struct {
	method  string
	path    string
	query   url.Values
	version int
	body    interface{}
}

// do performs the call and returns the raw data field of the envelope.
func (c *Client) do(ctx context.Context, r request) (json.RawMessage, error) {
	var bodyReader io.Reader
	if r.body != nil {
		bodyBytes, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if r.version > 0 {
		req.Header.Set("If-Match", strconv.Quote(strconv.Itoa(r.version)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	envErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if envErr == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
			apiErr.Failures = decodeFailures(env.Data)
		}
		c.logger.Debug("store call failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.Int("code", apiErr.Code))
		return nil, apiErr
	}
	if envErr != nil {
		return nil, &DecodeError{Path: r.path, Err: envErr}
	}
	if env.Code != 0 {
		return nil, &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}

func decodeFailures(data json.RawMessage) []validation.Failure {
	if len(data) == 0 {
		return nil
	}
	var payload struct {
		Failures []validation.Failure `json:"failures"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return payload.Failures
}

// decodeInto is the typed side of the boundary decode.
func decodeInto(path string, data json.RawMessage, out interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return &DecodeError{Path: path, Err: errors.New("empty data")}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// DecodeSubmission turns a store payload into a Submission or a DecodeError.
func DecodeSubmission(data []byte) (*entity.Submission, error) {
	var sub entity.Submission
	if err := decodeInto("submission", data, &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, &DecodeError{Path: "submission", Err: errors.New("missing id")}
	}
	if !sub.ReviewStatus.Valid() || !sub.ApprovalStatus.Valid() {
		return nil, &DecodeError{Path: "submission", Err: fmt.Errorf("unknown status (%q, %q)", sub.ReviewStatus, sub.ApprovalStatus)}
	}
	return &sub, nil
}

func submissionPath(id string, rest ...string) string {
	p := "/submissions/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) submission(ctx context.Context, r request) (*entity.Submission, error) {
	data, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	sub, err := DecodeSubmission(data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	return sub, nil
}

// GetSubmission fetches the full submission.
func (c *Client) GetSubmission(ctx context.Context, id string) (*entity.Submission, error) {
	return c.submission(ctx, request{method: http.MethodGet, path: submissionPath(id)})
}

// CreateSubmission sends a vendor submission.
func (c *Client) CreateSubmission(ctx context.Context, sub *entity.Submission) (*entity.Submission, error) {
	return c.submission(ctx, request{method: http.MethodPost, path: "/submissions", body: sub})
}

// UpdateSubmission is the general field update. version > 0 is sent as If-Match.
func (c *Client) UpdateSubmission(ctx context.Context, id string, version int, patch entity.SubmissionPatch) (*entity.Submission, error) {
	return c.submission(ctx, request{method: http.MethodPatch, path: submissionPath(id), version: version, body: patch})
}

// SubmitReview persists the review decision.
func (c *Client) SubmitReview(ctx context.Context, id string, version int, in validation.ReviewInput) (*entity.Submission, error) {
	return c.submission(ctx, request{method: http.MethodPatch, path: submissionPath(id, "review"), version: version, body: in})
}

// SubmitApproval persists the approval decision.
func (c *Client) SubmitApproval(ctx context.Context, id string, version int, in validation.ApprovalInput) (*entity.Submission, error) {
	return c.submission(ctx, request{method: http.MethodPatch, path: submissionPath(id, "approve"), version: version, body: in})
}

// Resubmit fires the vendor resubmission event.
func (c *Client) Resubmit(ctx context.Context, id string, version int) (*entity.Submission, error) {
	return c.submission(ctx, request{method: http.MethodPost, path: submissionPath(id, "resubmit"), version: version})
}

// DeleteWorker removes one persisted roster entry.
func (c *Client) DeleteWorker(ctx context.Context, id, workerID string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: submissionPath(id, "workers", url.PathEscape(workerID))})
	return err
}

// ListWorkers fetches the persisted roster.
func (c *Client) ListWorkers(ctx context.Context, id string) ([]entity.Worker, error) {
	path := submissionPath(id, "workers")
	data, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Items []entity.Worker `json:"items"`
	}
	if err := decodeInto(path, data, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// ListScans fetches the scan history. A 404 yields an empty history.
func (c *Client) ListScans(ctx context.Context, id string) ([]entity.ScanRecord, error) {
	path := submissionPath(id, "scans")
	data, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var payload struct {
		Items []entity.ScanRecord `json:"items"`
	}
	if err := decodeInto(path, data, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// NextSimlokNumber asks the numbering service for the next permit number of year.
func (c *Client) NextSimlokNumber(ctx context.Context, year int) (string, error) {
	path := "/submissions/simlok/next-number"
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   path,
		query:  url.Values{"year": []string{strconv.Itoa(year)}},
	})
	if err != nil {
		return "", err
	}
	var payload struct {
		SimlokNumber string `json:"simlok_number"`
	}
	if err := decodeInto(path, data, &payload); err != nil {
		return "", err
	}
	if payload.SimlokNumber == "" {
		return "", &DecodeError{Path: path, Err: errors.New("empty simlok_number")}
	}
	return payload.SimlokNumber, nil
}
