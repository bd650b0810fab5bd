// Package pardot is a client for the Pardot (Account Engagement) legacy API
// endpoints used by the prospect sync workflows: prospect updates, batch
// updates, one-to-one and list email sends, and custom field management.
//
// Every call is a single attempt. A response counts as success only when the
// HTTP status is 200 and the body reports stat "ok" (204 for deletes); any
// other answer is returned as an *APIError wrapped in an
// errhandling.ClassifiedError.
package pardot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pardreamin/prospectsync/internal/auth"
	"github.com/pardreamin/prospectsync/internal/config"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

const (
	defaultUserAgent    = "prospectsync/1.0"
	formContentType     = "application/x-www-form-urlencoded"
	businessUnitHeader  = "Pardot-Business-Unit-Id"
	maxResponseBodySize = 1 * 1024 * 1024
	statOK              = "ok"
	maskedAuthorization = "Bearer ****"
)

// Operation names used in logs, previews and metrics.
const (
	OpUpdateProspect = "update_prospect"
	OpBatchUpdate    = "batch_update"
	OpSendOneToOne   = "send_one_to_one"
	OpSendToList     = "send_to_list"
	OpCreateField    = "create_custom_field"
	OpDeleteField    = "delete_custom_field"
)

// Request outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDryRun  = "dry_run"
)

// Errors returned for invalid arguments, before any request is made.
var (
	ErrMissingProspectID = errors.New("prospect id is required")
	ErrEmptyBatch        = errors.New("batch is empty")
	ErrMissingListID     = errors.New("sending list id is required")
	ErrMissingFieldID    = errors.New("custom field id is required")
)

// APIError is a failed Pardot call.
type APIError struct {
	Operation    string
	StatusCode   int
	Endpoint     string
	Method       string
	Message      string
	ResponseBody string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pardot %s failed: %d %s %s: %s", e.Operation, e.StatusCode, e.Method, e.Endpoint, e.Message)
}

// Observer is notified after every request. Implemented by the metrics
// package.
type Observer interface {
	ObserveRequest(operation, outcome string, duration time.Duration)
}

// Client calls the Pardot API with one Credential. It is safe for sequential
// use; dry-run previews are guarded for concurrent readers.
type Client struct {
	baseURL        string
	version        int
	businessUnitID string
	credential     auth.Credential
	format         BatchRequestFormat
	client         *http.Client
	observer       Observer

	dryRun     bool
	previewsMu sync.Mutex
	previews   []prospect.RequestPreview
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithDryRun makes the client record request previews instead of sending.
func WithDryRun(dryRun bool) Option {
	return func(cl *Client) { cl.dryRun = dryRun }
}

// WithObserver registers a request observer.
func WithObserver(o Observer) Option {
	return func(cl *Client) { cl.observer = o }
}

// New creates a Client for the configured business unit.
func New(settings config.PardotSettings, credential auth.Credential, opts ...Option) (*Client, error) {
	format, err := FormatForVersion(settings.LegacyAPIVersion)
	if err != nil {
		return nil, err
	}
	if settings.URL == "" {
		return nil, errors.New("pardot url is required")
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}

	c := &Client{
		baseURL:        strings.TrimRight(settings.URL, "/"),
		version:        settings.LegacyAPIVersion,
		businessUnitID: settings.BusinessUnitID,
		credential:     credential,
		format:         format,
		client:         createHTTPClient(timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func createHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Version returns the legacy API version in use.
func (c *Client) Version() int {
	return c.version
}

// DryRun reports whether requests are previewed instead of sent.
func (c *Client) DryRun() bool {
	return c.dryRun
}

// UpdateProspect writes fields onto one prospect. The id entry of fields, if
// any, is not sent as a field.
func (c *Client) UpdateProspect(ctx context.Context, prospectID string, fields *prospect.FieldMap) error {
	if prospectID == "" {
		return ErrMissingProspectID
	}
	form := url.Values{}
	fields.Range(func(k string, v interface{}) bool {
		if k != prospect.IDKey {
			form.Set(k, prospect.ValueToString(v))
		}
		return true
	})
	endpoint := c.endpoint("prospect", "do/update/id/"+url.PathEscape(prospectID))
	_, err := c.do(ctx, OpUpdateProspect, http.MethodPost, endpoint, form, 1)
	return err
}

// BatchUpdate writes every prospect of b in one call, encoded with the
// client's BatchRequestFormat.
func (c *Client) BatchUpdate(ctx context.Context, b prospect.Batch) error {
	if len(b) == 0 {
		return ErrEmptyBatch
	}
	payload, err := c.format.Encode(b)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	form := url.Values{}
	form.Set("prospects", string(payload))
	endpoint := c.endpoint("prospect", "do/batchUpdate")
	_, err = c.do(ctx, OpBatchUpdate, http.MethodPost, endpoint, form, len(b))
	return err
}

// Submit implements batch.Submitter.
func (c *Client) Submit(ctx context.Context, b prospect.Batch) error {
	return c.BatchUpdate(ctx, b)
}

// SendOneToOne sends an email to one prospect.
func (c *Client) SendOneToOne(ctx context.Context, prospectID string, content EmailContent) error {
	if prospectID == "" {
		return ErrMissingProspectID
	}
	form := url.Values{}
	content.apply(form)
	endpoint := c.endpoint("email", "do/send/prospect_id/"+url.PathEscape(prospectID))
	_, err := c.do(ctx, OpSendOneToOne, http.MethodPost, endpoint, form, 1)
	return err
}

// SendToList sends a template email to every member of a list.
func (c *Client) SendToList(ctx context.Context, listID string, content TemplateEmail) error {
	if listID == "" {
		return ErrMissingListID
	}
	form := url.Values{}
	content.apply(form)
	form.Set("list_ids[]", listID)
	endpoint := c.endpoint("email", "do/send/")
	_, err := c.do(ctx, OpSendToList, http.MethodPost, endpoint, form, 0)
	return err
}

// CreateCustomField creates a prospect custom field and returns its Pardot
// id. In dry-run mode the id is empty.
func (c *Client) CreateCustomField(ctx context.Context, label, apiName string) (string, error) {
	form := url.Values{}
	form.Set("name", label)
	form.Set("field_id", apiName)
	endpoint := c.endpoint("customField", "do/create")
	body, err := c.do(ctx, OpCreateField, http.MethodPost, endpoint, form, 0)
	if err != nil || c.dryRun {
		return "", err
	}

	var resp struct {
		CustomField struct {
			ID interface{} `json:"id"`
		} `json:"customField"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing create custom field response: %w", err)
	}
	id := prospect.ValueToString(resp.CustomField.ID)
	if id == "" {
		return "", &APIError{Operation: OpCreateField, StatusCode: http.StatusOK, Endpoint: sanitizeURL(endpoint),
			Method: http.MethodPost, Message: "response has no customField.id", ResponseBody: string(body)}
	}
	return id, nil
}

// DeleteCustomField deletes a custom field by id. Success is 204.
func (c *Client) DeleteCustomField(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingFieldID
	}
	endpoint := c.endpoint("customField", "do/delete/id/"+url.PathEscape(id))
	_, err := c.do(ctx, OpDeleteField, http.MethodDelete, endpoint, nil, 0)
	return err
}

// Previews returns the requests recorded in dry-run mode.
func (c *Client) Previews() []prospect.RequestPreview {
	c.previewsMu.Lock()
	defer c.previewsMu.Unlock()
	out := make([]prospect.RequestPreview, len(c.previews))
	copy(out, c.previews)
	return out
}

// endpoint builds {url}/api/{object}/version/{v}/{action}?format=json.
func (c *Client) endpoint(object, action string) string {
	return fmt.Sprintf("%s/api/%s/version/%d/%s?format=json", c.baseURL, object, c.version, action)
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization":    c.credential.AuthorizationHeader(),
		businessUnitHeader: c.businessUnitID,
		"User-Agent":       defaultUserAgent,
	}
}

// do executes one request and returns the response body on success.
func (c *Client) do(ctx context.Context, operation, method, endpoint string, form url.Values, records int) ([]byte, error) {
	if c.dryRun {
		c.recordPreview(operation, method, endpoint, form, records)
		c.observe(operation, OutcomeDryRun, 0)
		logger.Info("dry run: request not sent",
			slog.String("operation", operation),
			slog.String("endpoint", sanitizeURL(endpoint)),
			slog.Int("record_count", records),
		)
		return nil, nil
	}

	start := time.Now()
	body, err := c.execute(ctx, operation, method, endpoint, form)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.observe(operation, outcome, time.Since(start))
	return body, err
}

func (c *Client) execute(ctx context.Context, operation, method, endpoint string, form url.Values) ([]byte, error) {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	if form != nil {
		req.Header.Set("Content-Type", formContentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Error("pardot request failed",
			slog.String("operation", operation),
			slog.String("endpoint", sanitizeURL(endpoint)),
			slog.String("error", err.Error()),
		)
		classified := errhandling.ClassifyNetworkError(err)
		return nil, &errhandling.ClassifiedError{
			Category: classified.Category,
			Message:  classified.Message,
			OriginalErr: &APIError{
				Operation: operation,
				Endpoint:  sanitizeURL(endpoint),
				Method:    method,
				Message:   err.Error(),
			},
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body", slog.String("error", closeErr.Error()))
		}
	}()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))

	if method == http.MethodDelete {
		if resp.StatusCode == http.StatusNoContent {
			return respBody, nil
		}
		return nil, c.failure(operation, method, endpoint, resp, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.failure(operation, method, endpoint, resp, respBody)
	}

	stat, apiMsg := parseStat(respBody)
	if stat != statOK {
		apiErr := &APIError{
			Operation:    operation,
			StatusCode:   resp.StatusCode,
			Endpoint:     sanitizeURL(endpoint),
			Method:       method,
			Message:      apiMessage(stat, apiMsg),
			ResponseBody: string(respBody),
		}
		return nil, errhandling.NewValidationError(resp.StatusCode, apiErr.Message, apiErr)
	}

	logger.Debug("pardot request completed",
		slog.String("operation", operation),
		slog.String("endpoint", sanitizeURL(endpoint)),
		slog.Int("status_code", resp.StatusCode),
	)
	return respBody, nil
}

func (c *Client) failure(operation, method, endpoint string, resp *http.Response, body []byte) error {
	_, apiMsg := parseStat(body)
	detail := apiMsg
	if apiMsg == "" {
		apiMsg = resp.Status
	}
	apiErr := &APIError{
		Operation:    operation,
		StatusCode:   resp.StatusCode,
		Endpoint:     sanitizeURL(endpoint),
		Method:       method,
		Message:      apiMsg,
		ResponseBody: string(body),
	}
	classified := errhandling.ClassifyHTTPStatus(resp.StatusCode, apiMsg)
	classified.OriginalErr = apiErr
	if detail != "" && classified.Message != detail {
		classified.Message += ": " + detail
	}
	return classified
}

// parseStat extracts @attributes.stat and the err text from a Pardot JSON
// response. Unparseable bodies yield empty strings.
func parseStat(body []byte) (stat, message string) {
	var envelope struct {
		Attributes struct {
			Stat      string      `json:"stat"`
			ErrorCode interface{} `json:"errorCode"`
		} `json:"@attributes"`
		Err interface{} `json:"err"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}
	switch e := envelope.Err.(type) {
	case string:
		message = e
	case []interface{}:
		parts := make([]string, 0, len(e))
		for _, p := range e {
			parts = append(parts, prospect.ValueToString(p))
		}
		message = strings.Join(parts, "; ")
	}
	return envelope.Attributes.Stat, message
}

func apiMessage(stat, msg string) string {
	switch {
	case msg != "":
		return msg
	case stat == "":
		return "response has no @attributes.stat"
	default:
		return "stat " + stat
	}
}

func (c *Client) observe(operation, outcome string, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(operation, outcome, d)
	}
}

func (c *Client) recordPreview(operation, method, endpoint string, form url.Values, records int) {
	headers := c.headers()
	headers["Authorization"] = maskedAuthorization
	var formCopy map[string][]string
	if form != nil {
		formCopy = make(map[string][]string, len(form))
		for k, v := range form {
			formCopy[k] = append([]string(nil), v...)
		}
	}
	c.previewsMu.Lock()
	defer c.previewsMu.Unlock()
	c.previews = append(c.previews, prospect.RequestPreview{
		Operation:   operation,
		Endpoint:    endpoint,
		Method:      method,
		Headers:     headers,
		Form:        formCopy,
		RecordCount: records,
	})
}

// sanitizeURL drops the query string and fragment for logs and errors.
func sanitizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "[invalid URL]"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
