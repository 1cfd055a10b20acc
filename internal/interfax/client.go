// Package interfax is the wire-level adapter for the InterFAX REST API.
// Everything upstream of this package works with RawFax maps or plain
// bytes; response shape reconciliation lives in internal/normalize, and the
// rest of the gateway only depends on the Provider interface so the wire
// client stays swappable.
package interfax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://rest.interfax.net"

// ErrNotFound is returned when the provider has no record (or no document)
// for the requested id.
var ErrNotFound = errors.New("fax not found")

// Credentials is one account's InterFAX username/password pair. Each Client
// is bound to exactly one pair; credentials are never shared across clients.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// MaskUser renders a username safe for logs.
func MaskUser(u string) string {
	if len(u) <= 4 {
		return "****"
	}
	return u[:2] + "****" + u[len(u)-2:]
}

// RawFax is one undecoded provider record. Field names and value types vary
// between endpoints and API versions, which is why this stays a map until
// normalization.
type RawFax map[string]any

// DeliverRequest describes an outbound fax submission. Exactly one of
// Document or FileURL must be set; the facade validates that before calling
// the adapter.
type DeliverRequest struct {
	FaxNumber string
	// Document is the file body for direct uploads.
	Document  []byte
	MediaType string
	// FileURL submits by reference instead of uploading.
	FileURL string

	// Provider-recognized out-parameters.
	Reference    string
	ReplyAddress string
	Contact      string
}

// DeliverResult is the provider's acknowledgement of a submission.
type DeliverResult struct {
	ID       string
	Location string
}

// Provider is the six-operation boundary with the remote fax service.
type Provider interface {
	ListInbound(ctx context.Context, limit, offset int) ([]RawFax, error)
	ListOutbound(ctx context.Context, limit, offset int) ([]RawFax, error)
	Find(ctx context.Context, direction string, id string) (RawFax, error)
	Image(ctx context.Context, direction string, id string) ([]byte, error)
	Deliver(ctx context.Context, req DeliverRequest) (DeliverResult, error)
	Cancel(ctx context.Context, id string) error
	Balance(ctx context.Context) (float64, error)
}

// Error is a failed provider call with enough context to log and classify.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interfax %s: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("interfax %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("interfax %s: status %d", e.Op, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Client talks to the InterFAX REST API over HTTP basic auth.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, creds Credentials, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
		logger:  logger,
	}
}

func (c *Client) ListInbound(ctx context.Context, limit, offset int) ([]RawFax, error) {
	return c.list(ctx, "list_inbound", "/inbound/faxes", limit, offset)
}

func (c *Client) ListOutbound(ctx context.Context, limit, offset int) ([]RawFax, error) {
	return c.list(ctx, "list_outbound", "/outbound/faxes", limit, offset)
}

func (c *Client) list(ctx context.Context, op, path string, limit, offset int) ([]RawFax, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	body, _, err := c.get(ctx, op, path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return c.decodeList(op, body), nil
}

// decodeList tolerates the provider's known list-response misbehaviors: a
// non-array body becomes an empty result, and a malformed element is
// skipped so one bad record never sinks the whole page fetch.
func (c *Client) decodeList(op string, body []byte) []RawFax {
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		c.logger.Error("provider returned non-array list response",
			"op", op, "user", MaskUser(c.creds.Username), "error", err)
		return []RawFax{}
	}

	faxes := make([]RawFax, 0, len(elems))
	for i, elem := range elems {
		var raw RawFax
		if err := json.Unmarshal(elem, &raw); err != nil {
			c.logger.Error("skipping malformed record in list response",
				"op", op, "index", i, "error", err)
			continue
		}
		faxes = append(faxes, raw)
	}
	return faxes
}

func (c *Client) Find(ctx context.Context, direction string, id string) (RawFax, error) {
	op := "find_" + direction
	body, status, err := c.get(ctx, op, "/"+direction+"/faxes/"+url.PathEscape(id))
	if err != nil {
		if status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var raw RawFax
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("decode record: %w", err)}
	}
	return raw, nil
}

// Image fetches the document bytes attached to a fax. The InterFAX REST API
// exposes this directly per direction, so no low-level stream digging is
// needed here.
func (c *Client) Image(ctx context.Context, direction string, id string) ([]byte, error) {
	op := "image_" + direction
	body, status, err := c.get(ctx, op, "/"+direction+"/faxes/"+url.PathEscape(id)+"/image")
	if err != nil {
		if status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrNotFound
	}
	return body, nil
}

func (c *Client) Deliver(ctx context.Context, req DeliverRequest) (DeliverResult, error) {
	const op = "deliver"

	q := url.Values{}
	q.Set("faxNumber", req.FaxNumber)
	if req.Reference != "" {
		q.Set("reference", req.Reference)
	}
	if req.ReplyAddress != "" {
		q.Set("replyAddress", req.ReplyAddress)
	}
	if req.Contact != "" {
		q.Set("contact", req.Contact)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/outbound/faxes?"+q.Encode(), bytes.NewReader(req.Document))
	if err != nil {
		return DeliverResult{}, &Error{Op: op, Err: err}
	}
	httpReq.SetBasicAuth(c.creds.Username, c.creds.Password)

	if req.FileURL != "" {
		// Submission by reference: the provider fetches the document
		// itself from the given location.
		httpReq.Header.Set("Content-Location", req.FileURL)
	} else {
		mediaType := req.MediaType
		if mediaType == "" {
			mediaType = "application/pdf"
		}
		httpReq.Header.Set("Content-Type", mediaType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return DeliverResult{}, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DeliverResult{}, &Error{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	location := resp.Header.Get("Location")
	result := DeliverResult{
		ID:       lastPathSegment(location),
		Location: location,
	}
	c.logger.Info("fax submitted to provider",
		"fax_id", result.ID, "user", MaskUser(c.creds.Username))
	return result, nil
}

func (c *Client) Cancel(ctx context.Context, id string) error {
	const op = "cancel"
	path := "/outbound/faxes/" + url.PathEscape(id) + "/cancel"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	httpReq.SetBasicAuth(c.creds.Username, c.creds.Password)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

func (c *Client) Balance(ctx context.Context) (float64, error) {
	const op = "balance"
	body, _, err := c.get(ctx, op, "/accounts/self/ppcards/balance")
	if err != nil {
		return 0, err
	}

	balance, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, &Error{Op: op, Err: fmt.Errorf("parse balance %q: %w", strings.TrimSpace(string(body)), err)}
	}
	return balance, nil
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, &Error{Op: op, Err: err}
	}
	httpReq.SetBasicAuth(c.creds.Username, c.creds.Password)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &Error{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &Error{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, resp.StatusCode, nil
}

func lastPathSegment(p string) string {
	if p == "" {
		return ""
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
