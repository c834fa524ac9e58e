package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	testutils "github.com/FlashGalatine/xivdyetools-test-utils"
	"github.com/FlashGalatine/xivdyetools-test-utils/history"
	"github.com/FlashGalatine/xivdyetools-test-utils/idgen"
	"github.com/FlashGalatine/xivdyetools-test-utils/match"
	"github.com/FlashGalatine/xivdyetools-test-utils/opmetrics"
)

// DefaultMaxCallHistory bounds the call history when no explicit capacity is
// configured.
const DefaultMaxCallHistory = 1000

const opFetch = "fetch"

// ErrInvalidRequest is returned by Fetch for inputs that are not a URL string
// or a Request, and for header or body shapes that cannot be normalized.
var ErrInvalidRequest = errors.New("invalid request")

// Request describes one call to the bound service. Headers and Body accept
// the same shapes RequestInit does.
type Request struct {
	URL     string
	Method  string
	Headers any
	Body    any
}

// RequestInit overrides request fields for a single Fetch call. Headers
// accepts http.Header, map[string][]string, map[string]string, or
// [][2]string; Body accepts string, []byte, or io.Reader.
type RequestInit struct {
	Method  string
	Headers any
	Body    any
}

// Response is a scripted or returned service response.
type Response struct {
	// Status is the HTTP status code. Zero normalizes to 200 when the
	// response is returned from Fetch.
	Status int `json:"status"`

	// OK reports whether Status is in the 2xx range. It is computed on
	// every returned response.
	OK bool `json:"ok"`

	// Headers holds the response headers.
	Headers map[string]string `json:"headers"`

	// Body is the raw response payload.
	Body []byte `json:"body"`
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Bytes returns a copy of the body.
func (r *Response) Bytes() []byte {
	return append([]byte(nil), r.Body...)
}

// JSON decodes the body as JSON. Bodies that fail to decode are returned as
// their raw text instead.
func (r *Response) JSON() any {
	var decoded any
	if err := json.Unmarshal(r.Body, &decoded); err != nil {
		return string(r.Body)
	}
	return decoded
}

// Handler produces responses for every fetch, replacing the rule chain. The
// request it receives is already normalized: uppercase method, lowercase
// header keys in a map[string]string, and the body snapshotted to a string.
// Returning a nil response without an error falls back to the default
// response.
type Handler func(*Request) (*Response, error)

// CallRecord captures one recorded Fetch call.
type CallRecord struct {
	// Seq numbers calls from 1 in fetch order. It keeps counting across
	// evictions, so the oldest retained record need not be 1.
	Seq int64

	// URL is the fetched URL as given.
	URL string

	// Method is the normalized uppercase request method.
	Method string

	// Headers holds the normalized request headers: lowercase keys,
	// multi-values joined with ", ".
	Headers map[string]string

	// Body is the snapshotted request body.
	Body string

	// Timestamp is the fetch instant.
	Timestamp time.Time
}

// clone copies the record so stored state never aliases caller-visible maps.
func (r CallRecord) clone() CallRecord {
	out := r
	out.Headers = cloneHeaders(r.Headers)
	return out
}

// Config controls construction of a Client.
type Config struct {
	// Handler, when set, produces every response and bypasses the rule
	// chain. Reset restores this handler.
	Handler Handler

	// Default is returned when no handler or rule answers a fetch. Nil
	// falls back to status 200 with the body {"success":true}.
	Default *Response

	// MaxCallHistory bounds the call history. Zero or negative values
	// default to DefaultMaxCallHistory.
	MaxCallHistory int

	// Clock supplies call timestamps and defaults to the wall clock.
	Clock testutils.Clock

	// Logger receives debug output. Nil discards all output.
	Logger *slog.Logger

	// Binding names this instance in instrumentation labels.
	Binding string

	// Metrics optionally registers operation counters for this instance.
	Metrics prometheus.Registerer
}

// Client is an in-memory service binding. Calls resolve against an installed
// handler, then scripted rules, then the default response; every call is
// recorded first.
//
// All methods are safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	cfg      Config
	handler  Handler
	def      *Response
	initial  *Response
	capacity int
	rules    *match.Chain[*Response]
	calls    *history.Log[CallRecord]
	seq      *idgen.Sequence
	clock    testutils.Clock
	logger   *slog.Logger
	metrics  *opmetrics.Recorder
}

// Ensure Client satisfies the shared reset contract at compile time.
var _ testutils.Resetter = (*Client)(nil)

// New creates a Client with the provided configuration. The only error source
// is metrics registration.
func New(config Config) (*Client, error) {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	recorder, err := opmetrics.New(opmetrics.Config{
		Component: "service",
		Binding:   config.Binding,
		Registry:  config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	capacity := config.MaxCallHistory
	if capacity <= 0 {
		capacity = DefaultMaxCallHistory
	}

	def := defaultResponse()
	if config.Default != nil {
		def = cloneResponse(config.Default)
	}

	return &Client{
		cfg:      config,
		handler:  config.Handler,
		def:      def,
		initial:  cloneResponse(def),
		capacity: capacity,
		rules:    match.New[*Response](),
		calls:    history.New[CallRecord](capacity),
		seq:      idgen.NewSequence("call"),
		clock:    clock,
		logger:   logger,
		metrics:  recorder,
	}, nil
}

// Fetch performs one emulated call. The input is a URL string or a Request;
// an optional RequestInit overrides its method, headers, and body. The call
// is normalized and recorded before any resolution, so even a handler error
// leaves a record behind.
func (c *Client) Fetch(input any, init ...*RequestInit) (*Response, error) {
	req, err := toRequest(input)
	if err != nil {
		return nil, err
	}
	if len(init) > 0 && init[0] != nil {
		applyInit(req, init[0])
	}

	headers, err := normalizeHeaders(req.Headers)
	if err != nil {
		return nil, err
	}
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	record := CallRecord{
		Seq:       c.seq.NextInt(),
		URL:       req.URL,
		Method:    method,
		Headers:   headers,
		Body:      body,
		Timestamp: c.clock(),
	}

	c.metrics.Op(opFetch)
	c.calls.Append(record.clone())
	c.metrics.SetItems(c.calls.Len())
	c.logger.Debug("service fetch", "url", record.URL, "method", record.Method)

	c.mu.Lock()
	handler := c.handler
	def := c.def
	c.mu.Unlock()

	// The handler runs outside the lock so it may itself use the client.
	if handler != nil {
		resp, err := handler(&Request{
			URL:     record.URL,
			Method:  record.Method,
			Headers: record.Headers,
			Body:    record.Body,
		})
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return cloneResponse(resp), nil
		}
		return cloneResponse(def), nil
	}

	if resp, ok := c.rules.Resolve(record.URL); ok {
		return cloneResponse(resp), nil
	}
	return cloneResponse(def), nil
}

// On starts a scripted response rule matching URLs that contain substr.
func (c *Client) On(substr string) *ResponseBuilder {
	return &ResponseBuilder{client: c, substr: substr}
}

// OnRegexp starts a scripted response rule matching URLs against re.
// Substring rules always resolve before regular-expression rules.
func (c *Client) OnRegexp(re *regexp.Regexp) *ResponseBuilder {
	return &ResponseBuilder{client: c, re: re, regex: true}
}

// SetHandler installs a handler, replacing any current one. A non-nil
// handler bypasses the rule chain entirely.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// ClearHandler removes the current handler so scripted rules apply again.
func (c *Client) ClearHandler() {
	c.SetHandler(nil)
}

// ClearRules removes every scripted response rule.
func (c *Client) ClearRules() {
	c.rules.Clear()
}

// SetDefaultResponse replaces the response returned when nothing answers a
// fetch. Nil restores the built-in default.
func (c *Client) SetDefaultResponse(resp *Response) {
	if resp == nil {
		resp = defaultResponse()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.def = cloneResponse(resp)
}

// SetMaxCallHistory changes the call history bound. The new bound applies
// immediately: a shrinking history drops its oldest records at once.
func (c *Client) SetMaxCallHistory(n int) {
	c.calls.SetCapacity(n)
	c.metrics.SetItems(c.calls.Len())
}

// CallHistory returns the recorded calls, oldest first.
func (c *Client) CallHistory() []CallRecord {
	records := c.calls.Items()
	for i := range records {
		records[i] = records[i].clone()
	}
	return records
}

// CallCount returns the number of retained call records.
func (c *Client) CallCount() int {
	return c.calls.Len()
}

// LastCall returns the most recent call record, or nil when none exist.
func (c *Client) LastCall() *CallRecord {
	record, ok := c.calls.Last()
	if !ok {
		return nil
	}
	out := record.clone()
	return &out
}

// Reset restores the client to its construction state: history emptied and
// re-bounded, sequence restarted, rules removed, and the configured handler
// and default response reinstated.
func (c *Client) Reset() {
	c.calls.Reset()
	c.calls.SetCapacity(c.capacity)
	c.rules.Clear()
	c.seq.Reset()

	c.mu.Lock()
	c.handler = c.cfg.Handler
	c.def = cloneResponse(c.initial)
	c.mu.Unlock()

	c.metrics.SetItems(0)
	c.logger.Debug("service reset")
}

// ResponseBuilder finishes registration of a scripted response rule.
type ResponseBuilder struct {
	client *Client
	substr string
	re     *regexp.Regexp
	regex  bool
}

// Return registers the response for the configured rule and returns the
// client for chaining.
func (b *ResponseBuilder) Return(resp *Response) *Client {
	if b.regex {
		b.client.rules.AddRegexp(b.re, resp)
	} else {
		b.client.rules.AddString(b.substr, resp)
	}
	return b.client
}

// defaultResponse is the built-in answer for unscripted calls.
func defaultResponse() *Response {
	return &Response{Status: http.StatusOK, Body: []byte(`{"success":true}`)}
}

// toRequest shapes a Fetch input into a private request copy.
func toRequest(input any) (*Request, error) {
	switch in := input.(type) {
	case string:
		return &Request{URL: in}, nil
	case *Request:
		if in == nil {
			return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
		}
		out := *in
		return &out, nil
	case Request:
		out := in
		return &out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported input type %T", ErrInvalidRequest, input)
	}
}

// applyInit overrides request fields with the provided init values.
func applyInit(req *Request, init *RequestInit) {
	if init.Method != "" {
		req.Method = init.Method
	}
	if init.Headers != nil {
		req.Headers = init.Headers
	}
	if init.Body != nil {
		req.Body = init.Body
	}
}

// normalizeHeaders flattens an accepted header shape into lowercase keys
// with multi-values joined by ", ".
func normalizeHeaders(headers any) (map[string]string, error) {
	switch h := headers.(type) {
	case nil:
		return map[string]string{}, nil
	case http.Header:
		return flattenHeaderMap(h), nil
	case map[string][]string:
		return flattenHeaderMap(h), nil
	case map[string]string:
		out := make(map[string]string, len(h))
		for name, value := range h {
			out[strings.ToLower(name)] = value
		}
		return out, nil
	case [][2]string:
		out := make(map[string]string, len(h))
		for _, pair := range h {
			name := strings.ToLower(pair[0])
			if existing, ok := out[name]; ok {
				out[name] = existing + ", " + pair[1]
			} else {
				out[name] = pair[1]
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported header type %T", ErrInvalidRequest, headers)
	}
}

// flattenHeaderMap joins multi-valued headers under lowercase keys.
func flattenHeaderMap(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

// normalizeBody snapshots an accepted body shape into a string.
func normalizeBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return "", fmt.Errorf("failed to read request body: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: unsupported body type %T", ErrInvalidRequest, body)
	}
}

// cloneHeaders copies a header map, preserving nil.
func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// cloneResponse copies a response, normalizing a zero status to 200 and
// recomputing OK.
func cloneResponse(resp *Response) *Response {
	out := &Response{
		Status:  resp.Status,
		Headers: cloneHeaders(resp.Headers),
		Body:    append([]byte(nil), resp.Body...),
	}
	if out.Status == 0 {
		out.Status = http.StatusOK
	}
	out.OK = out.Status >= 200 && out.Status < 300
	return out
}
