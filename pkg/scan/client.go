package scan

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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// SDKName and SDKVersion identify this client to the scan API.
const (
	SDKName    = "trustfence-go"
	SDKVersion = "0.4.0"
)

// MaxInputBytes is the combined input size cap enforced client-side before
// any network call. Exceeding it synthesizes a size_limit_exceeded verdict
// locally.
const MaxInputBytes = 100 * 1024

// DefaultTimeout bounds a single scan call when WithTimeout is not given.
const DefaultTimeout = 10 * time.Second

// FailMode governs how scan infrastructure failures are resolved. It never
// affects a genuine unsafe verdict, which always blocks.
type FailMode int

const (
	// FailOpen converts scan failures into safe verdicts carrying a
	// diagnostic reason, letting the underlying LLM call proceed.
	FailOpen FailMode = iota
	// FailClosed surfaces scan failures as *ScanError, blocking the call.
	FailClosed
)

// ParseFailMode normalizes a configuration string into a FailMode.
func ParseFailMode(s string) (FailMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	}
	return FailOpen, &ConfigError{Field: "fail_mode", Reason: fmt.Sprintf("must be %q or %q, got %q", "open", "closed", s)}
}

func (m FailMode) String() string {
	if m == FailClosed {
		return "closed"
	}
	return "open"
}

// Client calls the TrustFence scan API. Configuration is immutable after
// New; a single Client is safe for concurrent use and each in-flight scan
// carries its own deadline.
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	failMode FailMode
	http     *http.Client
	logger   *zap.Logger
	metrics  *metrics
}

// Option configures a Client.
type Option func(*Client) error

// WithTimeout bounds each scan call. Zero or negative durations are rejected.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return &ConfigError{Field: "timeout", Reason: "must be positive"}
		}
		c.timeout = d
		return nil
	}
}

// WithFailMode sets the failure policy. The default is FailOpen.
func WithFailMode(m FailMode) Option {
	return func(c *Client) error {
		if m != FailOpen && m != FailClosed {
			return &ConfigError{Field: "fail_mode", Reason: "unknown mode"}
		}
		c.failMode = m
		return nil
	}
}

// WithHTTPClient substitutes the underlying http.Client. Per-call deadlines
// still apply through the request context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return &ConfigError{Field: "http_client", Reason: "must not be nil"}
		}
		c.http = hc
		return nil
	}
}

// WithLogger attaches a zap logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// WithMetrics registers the client's Prometheus instruments on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) error {
		if reg == nil {
			return &ConfigError{Field: "metrics", Reason: "registerer must not be nil"}
		}
		c.metrics = newMetrics(reg)
		return nil
	}
}

// New creates a Client for the scan API at endpoint. Misconfiguration is
// reported immediately as *ConfigError, never deferred to the first call.
func New(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, &ConfigError{Field: "api_key", Reason: "must not be empty"}
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConfigError{Field: "endpoint", Reason: fmt.Sprintf("not a valid http(s) URL: %q", endpoint)}
	}

	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  DefaultTimeout,
		failMode: FailOpen,
		http:     &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FailureMode reports the policy the client was constructed with.
func (c *Client) FailureMode() FailMode { return c.failMode }

// RequestOption adjusts a single scan call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	traceID     string
	scanContext string
}

// WithTraceID supplies the trace identifier for one request instead of the
// generated UUID.
func WithTraceID(id string) RequestOption {
	return func(o *requestOptions) { o.traceID = id }
}

// WithScanContext attaches caller context (e.g. the surrounding
// conversation or schema) to help the backend judge the content.
func WithScanContext(sctx string) RequestOption {
	return func(o *requestOptions) { o.scanContext = sctx }
}

type scanRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

type specializedRequest struct {
	Content     string         `json:"content"`
	ContentType ContentType    `json:"content_type"`
	Context     map[string]any `json:"context,omitempty"`
}

// Scan submits prompt to POST {endpoint}/scan and returns the sanitized
// verdict. Empty or whitespace-only prompts are trivially safe and skip the
// network entirely, as does input over MaxInputBytes (which synthesizes a
// local size_limit_exceeded verdict).
func (c *Client) Scan(ctx context.Context, prompt string, opts ...RequestOption) (*Verdict, error) {
	ro := applyRequestOptions(opts)

	if strings.TrimSpace(prompt) == "" {
		c.metrics.recordSkipped()
		return &Verdict{Safe: true, Reason: "No user content to scan"}, nil
	}
	if len(prompt)+len(ro.scanContext) > MaxInputBytes {
		v := c.sizeLimitVerdict(len(prompt) + len(ro.scanContext))
		c.metrics.recordVerdict(v)
		return v, nil
	}

	return c.post(ctx, "/scan", scanRequest{Prompt: prompt, Context: ro.scanContext}, ro)
}

// ScanSpecialized submits content to POST {endpoint}/api/scan/specialized
// for a type-specific analyzer (SQL, file path, or file content). The same
// local size guard and failure policy apply.
func (c *Client) ScanSpecialized(ctx context.Context, content string, contentType ContentType, sctx map[string]any, opts ...RequestOption) (*Verdict, error) {
	switch contentType {
	case ContentSQL, ContentFilePath, ContentFileContent:
	default:
		return nil, &ConfigError{Field: "content_type", Reason: fmt.Sprintf("unsupported type %q", contentType)}
	}

	ro := applyRequestOptions(opts)

	if strings.TrimSpace(content) == "" {
		c.metrics.recordSkipped()
		return &Verdict{Safe: true, Reason: "No user content to scan"}, nil
	}
	if len(content) > MaxInputBytes {
		v := c.sizeLimitVerdict(len(content))
		c.metrics.recordVerdict(v)
		return v, nil
	}

	return c.post(ctx, "/api/scan/specialized", specializedRequest{
		Content:     content,
		ContentType: contentType,
		Context:     sctx,
	}, ro)
}

func applyRequestOptions(opts []RequestOption) requestOptions {
	var ro requestOptions
	for _, o := range opts {
		o(&ro)
	}
	return ro
}

// sizeLimitVerdict is the one verdict produced without a round trip.
func (c *Client) sizeLimitVerdict(size int) *Verdict {
	return &Verdict{
		Safe:       false,
		Reason:     fmt.Sprintf("Input size %d bytes exceeds the %d byte scan limit", size, MaxInputBytes),
		ThreatType: ThreatSizeLimit,
		Severity:   defaultSeverity[ThreatSizeLimit],
		Confidence: ConfidenceHigh,
		Guidance:   guidance[ThreatSizeLimit],
	}
}

// post performs the bounded scan call and applies the failure policy to
// every infrastructure error: timeout, transport failure, non-2xx status,
// and malformed response bodies are all treated alike.
func (c *Client) post(ctx context.Context, path string, payload any, ro requestOptions) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scan request: %w", err)
	}

	traceID := ro.traceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TrustFence-SDK", SDKName)
	req.Header.Set("X-TrustFence-SDK-Version", SDKVersion)
	req.Header.Set("X-Trace-ID", traceID)

	resp, err := c.http.Do(req)
	if err != nil {
		reason := fmt.Sprintf("Scan request failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("Scan request timeout after %s", c.timeout)
		}
		return c.resolveFailure(traceID, reason, 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.resolveFailure(traceID, fmt.Sprintf("Scan response read failed: %v", err), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.resolveFailure(traceID, fmt.Sprintf("Scan API error: %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var raw rawVerdict
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return c.resolveFailure(traceID, fmt.Sprintf("Scan response malformed: %v", err), resp.StatusCode, err)
	}

	v, err := sanitize(raw)
	if err != nil {
		// Missing safe field: a contract violation, not an implicit pass.
		return c.resolveFailure(traceID, "Scan response malformed: missing safe field", resp.StatusCode, err)
	}

	c.metrics.recordVerdict(v)
	c.logger.Debug("scan completed",
		zap.String("trace_id", traceID),
		zap.Bool("safe", v.Safe),
		zap.String("threat_type", string(v.ThreatType)),
	)
	return v, nil
}

// resolveFailure applies the fail-open/fail-closed policy exactly once at
// the point of detection. There are no retries.
func (c *Client) resolveFailure(traceID, reason string, status int, cause error) (*Verdict, error) {
	c.metrics.recordFailure(c.failMode)

	if c.failMode == FailClosed {
		c.logger.Warn("scan failure, failing closed",
			zap.String("trace_id", traceID),
			zap.String("reason", reason),
		)
		if cause == nil {
			cause = errors.New(reason)
		}
		return nil, &ScanError{StatusCode: status, Err: cause}
	}

	c.logger.Warn("scan failure, failing open",
		zap.String("trace_id", traceID),
		zap.String("reason", reason),
	)
	return &Verdict{Safe: true, Reason: reason}, nil
}
