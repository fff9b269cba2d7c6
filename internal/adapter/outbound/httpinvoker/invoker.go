package httpinvoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/i2y/openapi-mcp/internal/auth"
	"github.com/i2y/openapi-mcp/internal/domain"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

// DefaultMaxResponseBytes caps how much of an upstream response body is read.
const DefaultMaxResponseBytes int64 = 10 << 20

const defaultAccept = "application/json, */*"

// Invoker implements the usecase.ToolInvoker interface over net/http.
// Every call is a single attempt.
type Invoker struct {
	client           *http.Client
	logger           *slog.Logger
	forwardBearer    bool
	decodeJSON       bool
	maxResponseBytes int64
}

var _ usecase.ToolInvoker = (*Invoker)(nil)

// Option configures an Invoker.
type Option func(*Invoker)

// WithBearerForwarding sends the caller's bearer token upstream as Authorization
// unless the call already binds that header.
func WithBearerForwarding(enabled bool) Option {
	return func(i *Invoker) { i.forwardBearer = enabled }
}

// WithDecodeJSON returns JSON response bodies as json.RawMessage instead of text.
func WithDecodeJSON(enabled bool) Option {
	return func(i *Invoker) { i.decodeJSON = enabled }
}

// WithMaxResponseBytes overrides DefaultMaxResponseBytes.
func WithMaxResponseBytes(n int64) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.maxResponseBytes = n
		}
	}
}

// New creates a new HTTP Invoker. A nil client is replaced by a pooled go-cleanhttp client.
func New(client *http.Client, logger *slog.Logger, opts ...Option) *Invoker {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	i := &Invoker{
		client:           client,
		logger:           logger.With("component", "http_invoker"),
		maxResponseBytes: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke issues exactly one HTTP request for req against baseURL.
func (i *Invoker) Invoke(ctx context.Context, baseURL string, req *domain.BoundRequest) (*domain.InvocationResult, error) {
	log := i.logger.With(slog.String("method", req.Method), slog.String("path", req.Path))

	// --- 1. Target URL --- //
	target, err := targetURL(baseURL, req)
	if err != nil {
		log.Error("Failed to build target URL", slog.Any("error", err))
		return nil, &domain.HTTPError{Err: err}
	}
	log = log.With(slog.String("url", target))

	// --- 2. Body (never for read verbs) --- //
	var body io.Reader
	sendBody := req.HasBody && !domain.IsReadMethod(req.Method)
	if sendBody {
		data, err := json.Marshal(req.Body)
		if err != nil {
			log.Error("Failed to marshal request body", slog.Any("error", err))
			return nil, &domain.BindingError{Parameter: domain.BodyArgument, Reason: "request body is not JSON-encodable"}
		}
		body = bytes.NewReader(data)
	} else if req.HasBody {
		log.Debug("Dropping request body for read method")
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		log.Error("Failed to create HTTP request", slog.Any("error", err))
		return nil, &domain.HTTPError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	// --- 3. Headers --- //
	httpReq.Header.Set("Accept", defaultAccept)
	if sendBody {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if i.forwardBearer && httpReq.Header.Get("Authorization") == "" {
		if token := auth.TokenFromContext(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
			log.Debug("Forwarding caller bearer token")
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	// --- 4. Execute --- //
	log.Debug("Executing HTTP request")
	resp, err := i.client.Do(httpReq)
	if err != nil {
		log.Error("HTTP request failed", slog.Any("error", err))
		return nil, &domain.HTTPError{Err: err}
	}
	defer resp.Body.Close()

	log = log.With(slog.Int("status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, i.maxResponseBytes+1))
	if err != nil {
		log.Error("Failed to read response body", slog.Any("error", err))
		return nil, &domain.HTTPError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(raw)) > i.maxResponseBytes {
		log.Error("Response body too large", slog.Int64("limit", i.maxResponseBytes))
		return nil, &domain.HTTPError{Err: fmt.Errorf("response body exceeds %d bytes", i.maxResponseBytes)}
	}

	// --- 5. Result --- //
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("Received non-success status code", slog.String("response_body", string(raw)))
		return nil, &domain.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	contentType := resp.Header.Get("Content-Type")
	result := &domain.InvocationResult{StatusCode: resp.StatusCode, ContentType: contentType, Body: string(raw)}
	if i.decodeJSON && isJSON(contentType) && json.Valid(raw) {
		result.Body = json.RawMessage(raw)
	}
	log.Debug("Received HTTP response", slog.Int("size", len(raw)))
	return result, nil
}

// targetURL appends the bound path to base (trailing slashes trimmed) and the bound query,
// in order, after any query the base already carries.
func targetURL(baseURL string, req *domain.BoundRequest) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %s: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base URL %s: must be absolute", baseURL)
	}

	target := *base
	target.Path = strings.TrimRight(base.Path, "/") + req.Path
	target.RawPath = ""

	pairs := make([]string, 0, len(req.Query)+1)
	if base.RawQuery != "" {
		pairs = append(pairs, base.RawQuery)
	}
	for _, q := range req.Query {
		pairs = append(pairs, url.QueryEscape(q.Name)+"="+url.QueryEscape(q.Value))
	}
	target.RawQuery = strings.Join(pairs, "&")
	return target.String(), nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
