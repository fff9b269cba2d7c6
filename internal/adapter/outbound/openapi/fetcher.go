package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/i2y/openapi-mcp/internal/domain"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

const (
	userAgent = "openapi-mcp/1.0"

	// maxDocumentBytes bounds a remote OpenAPI document.
	maxDocumentBytes = 32 << 20
)

// SchemaFetcher implements the usecase.SchemaFetcher interface for OpenAPI documents.
type SchemaFetcher struct {
	httpClient     *http.Client
	logger         *slog.Logger
	autoDiscoverer *AutoDiscoverer
	maxBytes       int64
}

var _ usecase.SchemaFetcher = (*SchemaFetcher)(nil)

// FetcherOption configures a SchemaFetcher.
type FetcherOption func(*SchemaFetcher)

// WithMaxDocumentBytes rejects remote documents larger than n bytes.
func WithMaxDocumentBytes(n int64) FetcherOption {
	return func(f *SchemaFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewSchemaFetcher creates a new OpenAPI SchemaFetcher.
func NewSchemaFetcher(client *http.Client, logger *slog.Logger, opts ...FetcherOption) *SchemaFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &SchemaFetcher{
		httpClient:     client,
		logger:         logger.With("component", "openapi_fetcher"),
		autoDiscoverer: NewAutoDiscoverer(client, logger),
		maxBytes:       maxDocumentBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch loads an OpenAPI document from a URL or local file path.
func (f *SchemaFetcher) Fetch(ctx context.Context, src string) (domain.APISchema, error) {
	return f.FetchWithConfig(ctx, usecase.SchemaSourceConfig{URL: src})
}

// FetchWithConfig loads an OpenAPI document, sending config.Headers when it is remote.
// Swagger 2.0 documents are converted to OpenAPI 3. Validation problems are logged, not fatal.
func (f *SchemaFetcher) FetchWithConfig(ctx context.Context, config usecase.SchemaSourceConfig) (domain.APISchema, error) {
	log := f.logger.With(slog.String("source", config.URL))
	log.Info("Fetching OpenAPI schema", slog.Int("header_count", len(config.Headers)))

	var (
		raw      []byte
		location *url.URL
		resolved = config.URL
		err      error
	)

	if u, parseErr := url.ParseRequestURI(config.URL); parseErr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		resolved = f.autoDiscoverer.Resolve(ctx, config.URL, config.Headers)
		if resolved != config.URL {
			log.Info("Auto-discovered OpenAPI schema", slog.String("resolved_url", resolved))
		}
		raw, err = f.download(ctx, resolved, config.Headers)
		if err != nil {
			log.Error("Failed to fetch schema from URL", slog.Any("error", err))
			return domain.APISchema{}, err
		}
		location, err = url.Parse(resolved)
		if err != nil {
			return domain.APISchema{}, fmt.Errorf("invalid schema URL %s: %w", resolved, err)
		}
	} else {
		log.Debug("Assuming local file path (headers ignored)")
		raw, err = os.ReadFile(config.URL)
		if err != nil {
			log.Error("Failed to read schema from file", slog.Any("error", err))
			return domain.APISchema{}, fmt.Errorf("failed to read schema from file %s: %w", config.URL, err)
		}
		location = &url.URL{Path: config.URL}
	}

	doc, err := f.parse(ctx, raw, location)
	if err != nil {
		log.Error("Failed to parse OpenAPI schema data", slog.Any("error", err))
		return domain.APISchema{}, fmt.Errorf("failed to parse OpenAPI schema from %s: %w", resolved, err)
	}

	if validateErr := doc.Validate(ctx); validateErr != nil {
		log.Warn("OpenAPI schema validation failed", slog.Any("validation_error", validateErr))
	}

	log.Info("Successfully fetched and parsed OpenAPI schema", slog.Int("path_count", doc.Paths.Len()))
	return domain.APISchema{
		Source:         config.URL,
		ResolvedSource: resolved,
		Type:           domain.SchemaTypeOpenAPI,
		RawData:        raw,
		ParsedData:     doc,
	}, nil
}

func (f *SchemaFetcher) download(ctx context.Context, src string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", src, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema from URL %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch schema from URL %s: status %s", src, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", src, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("document too large: %s exceeds %d bytes", src, f.maxBytes)
	}
	return body, nil
}

type versionProbe struct {
	Swagger string `json:"swagger" yaml:"swagger"`
	OpenAPI string `json:"openapi" yaml:"openapi"`
}

func (f *SchemaFetcher) parse(ctx context.Context, raw []byte, location *url.URL) (*openapi3.T, error) {
	var probe versionProbe
	if json.Unmarshal(raw, &probe) != nil {
		// Not JSON; a YAML failure is left to the loader to report.
		_ = yaml.Unmarshal(raw, &probe)
	}

	if probe.Swagger != "" && probe.OpenAPI == "" {
		f.logger.Info("Converting Swagger 2.0 document", slog.String("swagger", probe.Swagger))
		return convertSwagger2(raw)
	}

	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: true}
	return loader.LoadFromDataWithPath(raw, location)
}

func convertSwagger2(raw []byte) (*openapi3.T, error) {
	data := raw
	if !json.Valid(raw) {
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to decode Swagger 2.0 document: %w", err)
		}
		var err error
		if data, err = json.Marshal(stringKeys(tree)); err != nil {
			return nil, fmt.Errorf("failed to re-encode Swagger 2.0 document: %w", err)
		}
	}

	var doc2 openapi2.T
	if err := json.Unmarshal(data, &doc2); err != nil {
		return nil, fmt.Errorf("failed to decode Swagger 2.0 document: %w", err)
	}
	doc3, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, fmt.Errorf("failed to convert Swagger 2.0 document: %w", err)
	}
	return doc3, nil
}

// stringKeys rewrites YAML maps with non-string keys (e.g. unquoted status codes) so the
// tree can be encoded as JSON.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = stringKeys(child)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[fmt.Sprint(k)] = stringKeys(child)
		}
		return m
	case []any:
		for i, child := range t {
			t[i] = stringKeys(child)
		}
		return t
	default:
		return v
	}
}
