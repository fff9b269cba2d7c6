package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// discoveryPaths are the document locations popular frameworks publish, probed in order.
var discoveryPaths = []string{
	"/openapi.json",            // FastAPI
	"/docs/openapi.json",       // FastAPI behind /docs
	"/swagger.json",            // Swagger 2.0
	"/v3/api-docs",             // SpringDoc
	"/api-docs",                // SpringFox
	"/api/openapi.json",
	"/api/v1/openapi.json",
	"/swagger/v1/swagger.json", // ASP.NET
	"/openapi.yaml",
}

const probeTimeout = 5 * time.Second

var errNoDocument = errors.New("no OpenAPI document found")

// AutoDiscoverer turns a service base URL into the URL of its OpenAPI document.
type AutoDiscoverer struct {
	client *http.Client
	logger *slog.Logger
}

// NewAutoDiscoverer creates an AutoDiscoverer probing with client.
func NewAutoDiscoverer(client *http.Client, logger *slog.Logger) *AutoDiscoverer {
	return &AutoDiscoverer{client: client, logger: logger.With("component", "openapi_autodiscoverer")}
}

// looksLikeDocument reports whether source already names a document rather than a base URL.
func looksLikeDocument(source string) bool {
	lower := strings.ToLower(source)
	if u, err := url.Parse(lower); err == nil {
		lower = u.Path
	}
	for _, suffix := range []string{".json", ".yaml", ".yml"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	for _, marker := range []string{"openapi", "swagger", "api-docs"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Resolve returns the document URL for source. Direct document URLs come back unchanged.
// When probing finds nothing, source is returned and the download reports the failure.
func (d *AutoDiscoverer) Resolve(ctx context.Context, source string, headers map[string]string) string {
	log := d.logger.With(slog.String("source", source))
	if looksLikeDocument(source) {
		log.Debug("Source names a document, skipping discovery")
		return source
	}

	log.Info("Source looks like a base URL, probing for an OpenAPI document")
	found, err := d.Discover(ctx, source, headers)
	if err != nil {
		log.Warn("Discovery failed, falling back to source", slog.Any("error", err))
		return source
	}
	return found
}

// Discover probes discoveryPaths below base and returns the first URL serving a document.
// The base path is kept, so "http://host/api" probes "http://host/api/openapi.json".
func (d *AutoDiscoverer) Discover(ctx context.Context, base string, headers map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %s: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %s: must be absolute", base)
	}

	for _, p := range discoveryPaths {
		candidate := *u
		candidate.Path = strings.TrimRight(u.Path, "/") + p
		candidate.RawPath = ""
		target := candidate.String()

		ok, err := d.probe(ctx, target, headers)
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			d.logger.Debug("Probe failed", slog.String("url", target), slog.Any("error", err))
		case ok:
			d.logger.Info("Discovered OpenAPI document", slog.String("url", target))
			return target, nil
		}
	}
	return "", fmt.Errorf("%w below %s", errNoDocument, base)
}

// probe accepts a candidate answering 200 with a JSON or YAML media type whose body
// carries an "openapi" or "swagger" version field.
func (d *AutoDiscoverer) probe(ctx context.Context, target string, headers map[string]string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json, application/vnd.oai.openapi+json, application/yaml")
	req.Header.Set("User-Agent", userAgent)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !isDocumentMedia(resp.Header.Get("Content-Type")) {
		return false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return false, err
	}
	return hasVersionField(body), nil
}

func isDocumentMedia(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.Contains(mediaType, "json") || strings.Contains(mediaType, "yaml")
}

func hasVersionField(raw []byte) bool {
	var probe versionProbe
	if json.Unmarshal(raw, &probe) != nil {
		_ = yaml.Unmarshal(raw, &probe)
	}
	return probe.OpenAPI != "" || probe.Swagger != ""
}
