package openapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/openapi-mcp/internal/adapter/outbound/openapi"
)

func TestAutoDiscoverer_Discover(t *testing.T) {
	mux := http.NewServeMux()
	// A JSON error page at the first candidate must not be taken for a document.
	mux.HandleFunc("/api/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"not here"}`))
	})
	mux.HandleFunc("/api/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"swagger":"2.0","info":{"title":"t","version":"1"},"paths":{}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := openapi.NewAutoDiscoverer(server.Client(), testLogger())
	found, err := d.Discover(context.Background(), server.URL+"/api/", map[string]string{"X-Api-Key": "secret"})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/api/swagger.json", found)
}

func TestAutoDiscoverer_Resolve(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	d := openapi.NewAutoDiscoverer(server.Client(), testLogger())

	tests := []struct {
		name   string
		source string
	}{
		{name: "direct json document", source: server.URL + "/spec.json"},
		{name: "direct yaml document", source: server.URL + "/v1/api.yml"},
		{name: "path names swagger", source: server.URL + "/swagger"},
		{name: "base url without document falls back", source: server.URL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.source, d.Resolve(context.Background(), tt.source, nil))
		})
	}
}

func TestAutoDiscoverer_DiscoverRejectsRelativeBase(t *testing.T) {
	d := openapi.NewAutoDiscoverer(http.DefaultClient, testLogger())
	_, err := d.Discover(context.Background(), "/only/a/path", nil)
	assert.ErrorContains(t, err, "must be absolute")
}
