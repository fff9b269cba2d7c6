package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/i2y/openapi-mcp/internal/auth"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "Bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "Lowercase scheme", header: "bearer abc123", want: "abc123"},
		{name: "Extra whitespace", header: "  Bearer   abc123  ", want: "abc123"},
		{name: "Basic scheme ignored", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "Scheme only", header: "Bearer", want: ""},
		{name: "Missing header", header: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, auth.BearerToken(h))
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	_, ok := auth.FromContext(ctx)
	assert.False(ok)
	assert.Equal("", auth.TokenFromContext(ctx))

	ctx = auth.WithContext(ctx, &auth.Context{Token: "tok", SessionID: "s-1"})
	got, ok := auth.FromContext(ctx)
	assert.True(ok)
	assert.Equal("s-1", got.SessionID)
	assert.Equal("tok", auth.TokenFromContext(ctx))
}
