package binder_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/openapi-mcp/internal/binder"
	"github.com/i2y/openapi-mcp/internal/domain"
)

func newTestBinder() *binder.Binder {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return binder.New(logger)
}

func TestBinder_Bind(t *testing.T) {
	tests := []struct {
		name        string
		tool        domain.ToolDescriptor
		args        domain.ToolCallArguments
		wantPath    string
		wantQuery   []domain.QueryParam
		wantHeaders map[string]string
		wantBody    any
		wantHasBody bool
		wantErrParm string
	}{
		{
			name: "Both placeholder styles from one argument",
			tool: domain.ToolDescriptor{
				Name: "getOrders", Method: "get", PathTemplate: "/users/{id}/orders/:id",
				Parameters: []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath, Required: true}},
			},
			args:        domain.ToolCallArguments{"id": "42"},
			wantPath:    "/users/42/orders/42",
			wantHeaders: map[string]string{},
		},
		{
			name: "Numeric argument coerced",
			tool: domain.ToolDescriptor{
				Name: "getUser", Method: "GET", PathTemplate: "/users/{id}",
				Parameters: []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath, Required: true}},
			},
			args:        domain.ToolCallArguments{"id": float64(7)},
			wantPath:    "/users/7",
			wantHeaders: map[string]string{},
		},
		{
			name: "Colon placeholder does not match longer identifier",
			tool: domain.ToolDescriptor{
				Name: "nested", Method: "GET", PathTemplate: "/a/:idx/b/:id",
				Parameters: []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath, Required: true}},
			},
			args:        domain.ToolCallArguments{"id": "1"},
			wantPath:    "/a/:idx/b/1",
			wantHeaders: map[string]string{},
		},
		{
			name: "Query and header in declaration order, missing query omitted",
			tool: domain.ToolDescriptor{
				Name: "search", Method: "GET", PathTemplate: "/search",
				Parameters: []domain.ParameterDescriptor{
					{Name: "q", In: domain.ParameterInQuery},
					{Name: "page", In: domain.ParameterInQuery},
					{Name: "limit", In: domain.ParameterInQuery},
					{Name: "X-Trace", In: domain.ParameterInHeader},
				},
			},
			args:        domain.ToolCallArguments{"limit": 10, "q": "go", "X-Trace": "t-1"},
			wantPath:    "/search",
			wantQuery:   []domain.QueryParam{{Name: "q", Value: "go"}, {Name: "limit", Value: "10"}},
			wantHeaders: map[string]string{"X-Trace": "t-1"},
		},
		{
			name: "Extra arguments are ignored",
			tool: domain.ToolDescriptor{
				Name: "ping", Method: "GET", PathTemplate: "/ping",
			},
			args:        domain.ToolCallArguments{"q": "x", "X-Header": "y"},
			wantPath:    "/ping",
			wantHeaders: map[string]string{},
		},
		{
			name: "Unknown location skipped without failing",
			tool: domain.ToolDescriptor{
				Name: "withCookie", Method: "GET", PathTemplate: "/items",
				Parameters: []domain.ParameterDescriptor{
					{Name: "session", In: "cookie"},
					{Name: "q", In: domain.ParameterInQuery},
				},
			},
			args:        domain.ToolCallArguments{"session": "abc", "q": "z"},
			wantPath:    "/items",
			wantQuery:   []domain.QueryParam{{Name: "q", Value: "z"}},
			wantHeaders: map[string]string{},
		},
		{
			name: "Body captured for POST",
			tool: domain.ToolDescriptor{Name: "create", Method: "POST", PathTemplate: "/items"},
			args: domain.ToolCallArguments{
				domain.BodyArgument: map[string]any{"name": "widget", "tags": []any{"a", "b"}},
			},
			wantPath:    "/items",
			wantHeaders: map[string]string{},
			wantBody:    map[string]any{"name": "widget", "tags": []any{"a", "b"}},
			wantHasBody: true,
		},
		{
			name: "Missing required path parameter",
			tool: domain.ToolDescriptor{
				Name: "getUser", Method: "GET", PathTemplate: "/users/{id}",
				Parameters: []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath, Required: true}},
			},
			args:        domain.ToolCallArguments{},
			wantErrParm: "id",
		},
		{
			name: "Null required path parameter treated as missing",
			tool: domain.ToolDescriptor{
				Name: "getUser", Method: "GET", PathTemplate: "/users/{id}",
				Parameters: []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath, Required: true}},
			},
			args:        domain.ToolCallArguments{"id": nil},
			wantErrParm: "id",
		},
		{
			name: "Missing optional path parameter keeps placeholder",
			tool: domain.ToolDescriptor{
				Name: "getItem", Method: "GET", PathTemplate: "/items/{itemID}",
				Parameters: []domain.ParameterDescriptor{{Name: "itemID", In: domain.ParameterInPath}},
			},
			args:        domain.ToolCallArguments{},
			wantPath:    "/items/{itemID}",
			wantHeaders: map[string]string{},
		},
	}

	b := newTestBinder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			bound, err := b.Bind(tt.tool, tt.args)
			if tt.wantErrParm != "" {
				require.Error(err)
				var bindErr *domain.BindingError
				require.ErrorAs(err, &bindErr)
				assert.Equal(tt.wantErrParm, bindErr.Parameter)
				assert.Equal(domain.KindBinding, bindErr.Kind())
				assert.Contains(err.Error(), "required path parameter missing")
				assert.Nil(bound)
				return
			}

			require.NoError(err)
			assert.Equal(tt.wantPath, bound.Path)
			assert.Equal(tt.wantQuery, bound.Query)
			assert.Equal(tt.wantHeaders, bound.Headers)
			assert.Equal(tt.wantBody, bound.Body)
			assert.Equal(tt.wantHasBody, bound.HasBody)
		})
	}
}

func TestBinder_MethodUpperCased(t *testing.T) {
	bound, err := newTestBinder().Bind(domain.ToolDescriptor{Name: "t", Method: "patch", PathTemplate: "/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "PATCH", bound.Method)
}

func TestBinder_BoundRequestDoesNotAliasArguments(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	body := map[string]any{"name": "before", "nested": map[string]any{"k": "v"}}
	args := domain.ToolCallArguments{"q": "first", domain.BodyArgument: body}
	tool := domain.ToolDescriptor{
		Name: "update", Method: "PUT", PathTemplate: "/items",
		Parameters: []domain.ParameterDescriptor{{Name: "q", In: domain.ParameterInQuery}},
	}

	bound, err := newTestBinder().Bind(tool, args)
	require.NoError(err)

	body["name"] = "after"
	body["nested"].(map[string]any)["k"] = "changed"
	args["q"] = "second"

	gotBody := bound.Body.(map[string]any)
	assert.Equal("before", gotBody["name"])
	assert.Equal("v", gotBody["nested"].(map[string]any)["k"])
	assert.Equal([]domain.QueryParam{{Name: "q", Value: "first"}}, bound.Query)
}

func TestBinder_GetBodyStillPermitted(t *testing.T) {
	bound, err := newTestBinder().Bind(
		domain.ToolDescriptor{Name: "list", Method: "GET", PathTemplate: "/list"},
		domain.ToolCallArguments{domain.BodyArgument: "ignored upstream"},
	)
	require.NoError(t, err)
	assert.True(t, bound.HasBody)
	assert.Equal(t, "ignored upstream", bound.Body)
}
