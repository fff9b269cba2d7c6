package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/i2y/openapi-mcp/internal/domain"
)

// Standard errors returned by use cases and adapters.
var (
	ErrToolNotFound = errors.New("tool not found")
)

// UnknownToolError is returned when a call names a tool the registry does not hold.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Tool %s not found", e.Name)
}

func (e *UnknownToolError) Unwrap() error { return ErrToolNotFound }

func (e *UnknownToolError) Kind() domain.ErrorKind { return domain.KindUnknownTool }

// --- Spec loading ---

// SchemaSourceConfig represents a schema source with optional fetch headers.
type SchemaSourceConfig struct {
	URL     string
	Headers map[string]string
}

// SchemaFetcher loads an API schema document from a file path or URL.
type SchemaFetcher interface {
	Fetch(ctx context.Context, source string) (domain.APISchema, error)
	FetchWithConfig(ctx context.Context, config SchemaSourceConfig) (domain.APISchema, error)
}

// ToolGenerator derives tool descriptors, in a deterministic order, from a fetched schema.
type ToolGenerator interface {
	Generate(schema domain.APISchema) ([]domain.ToolDescriptor, error)
}

// --- Registry ---

// ToolRegistry is the read-only view of the tools loaded at startup.
// Implementations must be safe for concurrent reads.
type ToolRegistry interface {
	// List returns every tool in load order.
	List() []domain.ToolDescriptor
	// Find returns the tool with the given name.
	Find(name string) (domain.ToolDescriptor, bool)
}

// --- Invocation ---

// RequestBinder maps call arguments onto a BoundRequest.
type RequestBinder interface {
	Bind(tool domain.ToolDescriptor, args domain.ToolCallArguments) (*domain.BoundRequest, error)
}

// ArgumentValidator checks call arguments against a tool's input schema before binding.
// A failure must be reported as a *domain.BindingError.
type ArgumentValidator interface {
	Validate(tool domain.ToolDescriptor, args domain.ToolCallArguments) error
}

// ToolInvoker executes a bound request against the wrapped API. It never retries.
type ToolInvoker interface {
	Invoke(ctx context.Context, baseURL string, req *domain.BoundRequest) (*domain.InvocationResult, error)
}

// Invocable is the capability every tool exposes: bind arguments, then invoke the bound request.
type Invocable interface {
	Bind(args domain.ToolCallArguments) (*domain.BoundRequest, error)
	Invoke(ctx context.Context, req *domain.BoundRequest) (*domain.InvocationResult, error)
}
