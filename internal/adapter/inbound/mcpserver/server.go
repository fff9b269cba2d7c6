// Package mcpserver builds mark3labs/mcp-go servers exposing the registered tools.
//
// Every tool shares one handler that forwards to the invoke use case. The HTTP
// transport builds a fresh server per request and the stdio transport builds one
// for the process lifetime.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/openapi-mcp/internal/domain"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

// ToolLister returns the registered tools.
type ToolLister interface {
	Execute(ctx context.Context) []domain.ToolDescriptor
}

// ToolCaller executes one tool call.
type ToolCaller interface {
	Execute(ctx context.Context, toolName string, args domain.ToolCallArguments) (*domain.InvocationResult, error)
}

// Builder assembles MCP servers for one tool registry.
type Builder struct {
	info   mcp.Implementation
	lister ToolLister
	caller ToolCaller
	logger *slog.Logger

	errorHook func(error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithErrorHook registers fn to observe protocol and tool failures.
func WithErrorHook(fn func(error)) Option {
	return func(b *Builder) { b.errorHook = fn }
}

// New creates a Builder announcing info.
func New(info mcp.Implementation, lister ToolLister, caller ToolCaller, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		info:   info,
		lister: lister,
		caller: caller,
		logger: logger.With("component", "mcp_server"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a new MCP server with every registered tool added.
func (b *Builder) Build(ctx context.Context) *mcpGoServer.MCPServer {
	descriptors := b.lister.Execute(ctx)
	order := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		order[d.Name] = i
	}

	hooks := &mcpGoServer.Hooks{}
	hooks.AddOnRequestInitialization(func(ctx context.Context, id any, message any) error {
		return rejectUnknownTool(order, message)
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		b.logger.Debug("Request failed", slog.String("method", string(method)), slog.Any("error", err))
		if b.errorHook != nil {
			b.errorHook(err)
		}
	})

	srv := mcpGoServer.NewMCPServer(b.info.Name, b.info.Version,
		mcpGoServer.WithToolCapabilities(false),
		mcpGoServer.WithRecovery(),
		mcpGoServer.WithHooks(hooks),
		mcpGoServer.WithToolFilter(registryOrder(order)),
	)

	tools := make([]mcpGoServer.ServerTool, 0, len(descriptors))
	for _, d := range descriptors {
		schema := d.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, mcpGoServer.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(d.Name, d.Description, schema),
			Handler: b.handleCall,
		})
	}
	srv.AddTools(tools...)
	return srv
}

func (b *Builder) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log := b.logger.With(slog.String("tool_name", req.Params.Name))

	result, err := b.caller.Execute(ctx, req.Params.Name, domain.ToolCallArguments(req.GetArguments()))
	if err != nil {
		log.Error("Error executing tool", slog.Any("error", err))
		return nil, &CallError{Err: err}
	}

	text, err := RenderBody(result.Body)
	if err != nil {
		log.Error("Failed to render tool result", slog.Any("error", err))
		return nil, &CallError{Err: err}
	}
	return mcp.NewToolResultText(text), nil
}

// rejectUnknownTool fails tools/call requests naming a tool outside the registry,
// which mcp-go then reports as InvalidRequest. Calls without a name are left to mcp-go.
func rejectUnknownTool(known map[string]int, message any) error {
	raw, ok := message.(json.RawMessage)
	if !ok {
		return nil
	}
	var call struct {
		Method mcp.MCPMethod `json:"method"`
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if json.Unmarshal(raw, &call) != nil || call.Method != mcp.MethodToolsCall || call.Params.Name == "" {
		return nil
	}
	if _, ok := known[call.Params.Name]; !ok {
		return &usecase.UnknownToolError{Name: call.Params.Name}
	}
	return nil
}

// registryOrder restores load order, mcp-go lists tools sorted by name.
func registryOrder(order map[string]int) mcpGoServer.ToolFilterFunc {
	return func(_ context.Context, tools []mcp.Tool) []mcp.Tool {
		sorted := make([]mcp.Tool, len(tools))
		copy(sorted, tools)
		slices.SortStableFunc(sorted, func(a, b mcp.Tool) int {
			return order[a.Name] - order[b.Name]
		})
		return sorted
	}
}

// CallError is a failed tool call. Its message is what the client receives.
type CallError struct {
	Err error
}

func (e *CallError) Error() string {
	return "Failed to execute tool: " + failureMessage(e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// failureMessage is the message of the innermost typed failure.
func failureMessage(err error) string {
	var httpErr *domain.HTTPError
	if errors.As(err, &httpErr) {
		return "HTTP request failed: " + httpErr.Error()
	}
	var bindErr *domain.BindingError
	if errors.As(err, &bindErr) {
		return bindErr.Error()
	}
	return err.Error()
}

// RenderBody turns an invocation result body into tool text. Strings pass through;
// raw JSON keeps its key order and is indented by two spaces; other values are
// marshaled with the same indentation.
func RenderBody(body any) (string, error) {
	switch v := body.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		var buf bytes.Buffer
		if err := json.Indent(&buf, v, "", "  "); err != nil {
			return string(v), nil
		}
		return strings.TrimSpace(buf.String()), nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		return string(data), nil
	}
}
