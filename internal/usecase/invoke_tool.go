package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/openapi-mcp/internal/domain"
)

const instrumentationName = "github.com/i2y/openapi-mcp/internal/usecase"

// InvokeToolUseCase drives a tool call: lookup, bind, invoke.
type InvokeToolUseCase struct {
	registry  ToolRegistry
	binder    RequestBinder
	invoker   ToolInvoker
	validator ArgumentValidator
	baseURL   string
	logger    *slog.Logger

	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// InvokeOption configures an InvokeToolUseCase.
type InvokeOption func(*InvokeToolUseCase)

// WithArgumentValidator validates arguments against the tool input schema before binding.
func WithArgumentValidator(v ArgumentValidator) InvokeOption {
	return func(uc *InvokeToolUseCase) { uc.validator = v }
}

// NewInvokeToolUseCase creates a new InvokeToolUseCase targeting baseURL.
func NewInvokeToolUseCase(registry ToolRegistry, binder RequestBinder, invoker ToolInvoker, baseURL string, logger *slog.Logger, opts ...InvokeOption) *InvokeToolUseCase {
	uc := &InvokeToolUseCase{
		registry: registry,
		binder:   binder,
		invoker:  invoker,
		baseURL:  baseURL,
		logger:   logger.With("usecase", "InvokeTool"),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(uc)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	uc.calls, err = meter.Int64Counter("mcp.tool.calls",
		metric.WithDescription("Number of tool calls by outcome."))
	if err != nil {
		uc.logger.Warn("Failed to create tool call counter", slog.Any("error", err))
	}
	uc.duration, err = meter.Float64Histogram("mcp.tool.duration",
		metric.WithDescription("Duration of tool calls."),
		metric.WithUnit("s"))
	if err != nil {
		uc.logger.Warn("Failed to create tool duration histogram", slog.Any("error", err))
	}
	return uc
}

// Operation resolves a tool by name into its Invocable.
func (uc *InvokeToolUseCase) Operation(name string) (*Operation, error) {
	tool, ok := uc.registry.Find(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return &Operation{
		tool:      tool,
		baseURL:   uc.baseURL,
		binder:    uc.binder,
		validator: uc.validator,
		invoker:   uc.invoker,
	}, nil
}

// Execute looks the tool up, binds the arguments and performs the upstream call.
// Lookup and binding failures return before any HTTP request is issued.
func (uc *InvokeToolUseCase) Execute(ctx context.Context, toolName string, args domain.ToolCallArguments) (*domain.InvocationResult, error) {
	log := uc.logger.With(slog.String("tool_name", toolName))
	start := time.Now()

	ctx, span := uc.tracer.Start(ctx, "tools/call",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("mcp.tool.name", toolName)))
	defer span.End()

	result, err := uc.execute(ctx, log, toolName, args)

	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("http.response.status_code", result.StatusCode))
	}
	attrs := metric.WithAttributes(
		attribute.String("mcp.tool.name", toolName),
		attribute.String("outcome", outcome))
	if uc.calls != nil {
		uc.calls.Add(ctx, 1, attrs)
	}
	if uc.duration != nil {
		uc.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return result, err
}

func (uc *InvokeToolUseCase) execute(ctx context.Context, log *slog.Logger, toolName string, args domain.ToolCallArguments) (*domain.InvocationResult, error) {
	log.Info("Executing tool invocation")

	// 1. Lookup
	op, err := uc.Operation(toolName)
	if err != nil {
		log.Warn("Tool definition not found")
		return nil, err
	}
	tool := op.Descriptor()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("http.request.method", tool.Method),
		attribute.String("url.template", tool.PathTemplate))

	// 2. Bind
	bound, err := op.Bind(args)
	if err != nil {
		log.Warn("Failed to bind tool arguments", slog.Any("error", err))
		return nil, fmt.Errorf("failed to bind arguments for tool %s: %w", toolName, err)
	}

	// 3. Invoke
	log.Info("Invoking upstream service", slog.String("method", bound.Method), slog.String("path", bound.Path))
	result, err := op.Invoke(ctx, bound)
	if err != nil {
		log.Error("Failed to invoke upstream tool", slog.Any("error", err))
		return nil, fmt.Errorf("failed to invoke tool %s: %w", toolName, err)
	}
	if result == nil {
		result = &domain.InvocationResult{Body: ""}
	}

	log.Info("Tool invocation successful", slog.Int("status_code", result.StatusCode))
	return result, nil
}

type kinded interface {
	Kind() domain.ErrorKind
}

func outcomeOf(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return string(k.Kind())
	}
	return "error"
}
