package schemavalidator

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/i2y/openapi-mcp/internal/domain"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

// Validator checks tool call arguments against the tool's input schema.
// Compiled schemas are cached per tool name; tools never change after startup.
type Validator struct {
	logger  *slog.Logger
	schemas sync.Map // tool name -> *gojsonschema.Schema
}

var _ usecase.ArgumentValidator = (*Validator)(nil)

// New creates a Validator.
func New(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("component", "schema_validator")}
}

// Validate returns a *domain.BindingError naming the first offending field.
// Tools without an input schema accept anything.
func (v *Validator) Validate(tool domain.ToolDescriptor, args domain.ToolCallArguments) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}
	schema, err := v.compiled(tool)
	if err != nil {
		// Uncompilable schemas are not enforced.
		v.logger.Warn("Skipping validation, input schema does not compile",
			slog.String("tool_name", tool.Name), slog.Any("error", err))
		return nil
	}

	doc := map[string]any(args)
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &domain.BindingError{Tool: tool.Name, Parameter: "arguments", Reason: "arguments are not JSON-encodable"}
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	v.logger.Debug("Arguments failed validation", slog.String("tool_name", tool.Name), slog.Any("errors", msgs))

	first := errs[0]
	return &domain.BindingError{
		Tool:      tool.Name,
		Parameter: fmt.Sprintf("%s (%s)", first.Field(), strings.TrimSpace(first.Description())),
		Reason:    "invalid argument",
	}
}

func (v *Validator) compiled(tool domain.ToolDescriptor) (*gojsonschema.Schema, error) {
	if cached, ok := v.schemas.Load(tool.Name); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
	if err != nil {
		return nil, err
	}
	actual, _ := v.schemas.LoadOrStore(tool.Name, schema)
	return actual.(*gojsonschema.Schema), nil
}
