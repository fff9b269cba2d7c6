package usecase

import (
	"context"

	"github.com/i2y/openapi-mcp/internal/domain"
)

// Operation is the generic Invocable built from a descriptor's method, path template and parameters.
// One implementation serves every tool; nothing is attached per tool at load time.
type Operation struct {
	tool      domain.ToolDescriptor
	baseURL   string
	binder    RequestBinder
	validator ArgumentValidator
	invoker   ToolInvoker
}

var _ Invocable = (*Operation)(nil)

// Descriptor returns the tool the operation was built from.
func (o *Operation) Descriptor() domain.ToolDescriptor {
	return o.tool
}

// Bind validates (when a validator is configured) and binds args.
func (o *Operation) Bind(args domain.ToolCallArguments) (*domain.BoundRequest, error) {
	if o.validator != nil {
		if err := o.validator.Validate(o.tool, args); err != nil {
			return nil, err
		}
	}
	return o.binder.Bind(o.tool, args)
}

// Invoke issues exactly one upstream request for req.
func (o *Operation) Invoke(ctx context.Context, req *domain.BoundRequest) (*domain.InvocationResult, error) {
	return o.invoker.Invoke(ctx, o.baseURL, req)
}
