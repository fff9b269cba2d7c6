package memrepo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/i2y/openapi-mcp/internal/domain"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

// Registry is the in-memory ToolRegistry built once at startup.
// It is never mutated after NewRegistry returns, so concurrent reads need no locking.
type Registry struct {
	tools  []domain.ToolDescriptor
	byName map[string]int
	logger *slog.Logger
}

var _ usecase.ToolRegistry = (*Registry)(nil)

// NewRegistry stores copies of tools in the given order.
// Empty or duplicate names are rejected.
func NewRegistry(tools []domain.ToolDescriptor, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		tools:  make([]domain.ToolDescriptor, 0, len(tools)),
		byName: make(map[string]int, len(tools)),
		logger: logger.With("component", "registry"),
	}

	for i, tool := range tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("tool at index %d: %w", i, errors.New("empty tool name"))
		}
		if _, dup := r.byName[tool.Name]; dup {
			r.logger.Error("Duplicate tool name", slog.String("tool_name", tool.Name))
			return nil, fmt.Errorf("duplicate tool name %q", tool.Name)
		}
		r.byName[tool.Name] = len(r.tools)
		r.tools = append(r.tools, tool.Clone())
	}

	r.logger.Info("Registered tools", slog.Int("count", len(r.tools)))
	return r, nil
}

// List returns every tool in load order.
func (r *Registry) List() []domain.ToolDescriptor {
	list := make([]domain.ToolDescriptor, len(r.tools))
	for i, tool := range r.tools {
		list[i] = tool.Clone()
	}
	r.logger.Debug("Listed tools from registry", slog.Int("count", len(list)))
	return list
}

// Find retrieves a tool by name.
func (r *Registry) Find(name string) (domain.ToolDescriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		r.logger.Debug("Tool not found", slog.String("tool_name", name))
		return domain.ToolDescriptor{}, false
	}
	return r.tools[i].Clone(), true
}
