package usecase

import (
	"context"
	"log/slog"

	"github.com/i2y/openapi-mcp/internal/domain"
)

// ListToolsUseCase answers tools/list from the registry snapshot.
type ListToolsUseCase struct {
	registry ToolRegistry
	logger   *slog.Logger
}

// NewListToolsUseCase creates a new ListToolsUseCase.
func NewListToolsUseCase(registry ToolRegistry, logger *slog.Logger) *ListToolsUseCase {
	return &ListToolsUseCase{
		registry: registry,
		logger:   logger.With("usecase", "ListTools"),
	}
}

// Execute returns every registered tool in load order. It performs no I/O and cannot fail.
func (uc *ListToolsUseCase) Execute(ctx context.Context) []domain.ToolDescriptor {
	tools := uc.registry.List()
	uc.logger.DebugContext(ctx, "Listed tools", slog.Int("count", len(tools)))
	return tools
}
