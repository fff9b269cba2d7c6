package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/i2y/openapi-mcp/internal/domain"
)

// LoadToolsUseCase fetches the OpenAPI document once and derives the tool descriptors from it.
type LoadToolsUseCase struct {
	fetcher   SchemaFetcher
	generator ToolGenerator
	include   []string
	exclude   []string
	logger    *slog.Logger
}

// LoadOption configures a LoadToolsUseCase.
type LoadOption func(*LoadToolsUseCase)

// WithToolFilter keeps only tools named in include (when non-empty) and drops tools named in exclude.
func WithToolFilter(include, exclude []string) LoadOption {
	return func(uc *LoadToolsUseCase) {
		uc.include = include
		uc.exclude = exclude
	}
}

// NewLoadToolsUseCase creates a new LoadToolsUseCase.
func NewLoadToolsUseCase(fetcher SchemaFetcher, generator ToolGenerator, logger *slog.Logger, opts ...LoadOption) *LoadToolsUseCase {
	uc := &LoadToolsUseCase{
		fetcher:   fetcher,
		generator: generator,
		logger:    logger.With("usecase", "LoadTools"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute fetches the schema and generates its tools. Every failure is a *domain.SpecLoadError.
func (uc *LoadToolsUseCase) Execute(ctx context.Context, source SchemaSourceConfig) ([]domain.ToolDescriptor, error) {
	log := uc.logger.With(slog.String("source", source.URL))
	log.Info("Starting tool load")

	if source.URL == "" {
		return nil, &domain.SpecLoadError{Source: source.URL, Err: errors.New("no OpenAPI location configured")}
	}

	// 1. Fetch
	schema, err := uc.fetcher.FetchWithConfig(ctx, source)
	if err != nil {
		log.Error("Failed to fetch schema", slog.Any("error", err))
		return nil, &domain.SpecLoadError{Source: source.URL, Err: fmt.Errorf("failed to fetch schema: %w", err)}
	}
	if schema.Type != "" && schema.Type != domain.SchemaTypeOpenAPI {
		log.Error("Unsupported schema type", slog.String("schema_type", string(schema.Type)))
		return nil, &domain.SpecLoadError{Source: source.URL, Err: fmt.Errorf("unsupported schema type: %s", schema.Type)}
	}
	log.Info("Schema fetched successfully", slog.String("resolved_source", schema.ResolvedSource))

	// 2. Generate
	tools, err := uc.generator.Generate(schema)
	if err != nil {
		log.Error("Failed to generate tools", slog.Any("error", err))
		return nil, &domain.SpecLoadError{Source: source.URL, Err: fmt.Errorf("failed to generate tools: %w", err)}
	}

	// 3. Filter
	tools = uc.filter(tools)
	if len(tools) == 0 {
		log.Warn("No tools were generated from the schema")
	}

	log.Info("Successfully loaded tools", slog.Int("tool_count", len(tools)))
	return tools, nil
}

func (uc *LoadToolsUseCase) filter(tools []domain.ToolDescriptor) []domain.ToolDescriptor {
	if len(uc.include) == 0 && len(uc.exclude) == 0 {
		return tools
	}
	kept := make([]domain.ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if len(uc.include) > 0 && !slices.Contains(uc.include, tool.Name) {
			continue
		}
		if slices.Contains(uc.exclude, tool.Name) {
			uc.logger.Debug("Excluding tool", slog.String("tool_name", tool.Name))
			continue
		}
		kept = append(kept, tool)
	}
	return kept
}
