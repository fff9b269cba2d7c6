package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/i2y/openapi-mcp/configs"
	"github.com/i2y/openapi-mcp/internal/adapter/inbound/mcphttp"
	"github.com/i2y/openapi-mcp/internal/adapter/inbound/mcpserver"
	"github.com/i2y/openapi-mcp/internal/adapter/inbound/mcpstdio"
	"github.com/i2y/openapi-mcp/internal/adapter/outbound/httpinvoker"
	"github.com/i2y/openapi-mcp/internal/adapter/outbound/memrepo"
	"github.com/i2y/openapi-mcp/internal/adapter/outbound/openapi"
	"github.com/i2y/openapi-mcp/internal/adapter/outbound/schemavalidator"
	"github.com/i2y/openapi-mcp/internal/binder"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

func newLogger(cfg *configs.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.ParsedLogLevel()}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func run(ctx context.Context, cfg *configs.Config, transport string) error {
	// === Logging ===
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", cfg.ParsedLogLevel().String()), slog.String("transport", transport))

	// === OpenTelemetry ===
	shutdownOtel, err := initOtelProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
		}
	}()

	// === Outbound HTTP client (fetcher + invoker) ===
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.HTTPClientTimeout
	logger.Debug("HTTP client configured.", slog.Duration("timeout", cfg.HTTPClientTimeout))

	// === Registry (loaded once, read-only afterwards) ===
	loadUC := usecase.NewLoadToolsUseCase(
		openapi.NewSchemaFetcher(httpClient, logger),
		openapi.NewToolGenerator(logger),
		logger,
		usecase.WithToolFilter(cfg.IncludeOperations, cfg.ExcludeOperations),
	)
	tools, err := loadUC.Execute(ctx, usecase.SchemaSourceConfig{URL: cfg.OpenAPIPath, Headers: cfg.OpenAPIHeaders})
	if err != nil {
		return err
	}
	registry, err := memrepo.NewRegistry(tools, logger)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}
	logger.Info("Tool registry ready.", slog.Int("tool_count", len(tools)))

	// === Use cases ===
	invoker := httpinvoker.New(httpClient, logger,
		httpinvoker.WithBearerForwarding(cfg.ForwardBearerToken),
		httpinvoker.WithDecodeJSON(cfg.DecodeJSONResponses),
	)
	var invokeOpts []usecase.InvokeOption
	if cfg.ValidateArguments {
		invokeOpts = append(invokeOpts, usecase.WithArgumentValidator(schemavalidator.New(logger)))
	}
	listUC := usecase.NewListToolsUseCase(registry, logger)
	invokeUC := usecase.NewInvokeToolUseCase(registry, binder.New(logger), invoker, cfg.BaseServerURL, logger, invokeOpts...)

	info := mcp.Implementation{Name: cfg.ServerName, Version: cfg.ServerVersion}
	builder := mcpserver.New(info, listUC, invokeUC, logger, mcpserver.WithErrorHook(func(err error) {
		logger.Error("[MCP Error]", slog.Any("error", err))
	}))

	// === Transport ===
	switch transport {
	case transportStdio:
		logger.Info("Starting in STDIO mode")
		return mcpstdio.NewTransport(builder.Build(ctx), os.Stdin, os.Stdout, logger).Run(ctx)
	default:
		return serveHTTP(ctx, cfg, builder, len(tools), logger)
	}
}

func serveHTTP(ctx context.Context, cfg *configs.Config, builder *mcpserver.Builder, toolCount int, logger *slog.Logger) error {
	handler := mcphttp.NewHandler(builder, logger,
		mcphttp.WithPath(cfg.MCPHTTPPath),
		mcphttp.WithHealthInfo(cfg.ServerName, toolCount),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("MCP HTTP server starting.", slog.String("address", server.Addr), slog.String("path", cfg.MCPHTTPPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("MCP HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
		}
		if err := handler.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MCP handler: %w", err))
		}
		if len(errs) == 0 {
			logger.Info("Server shut down gracefully.")
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
