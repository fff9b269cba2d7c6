// Package mcpstdio serves MCP as line-delimited JSON-RPC over stdin/stdout.
package mcpstdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/openapi-mcp/internal/auth"
)

// Transport connects one MCP server to a reader/writer pair.
// The whole process lifetime is a single session.
type Transport struct {
	server    *mcpGoServer.MCPServer
	reader    io.Reader
	writer    io.Writer
	logger    *slog.Logger
	sessionID string
}

// NewTransport creates a new Transport instance.
func NewTransport(server *mcpGoServer.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) *Transport {
	return &Transport{
		server:    server,
		reader:    in,
		writer:    out,
		logger:    logger.With("component", "mcpstdio"),
		sessionID: uuid.NewString(),
	}
}

// Run serves requests until the input closes or ctx is done.
// Tool calls run on a single worker so their responses keep arrival order.
func (t *Transport) Run(ctx context.Context) error {
	stdio := mcpGoServer.NewStdioServer(t.server)
	stdio.SetErrorLogger(slog.NewLogLogger(t.logger.Handler(), slog.LevelError))
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return auth.WithContext(ctx, &auth.Context{SessionID: t.sessionID})
	})
	mcpGoServer.WithWorkerPoolSize(1)(stdio)

	t.logger.Info("Serving MCP over stdio", slog.String("session_id", t.sessionID))
	err := stdio.Listen(ctx, t.reader, t.writer)
	switch {
	case ctx.Err() != nil:
		t.logger.Info("Context done, stopping stdio transport")
		return nil
	case err == nil || errors.Is(err, io.EOF):
		t.logger.Info("Input closed, stopping stdio transport")
		return nil
	default:
		return fmt.Errorf("stdio transport failed: %w", err)
	}
}
