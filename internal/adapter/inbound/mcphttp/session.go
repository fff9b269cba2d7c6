package mcphttp

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/mcp-go/util"

	"github.com/i2y/openapi-mcp/internal/auth"
)

// Session is the per-request pairing of a fresh MCP server and its stateless
// streamable HTTP front. It is closed exactly once, either when the handler
// returns or when the client disconnects.
type Session struct {
	ID         string
	streamable *mcpGoServer.StreamableHTTPServer

	ctx    context.Context
	cancel context.CancelFunc

	once    sync.Once
	onClose func(id string)
}

func newSession(parent context.Context, server *mcpGoServer.MCPServer, path string, logger util.Logger, onClose func(id string)) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		onClose: onClose,
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.streamable = mcpGoServer.NewStreamableHTTPServer(server,
		mcpGoServer.WithStateLess(true),
		mcpGoServer.WithDisableStreaming(true),
		mcpGoServer.WithEndpointPath(path),
		mcpGoServer.WithHTTPContextFunc(s.requestContext),
		mcpGoServer.WithLogger(logger),
	)
	return s
}

// requestContext carries the caller's bearer token to the invoker.
func (s *Session) requestContext(ctx context.Context, r *http.Request) context.Context {
	return auth.WithContext(ctx, &auth.Context{
		Token:     auth.BearerToken(r.Header),
		SessionID: s.ID,
	})
}

func (s *Session) serve(w http.ResponseWriter, r *http.Request) {
	s.streamable.ServeHTTP(w, r.WithContext(s.ctx))
}

// Close cancels in-flight work and releases the session. Later calls are no-ops.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.streamable.Shutdown(context.Background())
		if s.onClose != nil {
			s.onClose(s.ID)
		}
	})
}
