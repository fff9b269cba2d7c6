package mcphttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
)

// MaxRequestBytes bounds a single JSON-RPC message.
const MaxRequestBytes = 4 << 20

// DefaultPath is where the MCP endpoint is mounted.
const DefaultPath = "/mcp"

// ServerBuilder builds the MCP server answering one request.
type ServerBuilder interface {
	Build(ctx context.Context) *mcpGoServer.MCPServer
}

// Handler serves MCP over stateless streamable HTTP. Each POST gets its own Session
// with a fresh protocol server, so concurrent callers never share request IDs or tokens.
type Handler struct {
	builder   ServerBuilder
	path      string
	service   string
	toolCount int
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithPath mounts the MCP endpoint at path instead of DefaultPath.
func WithPath(path string) Option {
	return func(h *Handler) {
		if path != "" {
			h.path = path
		}
	}
}

// WithHealthInfo sets what GET /health reports.
func WithHealthInfo(service string, toolCount int) Option {
	return func(h *Handler) {
		h.service = service
		h.toolCount = toolCount
	}
}

// NewHandler creates a Handler building one protocol server per request with builder.
func NewHandler(builder ServerBuilder, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		builder:  builder,
		path:     DefaultPath,
		logger:   logger.With("component", "mcphttp_handler"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up the MCP and health routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+h.path, h.handlePost)
	mux.HandleFunc("GET "+h.path, h.handleNotAllowed)
	mux.HandleFunc("DELETE "+h.path, h.handleNotAllowed)
	mux.HandleFunc("GET /health", h.handleHealth)
}

// Close tears down live sessions and rejects later requests. Safe to call more than once.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	live := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
	h.logger.Info("MCP handler closed", slog.Int("closed_sessions", len(live)))
	return nil
}

// ActiveSessions reports how many requests are currently in flight.
func (h *Handler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Handler) openSession(r *http.Request) (*Session, bool) {
	s := newSession(r.Context(), h.builder.Build(r.Context()), h.path, logAdapter{h.logger}, h.forget)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.sessions[s.ID] = s
	return s, true
}

func (h *Handler) forget(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	session, ok := h.openSession(r)
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, mcp.INTERNAL_ERROR, "Server is shutting down")
		return
	}
	stop := context.AfterFunc(r.Context(), session.Close)
	defer func() {
		stop()
		session.Close()
	}()

	h.logger.Debug("Serving MCP request", slog.String("session_id", session.ID), slog.String("remote_addr", r.RemoteAddr))
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	session.serve(w, r)
}

func (h *Handler) handleNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	h.writeError(w, http.StatusMethodNotAllowed, mcp.METHOD_NOT_FOUND, "Method not allowed.")
}

func (h *Handler) writeError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := mcp.NewJSONRPCError(mcp.NewRequestId(nil), code, message, nil)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to write JSON-RPC error", slog.Any("error", err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"service": h.service,
		"tools":   h.toolCount,
	})
	if err != nil {
		h.logger.Error("Failed to write health response", slog.Any("error", err))
	}
}

// logAdapter routes mcp-go transport logs into slog.
type logAdapter struct {
	logger *slog.Logger
}

func (l logAdapter) Infof(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l logAdapter) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}
