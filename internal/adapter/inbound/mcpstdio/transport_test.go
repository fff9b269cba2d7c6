package mcpstdio_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/openapi-mcp/internal/adapter/inbound/mcpserver"
	"github.com/i2y/openapi-mcp/internal/adapter/inbound/mcpstdio"
	"github.com/i2y/openapi-mcp/internal/auth"
	"github.com/i2y/openapi-mcp/internal/domain"
)

type staticLister []domain.ToolDescriptor

func (l staticLister) Execute(context.Context) []domain.ToolDescriptor { return l }

// echoCaller answers with the tool name and records the session it ran in.
type echoCaller struct {
	sessions chan string
}

func (c echoCaller) Execute(ctx context.Context, name string, args domain.ToolCallArguments) (*domain.InvocationResult, error) {
	if c.sessions != nil {
		var id string
		if authCtx, ok := auth.FromContext(ctx); ok {
			id = authCtx.SessionID
		}
		c.sessions <- id
	}
	return &domain.InvocationResult{StatusCode: 200, Body: name}, nil
}

func newTransport(in io.Reader, out io.Writer, caller echoCaller) *mcpstdio.Transport {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := mcpserver.New(mcp.Implementation{Name: "openapi-mcp", Version: "0.1.0"},
		staticLister{{Name: "echo", Method: "GET", PathTemplate: "/echo"}}, caller, logger)
	return mcpstdio.NewTransport(builder.Build(context.Background()), in, out, logger)
}

func TestTransport_Run(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"c","version":"1"},"capabilities":{}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo"}}`,
	}, "\n") + "\n"
	var out bytes.Buffer
	sessions := make(chan string, 1)

	err := newTransport(strings.NewReader(input), &out, echoCaller{sessions: sessions}).Run(ctx)
	require.NoError(t, err)

	var responses []map[string]any
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		responses = append(responses, m)
	}
	// One response per request; the notification produces none.
	require.Len(t, responses, 4)

	assert.EqualValues(1, responses[0]["id"])
	assert.Equal("2025-03-26", responses[0]["result"].(map[string]any)["protocolVersion"])

	tools := responses[1]["result"].(map[string]any)["tools"].([]any)
	assert.Equal("echo", tools[0].(map[string]any)["name"])

	assert.Nil(responses[2]["id"])
	assert.EqualValues(-32700, responses[2]["error"].(map[string]any)["code"])

	content := responses[3]["result"].(map[string]any)["content"].([]any)
	assert.Equal("echo", content[0].(map[string]any)["text"])

	assert.NotEmpty(<-sessions)
}

func TestTransport_RunReturnsWhenContextIsCancelled(t *testing.T) {
	// The writer end is never written to, so reads block until ctx is done.
	in, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newTransport(in, io.Discard, echoCaller{}).Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the context was cancelled")
	}
}
