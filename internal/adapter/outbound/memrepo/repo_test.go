package memrepo_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/openapi-mcp/internal/adapter/outbound/memrepo"
	"github.com/i2y/openapi-mcp/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNewRegistry(t *testing.T) {
	tool1 := domain.ToolDescriptor{Name: "tool1", Method: "GET", PathTemplate: "/one"}
	tool2 := domain.ToolDescriptor{Name: "tool2", Method: "POST", PathTemplate: "/two"}

	tests := []struct {
		name      string
		inTools   []domain.ToolDescriptor
		wantErr   string
		wantNames []string
	}{
		{
			name:      "Single tool",
			inTools:   []domain.ToolDescriptor{tool1},
			wantNames: []string{"tool1"},
		},
		{
			name:      "Load order preserved",
			inTools:   []domain.ToolDescriptor{tool2, tool1},
			wantNames: []string{"tool2", "tool1"},
		},
		{
			name:      "Empty list",
			inTools:   nil,
			wantNames: []string{},
		},
		{
			name:    "Duplicate names rejected",
			inTools: []domain.ToolDescriptor{tool1, tool1},
			wantErr: `duplicate tool name "tool1"`,
		},
		{
			name:    "Empty name rejected",
			inTools: []domain.ToolDescriptor{tool1, {Method: "GET"}},
			wantErr: "tool at index 1: empty tool name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			repo, err := memrepo.NewRegistry(tt.inTools, testLogger())
			if tt.wantErr != "" {
				assert.EqualError(err, tt.wantErr)
				assert.Nil(repo)
				return
			}
			require.NoError(t, err)
			names := make([]string, 0, len(tt.wantNames))
			for _, tool := range repo.List() {
				names = append(names, tool.Name)
			}
			assert.Equal(tt.wantNames, names)
		})
	}
}

func TestRegistry_Find(t *testing.T) {
	assert := assert.New(t)

	tool := domain.ToolDescriptor{
		Name: "getPet", Method: "GET", PathTemplate: "/pets/{id}",
		Parameters: []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath, Required: true}},
	}
	repo, err := memrepo.NewRegistry([]domain.ToolDescriptor{tool}, testLogger())
	require.NoError(t, err)

	found, ok := repo.Find("getPet")
	assert.True(ok)
	assert.Equal(tool, found)

	_, ok = repo.Find("missing")
	assert.False(ok)
}

func TestRegistry_CopyIsolation(t *testing.T) {
	assert := assert.New(t)

	in := []domain.ToolDescriptor{{
		Name: "getPet", Method: "GET", PathTemplate: "/pets/{id}",
		Parameters:  []domain.ParameterDescriptor{{Name: "id", In: domain.ParameterInPath}},
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}}
	repo, err := memrepo.NewRegistry(in, testLogger())
	require.NoError(t, err)

	// Mutating the input after construction must not leak in.
	in[0].Parameters[0].Name = "mutated"

	// Mutating returned values must not leak back.
	listed := repo.List()
	listed[0].Parameters[0].Name = "mutated"
	listed[0].InputSchema[0] = '['

	found, _ := repo.Find("getPet")
	found.Parameters[0].Name = "mutated"

	again, ok := repo.Find("getPet")
	assert.True(ok)
	assert.Equal("id", again.Parameters[0].Name)
	assert.JSONEq(`{"type":"object"}`, string(again.InputSchema))
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	tools := []domain.ToolDescriptor{
		{Name: "a", Method: "GET", PathTemplate: "/a"},
		{Name: "b", Method: "GET", PathTemplate: "/b"},
	}
	repo, err := memrepo.NewRegistry(tools, testLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := repo.Find("b")
			assert.True(t, ok)
			assert.Len(t, repo.List(), 2)
		}()
	}
	wg.Wait()
}
