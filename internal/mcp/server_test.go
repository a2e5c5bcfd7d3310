package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, cfg Config) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := NewServer(cfg)
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()

	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestServerListsToolsAndDocs(t *testing.T) {
	cs := connect(t, Config{TransportMode: "stdio"})

	tools, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"create_question", "answer_question", "get_register_status", "sync_register"} {
		require.True(t, names[want], want)
	}

	res, err := cs.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "qaregister://docs/sync-states"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "resource_locked")
}

func TestServerCallToolUsesDefaultTenantAndMetaActor(t *testing.T) {
	var tenant string
	var got qa.CreateRequest
	cs := connect(t, Config{
		TransportMode: "stdio",
		Services: Services{
			Projects: defaultProjects(),
			Questions: questionStub{createFn: func(_ context.Context, tenantID string, req qa.CreateRequest) (*qa.Record, error) {
				tenant = tenantID
				got = req
				return &qa.Record{ID: "q1", FormattedNumber: "FS01"}, nil
			}},
		},
	})

	params := &sdkmcp.CallToolParams{
		Name:      "create_question",
		Arguments: map[string]any{"title": "Door", "question": "Width?"},
		Meta:      sdkmcp.Meta{"actor": "Karin"},
	}
	res, err := cs.CallTool(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, DefaultTenant, tenant)
	require.Equal(t, "Karin", got.Actor)

	text := res.Content[0].(*sdkmcp.TextContent).Text
	var rec qa.Record
	require.NoError(t, json.Unmarshal([]byte(text), &rec))
	require.Equal(t, "FS01", rec.FormattedNumber)
}

func TestServerCallToolReportsDomainErrorsInBand(t *testing.T) {
	cs := connect(t, Config{
		TransportMode: "stdio",
		Services: Services{Questions: questionStub{getFn: func(context.Context, string, string) (*qa.Record, error) {
			return nil, qa.ErrRecordNotFound
		}}},
	})

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      "get_question",
		Arguments: map[string]any{"id": "nope"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, res.Content[0].(*sdkmcp.TextContent).Text, "QUESTION_NOT_FOUND")
}
