package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/tether/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{Store: store}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ConnectChannel(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpConnectChannel(deps)

	req := makeCallToolRequest("connect_channel", map[string]interface{}{
		"channel_id": "chan-1",
		"guild_id":   "guild-1",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	snap, err := store.Current(context.Background())
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if snap == nil || snap.ChannelID != "chan-1" {
		t.Fatalf("unexpected state: %+v", snap)
	}
}

func TestMCPTool_ConnectChannel_MissingArg(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpConnectChannel(deps)

	req := makeCallToolRequest("connect_channel", map[string]interface{}{})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing channel_id")
	}
}

func TestMCPTool_ConnectChannel_EmptyChannel(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpConnectChannel(deps)

	req := makeCallToolRequest("connect_channel", map[string]interface{}{
		"channel_id": "   ",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for blank channel_id")
	}
}

func TestMCPTool_DisconnectChannel(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	if err := store.Connect(context.Background(), "chan-1", ""); err != nil {
		t.Fatalf("seeding connection: %v", err)
	}

	handler := mcpDisconnectChannel(deps)
	result, err := handler(context.Background(), makeCallToolRequest("disconnect_channel", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "Disconnected from channel chan-1" {
		t.Fatalf("unexpected response: %s", text)
	}

	// Second disconnect is a no-op.
	result, err = handler(context.Background(), makeCallToolRequest("disconnect_channel", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "No active connection" {
		t.Fatalf("unexpected response: %s", text)
	}
}

func TestMCPTool_ConnectionStatus(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpConnectionStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("connection_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var status struct {
		Connected  bool            `json:"connected"`
		Connection *connectionJSON `json:"connection"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status.Connected {
		t.Fatal("expected disconnected on fresh store")
	}

	if err := store.Connect(context.Background(), "chan-1", "guild-1"); err != nil {
		t.Fatalf("seeding connection: %v", err)
	}

	result, err = handler(context.Background(), makeCallToolRequest("connection_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !status.Connected || status.Connection == nil || status.Connection.ChannelID != "chan-1" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestMCPTool_ConnectionHistory(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpConnectionHistory(deps)

	// Empty history.
	result, err := handler(context.Background(), makeCallToolRequest("connection_history", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}

	for _, ch := range []string{"chan-1", "chan-2"} {
		if err := store.Connect(context.Background(), ch, ""); err != nil {
			t.Fatalf("seeding connection: %v", err)
		}
	}

	result, err = handler(context.Background(), makeCallToolRequest("connection_history", map[string]interface{}{
		"limit": 2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []historyEventJSON
	if err := json.Unmarshal([]byte(toolText(t, result)), &events); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != "CONNECT" || events[0].ChannelID != "chan-2" {
		t.Fatalf("unexpected newest event: %+v", events[0])
	}
}

func TestMCPResource_History(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	if err := store.Connect(context.Background(), "chan-1", ""); err != nil {
		t.Fatalf("seeding connection: %v", err)
	}

	handler := mcpResourceHistory(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("conn://history"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var events []historyEventJSON
	if err := json.Unmarshal([]byte(tc.Text), &events); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Action != "CONNECT" {
		t.Fatalf("unexpected action: %s", events[0].Action)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	connectHandler := mcpConnectChannel(deps)
	statusHandler := mcpConnectionStatus(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := makeCallToolRequest("connect_channel", map[string]interface{}{
				"channel_id": "concurrent-chan",
			})
			_, err := connectHandler(context.Background(), req)
			if err != nil {
				errs <- err
			}
		}(i)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := statusHandler(context.Background(), makeCallToolRequest("connection_status", nil))
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}
