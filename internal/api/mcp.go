package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store ConnectionStore
}

// NewMCPServer creates an MCP server with the tether tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tether",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tether — voice connection state manager: connect, disconnect, and audit channel membership."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("connect_channel",
			mcp.WithDescription("Record a connection to a voice channel, superseding any previous connection."),
			mcp.WithString("channel_id", mcp.Description("Channel identifier to connect to"), mcp.Required()),
			mcp.WithString("guild_id", mcp.Description("Optional guild (server) identifier")),
		),
		mcpConnectChannel(deps),
	)

	s.AddTool(
		mcp.NewTool("disconnect_channel",
			mcp.WithDescription("Clear the current connection, if any, and record the disconnect."),
		),
		mcpDisconnectChannel(deps),
	)

	s.AddTool(
		mcp.NewTool("connection_status",
			mcp.WithDescription("Return the current connection state as JSON."),
		),
		mcpConnectionStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("connection_history",
			mcp.WithDescription("Return recent connection history events, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 50)")),
		),
		mcpConnectionHistory(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"conn://history",
			"Connection History",
			mcp.WithResourceDescription("Recent connection history events as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpConnectChannel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channelID, err := req.RequireString("channel_id")
		if err != nil {
			return mcpError("channel_id is required"), nil
		}

		guildID := req.GetString("guild_id", "")

		if err := deps.Store.Connect(ctx, channelID, guildID); err != nil {
			return mcpError(fmt.Sprintf("connect failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Connected to channel %s", channelID)), nil
	}
}

func mcpDisconnectChannel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := deps.Store.Disconnect(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("disconnect failed: %v", err)), nil
		}

		if snap == nil {
			return mcpText("No active connection"), nil
		}
		return mcpText(fmt.Sprintf("Disconnected from channel %s", snap.ChannelID)), nil
	}
}

func mcpConnectionStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := deps.Store.Current(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("reading connection state: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"connected":  snap != nil,
			"connection": toConnectionJSON(snap),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpConnectionHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		events, err := deps.Store.RecentHistory(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("reading history: %v", err)), nil
		}

		if len(events) == 0 {
			return mcpText("[]"), nil
		}

		out := make([]historyEventJSON, len(events))
		for i, ev := range events {
			out[i] = historyEventJSON{
				ID:           ev.ID,
				ChannelID:    ev.ChannelID,
				GuildID:      ev.GuildID,
				Action:       string(ev.Action),
				Timestamp:    ev.Timestamp.Format(time.RFC3339),
				ErrorMessage: ev.ErrorMessage,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		events, err := deps.Store.RecentHistory(ctx, 50)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}

		out := make([]historyEventJSON, len(events))
		for i, ev := range events {
			out[i] = historyEventJSON{
				ID:           ev.ID,
				ChannelID:    ev.ChannelID,
				GuildID:      ev.GuildID,
				Action:       string(ev.Action),
				Timestamp:    ev.Timestamp.Format(time.RFC3339),
				ErrorMessage: ev.ErrorMessage,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
