package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/tether/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestConnectCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /connection": `{"status":"connected","channel_id":"chan-1"}`,
	})

	client := ts.client()

	body := map[string]string{"channel_id": "chan-1", "guild_id": "guild-1"}
	resp, err := client.post(ctx, "/connection", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["status"] != "connected" {
		t.Errorf("status = %q, want %q", result["status"], "connected")
	}
	if result["channel_id"] != "chan-1" {
		t.Errorf("channel_id = %q, want %q", result["channel_id"], "chan-1")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Path != "/connection" {
		t.Errorf("path = %q, want /connection", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var sentBody map[string]any
	if err := json.Unmarshal([]byte(r.Body), &sentBody); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sentBody["channel_id"] != "chan-1" {
		t.Errorf("body.channel_id = %v, want chan-1", sentBody["channel_id"])
	}
	if sentBody["guild_id"] != "guild-1" {
		t.Errorf("body.guild_id = %v, want guild-1", sentBody["guild_id"])
	}
}

func TestConnectCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"connect"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing channel-id argument")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestDisconnectCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /connection": `{"disconnected":true,"connection":{"channel_id":"chan-1"}}`,
	})

	client := ts.client()
	resp, err := client.delete(ctx, "/connection")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Disconnected bool `json:"disconnected"`
		Connection   *struct {
			ChannelID string `json:"channel_id"`
		} `json:"connection"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if !result.Disconnected {
		t.Error("expected disconnected=true")
	}
	if result.Connection == nil || result.Connection.ChannelID != "chan-1" {
		t.Errorf("unexpected connection: %+v", result.Connection)
	}
}

func TestHistoryCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /history": `[{"id":2,"channel_id":"chan-1","action":"DISCONNECT","timestamp":"2025-01-01T00:01:00Z"},{"id":1,"channel_id":"chan-1","action":"CONNECT","timestamp":"2025-01-01T00:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/history?limit=50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []historyEvent
	if err := decodeJSON(resp, &events); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != "DISCONNECT" || events[0].ID != 2 {
		t.Errorf("unexpected first event: %+v", events[0])
	}
}

func TestHistoryExportFormat(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /history": `[{"id":1,"channel_id":"chan-1","action":"CONNECT","timestamp":"2025-01-01T00:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/history?limit=500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []historyEvent
	if err := decodeJSON(resp, &events); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("expected 1 JSONL line, got %d", len(lines))
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("invalid JSONL: %v", err)
	}
	if record["action"] != "CONNECT" {
		t.Errorf("action = %v, want CONNECT", record["action"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/connection")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4610
	cfg.Heartbeat.Interval = "15s"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4610" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4610 in ShowAll output")
	}
}
