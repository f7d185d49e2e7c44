package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ivo-toby/mcp-openapi-server/pkg/auth"
	"github.com/ivo-toby/mcp-openapi-server/pkg/executor"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
)

func sampleTool() *openapi2mcp.Tool {
	return &openapi2mcp.Tool{
		ID:           "GET::widgets",
		Name:         "get-widgets",
		Description:  "List widgets",
		InputSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
		HTTPMethod:   "GET",
		OriginalPath: "/widgets",
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Server, func()) {
	srv := httptest.NewServer(handler)
	registry := NewRegistry([]*openapi2mcp.Tool{sampleTool()}, false, nil)
	server := NewServer(registry, executor.NewClient(false), srv.URL, auth.NoopProvider{}, "test-server", "0.1.0")
	return server, srv.Close
}

func rawID(t *testing.T, v int) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDispatchInitialize(t *testing.T) {
	server, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	defer closeFn()

	resp := server.Dispatch(context.Background(), &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: rawID(t, 1), Method: "initialize"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(mcptypes.InitializeResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if result.ProtocolVersion != mcptypes.ProtocolVersion {
		t.Errorf("protocolVersion = %q", result.ProtocolVersion)
	}
}

func TestDispatchToolsList(t *testing.T) {
	server, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	defer closeFn()

	resp := server.Dispatch(context.Background(), &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: rawID(t, 1), Method: "tools/list"})
	result := resp.Result.(mcptypes.ListToolsResult)
	if len(result.Tools) != 1 || result.Tools[0].Name != "get-widgets" {
		t.Errorf("tools = %v", result.Tools)
	}
}

func TestDispatchToolsCallSuccess(t *testing.T) {
	server, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	defer closeFn()

	params, _ := json.Marshal(map[string]any{"name": "get-widgets", "arguments": map[string]any{}})
	resp := server.Dispatch(context.Background(), &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: rawID(t, 1), Method: "tools/call", Params: params})
	result := resp.Result.(*mcptypes.CallToolResult)
	if result.IsError {
		t.Fatalf("unexpected error result: %v", result.Content)
	}
	if !strings.Contains(result.Content[0].Text, "ok") {
		t.Errorf("content = %v", result.Content)
	}
}

func TestDispatchToolsCallUnknownTool(t *testing.T) {
	server, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	defer closeFn()

	params, _ := json.Marshal(map[string]any{"name": "does-not-exist", "arguments": map[string]any{}})
	resp := server.Dispatch(context.Background(), &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: rawID(t, 1), Method: "tools/call", Params: params})
	if resp.Error == nil {
		t.Fatalf("expected a JSON-RPC error for an unknown tool")
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	server, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	defer closeFn()

	resp := server.Dispatch(context.Background(), &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: rawID(t, 1), Method: "bogus/method"})
	if resp.Error == nil || resp.Error.Code != mcptypes.CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %v", resp.Error)
	}
}

func TestDispatchCustomToolTakesBackseatToOpenAPI(t *testing.T) {
	server, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from-openapi"))
	})
	defer closeFn()

	called := false
	server.Registry.RegisterCustom("get-widgets", "shadow", map[string]any{}, func(ctx context.Context, args map[string]any) (*mcptypes.CallToolResult, error) {
		called = true
		return mcptypes.TextResult("from-custom"), nil
	})

	params, _ := json.Marshal(map[string]any{"name": "get-widgets", "arguments": map[string]any{}})
	resp := server.Dispatch(context.Background(), &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: rawID(t, 1), Method: "tools/call", Params: params})
	result := resp.Result.(*mcptypes.CallToolResult)
	if called {
		t.Errorf("expected the OpenAPI tool to win the name collision")
	}
	if !strings.Contains(result.Content[0].Text, "from-openapi") {
		t.Errorf("content = %v", result.Content)
	}
}
