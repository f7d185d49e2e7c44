package stdiotransport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ivo-toby/mcp-openapi-server/pkg/auth"
	"github.com/ivo-toby/mcp-openapi-server/pkg/executor"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcpserver"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
)

func TestServeDispatchesLineDelimitedFrames(t *testing.T) {
	registry := mcpserver.NewRegistry(nil, false, nil)
	server := mcpserver.NewServer(registry, executor.NewClient(false), "http://upstream.invalid", auth.NoopProvider{}, "test", "0.0.1")

	input := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
	var output bytes.Buffer

	if err := Serve(context.Background(), server, input, &output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp mcptypes.JSONRPCResponse
	if err := json.Unmarshal(bytes.TrimSpace(output.Bytes()), &resp); err != nil {
		t.Fatalf("failed to parse output line: %v (output: %q)", err, output.String())
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %v", resp.Error)
	}
}

func TestServeSkipsNotifications(t *testing.T) {
	registry := mcpserver.NewRegistry(nil, false, nil)
	server := mcpserver.NewServer(registry, executor.NewClient(false), "http://upstream.invalid", auth.NoopProvider{}, "test", "0.0.1")

	input := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var output bytes.Buffer

	if err := Serve(context.Background(), server, input, &output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Len() != 0 {
		t.Errorf("expected no output for a notification, got %q", output.String())
	}
}

func TestServeReportsMalformedFrame(t *testing.T) {
	registry := mcpserver.NewRegistry(nil, false, nil)
	server := mcpserver.NewServer(registry, executor.NewClient(false), "http://upstream.invalid", auth.NoopProvider{}, "test", "0.0.1")

	input := strings.NewReader("not json\n")
	var output bytes.Buffer

	if err := Serve(context.Background(), server, input, &output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp mcptypes.JSONRPCResponse
	if err := json.Unmarshal(bytes.TrimSpace(output.Bytes()), &resp); err != nil {
		t.Fatalf("failed to parse output line: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcptypes.CodeParseError {
		t.Errorf("expected CodeParseError, got %v", resp.Error)
	}
}
