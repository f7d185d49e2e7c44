package httptransport

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ivo-toby/mcp-openapi-server/pkg/auth"
	"github.com/ivo-toby/mcp-openapi-server/pkg/executor"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcpserver"
)

func newTestTransport() *Transport {
	registry := mcpserver.NewRegistry(nil, false, nil)
	server := mcpserver.NewServer(registry, executor.NewClient(false), "http://upstream.invalid", auth.NoopProvider{}, "test", "0.0.1")
	return New(server, Options{})
}

func postJSON(t *testing.T, srv *httptest.Server, sessionID string, body map[string]any) *http.Response {
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSessionLifecycle(t *testing.T) {
	tr := newTestTransport()
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	initResp := postJSON(t, srv, "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"})
	if initResp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d", initResp.StatusCode)
	}
	sessionID := initResp.Header.Get(sessionHeader)
	if sessionID == "" {
		t.Fatalf("expected Mcp-Session-Id header on initialize response")
	}
	initResp.Body.Close()

	listResp := postJSON(t, srv, sessionID, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "tools/list"})
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("tools/list status = %d", listResp.StatusCode)
	}
	listResp.Body.Close()

	delReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	delReq.Header.Set(sessionHeader, sessionID)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatal(err)
	}
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", delResp.StatusCode)
	}
	delResp.Body.Close()

	afterDelete := postJSON(t, srv, sessionID, map[string]any{"jsonrpc": "2.0", "id": 3, "method": "tools/list"})
	if afterDelete.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 after session termination, got %d", afterDelete.StatusCode)
	}
	afterDelete.Body.Close()
}

func TestNonInitializeRequestWithoutSessionRejected(t *testing.T) {
	tr := newTestTransport()
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	resp := postJSON(t, srv, "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestContentTypeGate(t *testing.T) {
	tr := newTestTransport()
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tr := newTestTransport()
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("health body = %v", body)
	}
}

func TestCloseSendsSSECloseEvent(t *testing.T) {
	tr := newTestTransport()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	initResp := postJSON(t, srv, "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"})
	sessionID := initResp.Header.Get(sessionHeader)
	initResp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	req.Header.Set(sessionHeader, sessionID)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	lines := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	tr.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-lines:
			if line == "event: close" {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for SSE close event")
		}
	}
}

func TestOriginRejected(t *testing.T) {
	registry := mcpserver.NewRegistry(nil, false, nil)
	server := mcpserver.NewServer(registry, executor.NewClient(false), "http://upstream.invalid", auth.NoopProvider{}, "test", "0.0.1")
	tr := New(server, Options{AllowedOrigins: []string{"https://allowed.example"}})
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}
