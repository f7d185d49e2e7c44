package httptransport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcpserver"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
)

const sessionHeader = "Mcp-Session-Id"

// Options configures a Transport.
type Options struct {
	// Path is the JSON-RPC endpoint path, default "/mcp".
	Path string
	// AllowedOrigins, when non-empty, is the allow-list an incoming
	// Origin header must match, defending against DNS-rebinding attacks
	// from a browser-based client. Empty means no Origin header is ever
	// present in practice, or the operator has chosen not to enforce it.
	AllowedOrigins []string
	// IdleTTL overrides DefaultIdleTTL for the session-cleanup sweep.
	IdleTTL time.Duration
}

// Transport serves the MCP streamable HTTP protocol over a
// mcpserver.Server's Dispatch method.
type Transport struct {
	server   *mcpserver.Server
	sessions *sessionTable
	path     string
	origins  map[string]bool
}

// New builds a Transport bound to server.
func New(server *mcpserver.Server, opts Options) *Transport {
	path := opts.Path
	if path == "" {
		path = "/mcp"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	origins := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[o] = true
	}
	return &Transport{
		server:   server,
		sessions: newSessionTable(opts.IdleTTL),
		path:     path,
		origins:  origins,
	}
}

// Close sends an SSE "close" event to any attached stream and stops the
// session-cleanup goroutine.
func (t *Transport) Close() {
	t.sessions.closeAll()
	t.sessions.stop()
}

// ServeHTTP implements http.Handler, routing /health and the configured
// MCP endpoint path.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		t.handleHealth(w, r)
		return
	}
	if r.URL.Path != t.path {
		http.NotFound(w, r)
		return
	}
	if !t.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGetStream(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(t.origins) == 0 {
		return true
	}
	return t.origins[origin]
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if base, _, _ := strings.Cut(contentType, ";"); base != "application/json" {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.writeJSONRPCError(w, nil, mcptypes.CodeParseError, "failed to read request body")
		return
	}

	var peek struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		t.writeJSONRPCError(w, nil, mcptypes.CodeParseError, "request body is not valid JSON-RPC")
		return
	}
	isInitialize := peek.Method == "initialize"

	var sess *session
	var sessionID string
	if isInitialize {
		sess = t.sessions.create()
		sessionID = sess.id
	} else {
		sessionID = r.Header.Get(sessionHeader)
		if sessionID == "" {
			http.Error(w, "missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		s, ok := t.sessions.get(sessionID)
		if !ok {
			http.Error(w, "unknown or expired session", http.StatusBadRequest)
			return
		}
		sess = s
		sess.touch()
	}

	var req mcptypes.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.writeJSONRPCError(w, peek.ID, mcptypes.CodeParseError, "malformed JSON-RPC request")
		return
	}

	resp := t.server.Dispatch(r.Context(), &req)
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	frame, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}

	if isInitialize {
		w.Header().Set(sessionHeader, sessionID)
	}
	sess.enqueue(frame)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

func (t *Transport) handleGetStream(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "expected Accept: text/event-stream", http.StatusBadRequest)
		return
	}
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess, ok := t.sessions.get(sessionID)
	if !ok {
		http.Error(w, "unknown or expired session", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, attached := sess.attachStream()
	if !attached {
		http.Error(w, "a stream is already attached to this session", http.StatusConflict)
		return
	}
	defer sess.detachStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case frame := <-ch:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
			flusher.Flush()
			sess.touch()
		case <-sess.closedSignal():
			fmt.Fprintf(w, "event: close\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	if !t.sessions.terminate(sessionID) {
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (t *Transport) writeJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(mcptypes.NewError(id, code, message))
}
