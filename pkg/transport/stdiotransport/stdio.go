// Package stdiotransport serves the MCP dispatcher over newline-delimited
// JSON-RPC frames on stdin/stdout, the transport a client launches as a
// subprocess rather than connecting to over HTTP.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcpserver"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
)

// maxLineBytes bounds a single JSON-RPC frame read from stdin, mirroring
// the executor's outbound body cap as a defence against an unbounded
// line exhausting memory.
const maxLineBytes = 50 * 1024 * 1024

// Serve reads newline-delimited JSON-RPC requests from r, dispatches each
// through server, and writes the corresponding newline-delimited
// responses to w. It returns when r reaches EOF, or when a line arrives
// after ctx has been cancelled (ctx is checked before each frame, not
// while waiting for input).
// Notifications (requests with no id) are dispatched but produce no
// output line.
func Serve(ctx context.Context, server *mcpserver.Server, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req mcptypes.JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			logf("malformed frame: %v", err)
			writeFrame(w, mcptypes.NewError(nil, mcptypes.CodeParseError, "malformed JSON-RPC request"))
			continue
		}

		resp := server.Dispatch(ctx, &req)
		if req.IsNotification() {
			continue
		}
		if err := writeFrame(w, resp); err != nil {
			return fmt.Errorf("writing response frame: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logf("stdin read error: %v", err)
		return err
	}
	return nil
}

func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// logf routes transport-level diagnostics the same way the rest of the
// ambient stack does: plain log.Printf, since stdout is reserved for
// protocol frames.
func logf(format string, args ...any) {
	log.Printf("[stdio] "+format, args...)
}
