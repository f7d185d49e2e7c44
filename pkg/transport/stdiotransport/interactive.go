package stdiotransport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcpserver"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
)

// ServeInteractive runs a line-editing REPL for manually exercising the
// dispatcher during local development. It is not part of the MCP
// protocol surface a real client speaks; it exists purely as the
// --interactive debug convenience, gated behind that flag in pkg/config.
func ServeInteractive(ctx context.Context, server *mcpserver.Server, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "mcp> ",
		HistoryFile: "",
	})
	if err != nil {
		return fmt.Errorf("starting interactive shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "Interactive MCP debug shell. Enter a method name and, optionally, a JSON params object.")
	fmt.Fprintln(out, `Example: tools/call {"name":"get-widgets","arguments":{}}`)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		method, rawParams, _ := strings.Cut(line, " ")
		req := &mcptypes.JSONRPCRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: method}
		if rawParams != "" {
			req.Params = json.RawMessage(rawParams)
		}
		resp := server.Dispatch(ctx, req)
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(out, string(data))
	}
}
