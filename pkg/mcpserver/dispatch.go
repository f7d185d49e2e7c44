package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ivo-toby/mcp-openapi-server/pkg/auth"
	"github.com/ivo-toby/mcp-openapi-server/pkg/executor"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
)

// Server answers the core MCP JSON-RPC methods against a Registry,
// issuing outbound calls through the shared executor client and auth
// provider.
type Server struct {
	Registry   *Registry
	Client     *http.Client
	BaseURL    string
	Provider   auth.Provider
	Name       string
	Version    string
}

// NewServer wires a Registry to the outbound HTTP machinery. provider may
// be nil, in which case calls proceed unauthenticated.
func NewServer(registry *Registry, client *http.Client, baseURL string, provider auth.Provider, name, version string) *Server {
	if provider == nil {
		provider = auth.NoopProvider{}
	}
	return &Server{Registry: registry, Client: client, BaseURL: baseURL, Provider: provider, Name: name, Version: version}
}

// Dispatch routes one JSON-RPC request to its handler and returns the
// response to send back. Notifications (no id) are still processed but
// the caller should not write the returned response to the wire.
func (s *Server) Dispatch(ctx context.Context, req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "prompts/list":
		return s.handlePromptsList(req)
	case "prompts/get":
		return s.handlePromptsGet(req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	default:
		return mcptypes.NewError(req.ID, mcptypes.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *Server) handleInitialize(req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	result := mcptypes.InitializeResult{
		ProtocolVersion: mcptypes.ProtocolVersion,
		Capabilities: mcptypes.Capabilities{
			Tools:     map[string]interface{}{},
			Prompts:   map[string]interface{}{},
			Resources: map[string]interface{}{},
		},
		ServerInfo: mcptypes.ServerInfo{Name: s.Name, Version: s.Version},
	}
	return mcptypes.NewResult(req.ID, result)
}

func (s *Server) handleToolsList(req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	entries := s.Registry.List()
	tools := make([]mcptypes.Tool, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, mcptypes.Tool{
			Name:        e.Name,
			Description: e.Description,
			InputSchema: e.InputSchema,
		})
	}
	return mcptypes.NewResult(req.ID, mcptypes.ListToolsResult{Tools: tools})
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcptypes.NewError(req.ID, mcptypes.CodeInvalidParams, "malformed tools/call params")
	}

	entry, ok := s.Registry.Lookup(params.Name)
	if !ok {
		return mcptypes.NewError(req.ID, mcptypes.CodeInvalidParams, mcperr.New(mcperr.ToolNotFound, fmt.Sprintf("no tool named %q", params.Name)).Error())
	}

	result, callErr := s.invoke(ctx, entry, params.Arguments)
	if callErr != nil {
		return mcptypes.NewResult(req.ID, mcptypes.ErrorResult(callErr.Error()))
	}
	return mcptypes.NewResult(req.ID, result)
}

// invoke performs the dispatcher's single branch on ToolEntry.Kind.
func (s *Server) invoke(ctx context.Context, entry *ToolEntry, args map[string]any) (*mcptypes.CallToolResult, *mcperr.Error) {
	switch entry.Kind {
	case KindOpenAPI:
		return s.invokeOpenAPI(ctx, entry.OpenAPI, args)
	case KindMeta:
		return s.invokeMeta(ctx, entry.Meta, args)
	case KindCustom:
		result, err := entry.Custom(ctx, args)
		if err != nil {
			return nil, mcperr.Wrap(mcperr.Internal, err, "custom tool handler failed")
		}
		return result, nil
	default:
		return nil, mcperr.New(mcperr.Internal, "unreachable tool kind")
	}
}

// invokeOpenAPI binds args against tool's parametersMeta and performs the
// one outbound HTTP transaction it describes.
func (s *Server) invokeOpenAPI(ctx context.Context, tool *openapi2mcp.Tool, args map[string]any) (*mcptypes.CallToolResult, *mcperr.Error) {
	bound, bindErr := executor.Bind(tool, args)
	if bindErr != nil {
		return nil, bindErr
	}
	result, execErr := executor.Execute(ctx, s.Client, s.BaseURL, bound, s.Provider)
	if execErr != nil {
		return nil, execErr
	}
	if result.IsError {
		return mcptypes.ErrorResult(result.Text), nil
	}
	return mcptypes.TextResult(result.Text), nil
}

func (s *Server) handlePromptsList(req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	return mcptypes.NewResult(req.ID, mcptypes.ListPromptsResult{Prompts: s.Registry.prompts})
}

func (s *Server) handlePromptsGet(req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcptypes.NewError(req.ID, mcptypes.CodeInvalidParams, "malformed prompts/get params")
	}
	for _, p := range s.Registry.prompts {
		if strings.EqualFold(p.Name, params.Name) {
			return mcptypes.NewResult(req.ID, mcptypes.GetPromptResult{Description: p.Description})
		}
	}
	return mcptypes.NewError(req.ID, mcptypes.CodeInvalidParams, fmt.Sprintf("no prompt named %q", params.Name))
}

func (s *Server) handleResourcesList(req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	return mcptypes.NewResult(req.ID, mcptypes.ListResourcesResult{Resources: s.Registry.resources})
}

func (s *Server) handleResourcesRead(req *mcptypes.JSONRPCRequest) *mcptypes.JSONRPCResponse {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcptypes.NewError(req.ID, mcptypes.CodeInvalidParams, "malformed resources/read params")
	}
	for _, r := range s.Registry.resources {
		if r.URI == params.URI {
			return mcptypes.NewResult(req.ID, mcptypes.ReadResourceResult{
				Contents: []mcptypes.ResourceContent{{URI: r.URI, MimeType: r.MimeType}},
			})
		}
	}
	return mcptypes.NewError(req.ID, mcptypes.CodeInvalidParams, fmt.Sprintf("no resource with uri %q", params.URI))
}
