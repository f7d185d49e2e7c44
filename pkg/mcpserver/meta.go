package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ivo-toby/mcp-openapi-server/pkg/executor"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
)

// invokeMeta answers one of the three fixed dynamic-mode meta-tools,
// backed by the same executor as an ordinary OpenAPI tool.
func (s *Server) invokeMeta(ctx context.Context, kind MetaKind, args map[string]any) (*mcptypes.CallToolResult, *mcperr.Error) {
	if s.Registry.Doc == nil {
		return nil, mcperr.New(mcperr.Internal, "dynamic mode requires the full document to be attached to the registry")
	}
	switch kind {
	case MetaListEndpoints:
		return s.listAPIEndpoints()
	case MetaGetSchema:
		return s.getAPIEndpointSchema(args)
	case MetaInvokeEndpoint:
		return s.invokeAPIEndpoint(ctx, args)
	default:
		return nil, mcperr.New(mcperr.Internal, fmt.Sprintf("unknown meta-tool %q", kind))
	}
}

type endpointSummary struct {
	Path    string `json:"path"`
	Method  string `json:"method"`
	Summary string `json:"summary"`
}

func (s *Server) listAPIEndpoints() (*mcptypes.CallToolResult, *mcperr.Error) {
	tools := s.Registry.Doc.AllTools
	summaries := make([]endpointSummary, 0, len(tools))
	for _, t := range tools {
		summaries = append(summaries, endpointSummary{Path: t.OriginalPath, Method: t.HTTPMethod, Summary: t.Description})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Path != summaries[j].Path {
			return summaries[i].Path < summaries[j].Path
		}
		return summaries[i].Method < summaries[j].Method
	})
	data, err := json.Marshal(summaries)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.Internal, err, "marshalling endpoint list")
	}
	return mcptypes.TextResult(string(data)), nil
}

func (s *Server) getAPIEndpointSchema(args map[string]any) (*mcptypes.CallToolResult, *mcperr.Error) {
	endpoint, _ := args["endpoint"].(string)
	if endpoint == "" {
		return nil, mcperr.New(mcperr.MissingParameter, "missing required parameter \"endpoint\"")
	}
	method, _ := args["method"].(string)
	tool, ok := s.Registry.Doc.FindByEndpoint(endpoint, method)
	if !ok {
		return nil, mcperr.New(mcperr.ToolNotFound, fmt.Sprintf("no operation for endpoint %q", endpoint))
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.Internal, err, "marshalling endpoint schema")
	}
	return mcptypes.TextResult(string(data)), nil
}

func (s *Server) invokeAPIEndpoint(ctx context.Context, args map[string]any) (*mcptypes.CallToolResult, *mcperr.Error) {
	endpoint, _ := args["endpoint"].(string)
	if endpoint == "" {
		return nil, mcperr.New(mcperr.MissingParameter, "missing required parameter \"endpoint\"")
	}
	method, _ := args["method"].(string)
	params, _ := args["params"].(map[string]any)

	tool, ok := s.Registry.Doc.FindByEndpoint(endpoint, method)
	if !ok {
		return nil, mcperr.New(mcperr.ToolNotFound, fmt.Sprintf("no operation for endpoint %q %s", endpoint, strings.ToUpper(method)))
	}

	bound, bindErr := executor.Bind(tool, params)
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
