// Package mcpserver holds the tool registry and the JSON-RPC dispatcher
// that answers the seven MCP methods this bridge supports.
package mcpserver

import (
	"context"
	"strings"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcptypes"
	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
)

// MetaKind identifies one of the three fixed meta-tools served in dynamic
// mode.
type MetaKind string

const (
	MetaListEndpoints  MetaKind = "list-api-endpoints"
	MetaGetSchema      MetaKind = "get-api-endpoint-schema"
	MetaInvokeEndpoint MetaKind = "invoke-api-endpoint"
)

// CustomHandler is the function shape a caller-registered custom tool must
// implement.
type CustomHandler func(ctx context.Context, args map[string]any) (*mcptypes.CallToolResult, error)

// ToolEntry is the tagged sum type named in the design notes: a tool is
// exactly one of an OpenAPI-synthesised operation, a fixed meta-tool, or a
// caller-registered custom tool. The dispatcher performs one lookup and
// branches once on Kind.
type ToolEntry struct {
	Kind int

	OpenAPI *openapi2mcp.Tool
	Meta    MetaKind
	Custom  CustomHandler

	// Name/Description/InputSchema are denormalised onto every entry so
	// tools/list never has to branch on Kind to build its response.
	Name        string
	Description string
	InputSchema map[string]any
}

const (
	KindOpenAPI int = iota
	KindMeta
	KindCustom
)

// Registry is the immutable-after-build set of tools, prompts and
// resources a Server answers queries against.
type Registry struct {
	byName map[string]*ToolEntry
	byID   map[string]*ToolEntry
	order  []*ToolEntry

	prompts   []mcptypes.Prompt
	resources []mcptypes.Resource

	Doc *openapi2mcp.Document
}

// NewRegistry builds a Registry from synthesised OpenAPI tools. Pass
// dynamic=true to additionally register the three meta-tools instead of
// (or alongside, if tools is non-empty) the OpenAPI set. Dynamic mode
// discards the synthesised tools outright, so callers pass an empty
// tools slice in that case.
func NewRegistry(tools []*openapi2mcp.Tool, dynamic bool, doc *openapi2mcp.Document) *Registry {
	r := &Registry{
		byName: make(map[string]*ToolEntry),
		byID:   make(map[string]*ToolEntry),
		Doc:    doc,
	}
	for _, t := range tools {
		entry := &ToolEntry{
			Kind:        KindOpenAPI,
			OpenAPI:     t,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		r.add(entry)
	}
	if dynamic {
		r.registerMetaTools()
	}
	return r
}

func (r *Registry) registerMetaTools() {
	r.add(&ToolEntry{
		Kind:        KindMeta,
		Meta:        MetaListEndpoints,
		Name:        string(MetaListEndpoints),
		Description: "List every HTTP operation available in the loaded OpenAPI specification.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	})
	r.add(&ToolEntry{
		Kind:        KindMeta,
		Meta:        MetaGetSchema,
		Name:        string(MetaGetSchema),
		Description: "Return the input schema that would be synthesised for a given endpoint.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"endpoint": map[string]any{"type": "string"}},
			"required":   []string{"endpoint"},
		},
	})
	r.add(&ToolEntry{
		Kind:        KindMeta,
		Meta:        MetaInvokeEndpoint,
		Name:        string(MetaInvokeEndpoint),
		Description: "Invoke an endpoint by path and method with the given parameters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"endpoint": map[string]any{"type": "string"},
				"method":   map[string]any{"type": "string"},
				"params":   map[string]any{"type": "object"},
			},
			"required": []string{"endpoint", "params"},
		},
	})
}

// RegisterCustom adds a caller-defined tool to the registry. Intended for
// use before the transport starts accepting traffic; the registry has no
// internal synchronization, so callers needing post-startup mutation
// must guard it themselves.
func (r *Registry) RegisterCustom(name, description string, inputSchema map[string]any, handler CustomHandler) {
	r.add(&ToolEntry{
		Kind:        KindCustom,
		Custom:      handler,
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	})
}

func (r *Registry) add(entry *ToolEntry) {
	r.order = append(r.order, entry)
	key := strings.ToLower(entry.Name)
	if existing, collides := r.byName[key]; !collides || entry.Kind == KindOpenAPI || existing.Kind != KindOpenAPI {
		r.byName[key] = entry
	}
	if entry.OpenAPI != nil {
		r.byID[strings.ToLower(entry.OpenAPI.ID)] = entry
	}
}

// Lookup resolves a tool by name or id, case-insensitively, preferring an
// OpenAPI-synthesised tool over a same-named custom tool.
func (r *Registry) Lookup(nameOrID string) (*ToolEntry, bool) {
	key := strings.ToLower(nameOrID)
	if entry, ok := r.byID[key]; ok {
		return entry, true
	}
	if entry, ok := r.byName[key]; ok {
		return entry, true
	}
	return nil, false
}

// List returns every registered tool entry in registration order.
func (r *Registry) List() []*ToolEntry {
	return r.order
}

// SetPrompts/SetResources install the static prompt and resource sets this
// server advertises. Both are simple read-only slices, populated once at
// startup from whatever an external collaborator (not this module) has
// decided to expose.
func (r *Registry) SetPrompts(prompts []mcptypes.Prompt)       { r.prompts = prompts }
func (r *Registry) SetResources(resources []mcptypes.Resource) { r.resources = resources }
