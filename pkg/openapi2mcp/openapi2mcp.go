// Package openapi2mcp loads an OpenAPI 3.x document and synthesises it into
// the set of MCP tools the rest of this module serves: one tool per
// operation (plus, in "dynamic" mode, three fixed meta-tools), each with a
// stable id (see pkg/toolid), an abbreviated display name (see
// pkg/abbrev) and a JSON-schema inputSchema annotated with
// x-parameter-location metadata for the executor.
package openapi2mcp

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ToolsMode selects how the synthesised registry is filtered before being
// served.
type ToolsMode string

const (
	ModeAll      ToolsMode = "all"
	ModeDynamic  ToolsMode = "dynamic"
	ModeExplicit ToolsMode = "explicit"
)

// ParameterMeta records where one input-schema property must be bound from
// at call time.
type ParameterMeta struct {
	Name     string
	Location ParameterLocation
	Required bool
	// BodyField is the JSON field name to use in the outbound body for a
	// LocationBody parameter drawn from an object request body (distinct
	// from Name when a "body_" collision prefix was applied). Empty for
	// non-body parameters.
	BodyField string
	// BodyWhole marks the single property representing an entire
	// primitive/array request body (always named "body").
	BodyWhole bool
}

// Tool is the synthesiser's output: everything the registry, dispatcher
// and executor need for one OpenAPI operation.
type Tool struct {
	ID             string
	Name           string
	OperationID    string // the OpenAPI operationId, or its method+path fallback
	Description    string
	InputSchema    map[string]any
	HTTPMethod     string
	OriginalPath   string
	ParametersMeta []ParameterMeta
	Tags           []string
	ResourceName   string
}

// OpenAPIOperation describes a single OpenAPI operation ahead of synthesis.
type OpenAPIOperation struct {
	OperationID string
	Summary     string
	Description string
	Path        string
	Method      string
	Parameters  openapi3.Parameters
	RequestBody *openapi3.RequestBodyRef
	Tags        []string
	Security    openapi3.SecurityRequirements
}

// SynthesisOptions controls tool synthesis.
type SynthesisOptions struct {
	// DisableAbbreviation skips the name-shortening steps of pkg/abbrev.
	DisableAbbreviation bool
}

// FilterOptions controls which synthesised tools are actually served,
// across the three modes named by ToolsMode.
type FilterOptions struct {
	Mode              ToolsMode
	IncludeTools      []string
	IncludeOperations []string
	IncludeResources  []string
	IncludeTags       []string
}

// Document bundles the parsed OpenAPI document with its full,
// unfiltered set of synthesised tools, so that the dynamic meta-tools
// can answer list-api-endpoints, get-api-endpoint-schema and
// invoke-api-endpoint against the whole spec regardless of which filter
// mode the registry itself was built with.
type Document struct {
	Doc      *openapi3.T
	AllTools []*Tool
}

// FindByEndpoint resolves a tool by originalPath and, if given, an exact
// HTTP method (case-insensitive). When method is empty and more than one
// operation shares the path, the first match in synthesis order wins.
func (d *Document) FindByEndpoint(path, method string) (*Tool, bool) {
	if d == nil {
		return nil, false
	}
	for _, t := range d.AllTools {
		if t.OriginalPath != path {
			continue
		}
		if method == "" || strings.EqualFold(t.HTTPMethod, method) {
			return t, true
		}
	}
	return nil, false
}
