package openapi2mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ivo-toby/mcp-openapi-server/pkg/abbrev"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
	"github.com/ivo-toby/mcp-openapi-server/pkg/toolid"
)

var allMethods = []struct {
	name string
	get  func(*openapi3.PathItem) *openapi3.Operation
}{
	{"GET", func(p *openapi3.PathItem) *openapi3.Operation { return p.Get }},
	{"POST", func(p *openapi3.PathItem) *openapi3.Operation { return p.Post }},
	{"PUT", func(p *openapi3.PathItem) *openapi3.Operation { return p.Put }},
	{"DELETE", func(p *openapi3.PathItem) *openapi3.Operation { return p.Delete }},
	{"PATCH", func(p *openapi3.PathItem) *openapi3.Operation { return p.Patch }},
	{"OPTIONS", func(p *openapi3.PathItem) *openapi3.Operation { return p.Options }},
	{"HEAD", func(p *openapi3.PathItem) *openapi3.Operation { return p.Head }},
	{"TRACE", func(p *openapi3.PathItem) *openapi3.Operation { return p.Trace }},
}

// ExtractOpenAPIOperations walks every path/method in doc and returns one
// OpenAPIOperation per operation, with path-level parameters inherited and
// overridden by operation-level parameters of the same (name, in).
func ExtractOpenAPIOperations(doc *openapi3.T) []*OpenAPIOperation {
	if doc == nil || doc.Paths == nil {
		return nil
	}

	var paths []string
	for path := range doc.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var ops []*OpenAPIOperation
	for _, path := range paths {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for _, m := range allMethods {
			op := m.get(item)
			if op == nil {
				continue
			}
			params := mergeParameters(item.Parameters, op.Parameters)
			opID := op.OperationID
			if opID == "" {
				opID = m.name + "-" + path
			}
			var security openapi3.SecurityRequirements
			if op.Security != nil {
				security = *op.Security
			}
			ops = append(ops, &OpenAPIOperation{
				OperationID: opID,
				Summary:     op.Summary,
				Description: op.Description,
				Path:        path,
				Method:      m.name,
				Parameters:  params,
				RequestBody: op.RequestBody,
				Tags:        op.Tags,
				Security:    security,
			})
		}
	}
	return ops
}

// mergeParameters inherits path-level parameters, letting an
// operation-level parameter of the same (name, in) override it.
func mergeParameters(pathLevel, opLevel openapi3.Parameters) openapi3.Parameters {
	type key struct{ name, in string }
	merged := make(map[key]*openapi3.ParameterRef)
	var order []key

	add := func(params openapi3.Parameters) {
		for _, p := range params {
			if p == nil || p.Value == nil {
				continue
			}
			k := key{p.Value.Name, p.Value.In}
			if _, exists := merged[k]; !exists {
				order = append(order, k)
			}
			merged[k] = p
		}
	}
	add(pathLevel)
	add(opLevel)

	result := make(openapi3.Parameters, 0, len(order))
	for _, k := range order {
		result = append(result, merged[k])
	}
	return result
}

// SynthesiseTools converts every extracted operation into a Tool: a
// stable id (see pkg/toolid), an abbreviated unique name (see
// pkg/abbrev), and a synthesised inputSchema.
func SynthesiseTools(doc *openapi3.T, opts SynthesisOptions) ([]*Tool, error) {
	ops := ExtractOpenAPIOperations(doc)
	tools := make([]*Tool, 0, len(ops))
	usedNames := make(map[string]int)
	usedIDs := make(map[string]bool)

	for _, op := range ops {
		id, err := toolid.Encode(op.Method, op.Path)
		if err != nil {
			return nil, mcperr.Wrap(mcperr.ToolIdFormatError, err, fmt.Sprintf("operation %s %s", op.Method, op.Path))
		}
		if usedIDs[id] {
			return nil, mcperr.New(mcperr.ToolIdFormatError, fmt.Sprintf("duplicate tool id %q for %s %s", id, op.Method, op.Path))
		}
		usedIDs[id] = true

		name, err := abbrev.Abbreviate(op.OperationID, opts.DisableAbbreviation)
		if err != nil {
			return nil, mcperr.Wrap(mcperr.SpecShapeError, err, "abbreviating operation name")
		}
		name = uniqueName(name, usedNames)

		schema := BuildInputSchemaWithContext(op.Parameters, op.RequestBody, doc)
		paramsMeta := parametersMetaFromSchema(schema)

		resourceName := firstPathSegment(op.Path)

		tools = append(tools, &Tool{
			ID:             id,
			Name:           name,
			OperationID:    op.OperationID,
			Description:    describeOperation(op),
			InputSchema:    schema,
			HTTPMethod:     op.Method,
			OriginalPath:   op.Path,
			ParametersMeta: paramsMeta,
			Tags:           op.Tags,
			ResourceName:   resourceName,
		})
	}

	return tools, nil
}

func describeOperation(op *OpenAPIOperation) string {
	if op.Description != "" {
		return op.Description
	}
	if op.Summary != "" {
		return op.Summary
	}
	return fmt.Sprintf("%s %s", op.Method, op.Path)
}

func uniqueName(name string, used map[string]int) string {
	if _, exists := used[name]; !exists {
		used[name] = 1
		return name
	}
	used[name]++
	return fmt.Sprintf("%s-%d", name, used[name])
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func parametersMetaFromSchema(schema map[string]any) []ParameterMeta {
	properties, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	if reqList, ok := schema["required"].([]string); ok {
		for _, r := range reqList {
			required[r] = true
		}
	}
	var metas []ParameterMeta
	var names []string
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, _ := properties[name].(map[string]any)
		loc, _ := prop["x-parameter-location"].(string)
		if loc == "" {
			loc = string(LocationBody)
		}
		bodyField, _ := prop["x-body-field"].(string)
		bodyWhole, _ := prop["x-body-whole"].(bool)
		metas = append(metas, ParameterMeta{
			Name:      name,
			Location:  ParameterLocation(loc),
			Required:  required[name],
			BodyField: bodyField,
			BodyWhole: bodyWhole,
		})
	}
	return metas
}

// FilterTools applies the all/dynamic/explicit filtering rules. Dynamic
// mode discards the synthesised tools entirely (callers are expected to
// serve the three fixed meta-tools instead, see pkg/mcpserver).
func FilterTools(tools []*Tool, opts FilterOptions) []*Tool {
	switch opts.Mode {
	case ModeDynamic:
		return nil
	case ModeExplicit:
		if len(opts.IncludeTools) == 0 {
			return nil
		}
		include := toSet(opts.IncludeTools)
		var out []*Tool
		for _, t := range tools {
			if include[t.ID] || include[t.Name] {
				out = append(out, t)
			}
		}
		return out
	default: // all
		if len(opts.IncludeTools) > 0 {
			include := toSet(opts.IncludeTools)
			var matched, rest []*Tool
			for _, t := range tools {
				if include[t.ID] || include[t.Name] {
					matched = append(matched, t)
				} else {
					rest = append(rest, t)
				}
			}
			rest = applyCombinedFilters(rest, opts)
			return append(matched, rest...)
		}
		return applyCombinedFilters(tools, opts)
	}
}

func applyCombinedFilters(tools []*Tool, opts FilterOptions) []*Tool {
	if len(opts.IncludeOperations) == 0 && len(opts.IncludeResources) == 0 && len(opts.IncludeTags) == 0 {
		return tools
	}
	var out []*Tool
	for _, t := range tools {
		if len(opts.IncludeOperations) > 0 && !matchesAny(t.ID, opts.IncludeOperations, false) && !matchesAny(t.OperationID, opts.IncludeOperations, false) {
			continue
		}
		if len(opts.IncludeResources) > 0 && !matchesAny(t.OriginalPath, opts.IncludeResources, true) {
			continue
		}
		if len(opts.IncludeTags) > 0 && !hasAnyTag(t.Tags, opts.IncludeTags) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesAny(path string, candidates []string, prefix bool) bool {
	for _, c := range candidates {
		if prefix {
			if strings.HasPrefix(path, c) {
				return true
			}
		} else if path == c {
			return true
		}
	}
	return false
}

func hasAnyTag(tags, candidates []string) bool {
	set := toSet(candidates)
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
