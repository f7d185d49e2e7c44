package openapi2mcp

import (
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ParameterLocation mirrors the OpenAPI "in" values a tool parameter can be
// bound from, recorded on every synthesised schema property as
// x-parameter-location so the executor can bind without re-deriving it.
type ParameterLocation string

const (
	LocationPath   ParameterLocation = "path"
	LocationQuery  ParameterLocation = "query"
	LocationHeader ParameterLocation = "header"
	LocationCookie ParameterLocation = "cookie"
	LocationBody   ParameterLocation = "body"
)

// extractProperty recursively extracts a JSON-schema property map from an
// OpenAPI SchemaRef.
func extractProperty(s *openapi3.SchemaRef) map[string]any {
	return extractPropertyWithContext(s, nil)
}

// extractPropertyWithContext is extractProperty with document context. doc
// is carried through the recursion but not consulted: the loader has
// already resolved every $ref into its SchemaRef.Value.
func extractPropertyWithContext(s *openapi3.SchemaRef, doc *openapi3.T) map[string]any {
	return extractPropertyVisited(s, doc, make(map[*openapi3.Schema]bool))
}

// extractPropertyVisited carries a per-traversal visited set keyed by
// schema pointer so that a cyclic $ref breaks by emitting an empty object
// on re-entry rather than recursing forever.
func extractPropertyVisited(s *openapi3.SchemaRef, doc *openapi3.T, visited map[*openapi3.Schema]bool) map[string]any {
	if s == nil || s.Value == nil {
		return nil
	}
	val := s.Value
	if visited[val] {
		return map[string]any{}
	}
	visited[val] = true
	defer delete(visited, val)

	prop := map[string]any{}

	if len(val.AllOf) > 0 {
		merged := map[string]any{}
		for _, sub := range val.AllOf {
			for k, v := range extractPropertyVisited(sub, doc, visited) {
				switch k {
				case "properties":
					props, _ := merged[k].(map[string]any)
					if props == nil {
						props = map[string]any{}
					}
					for pk, pv := range v.(map[string]any) {
						props[pk] = pv
					}
					merged[k] = props
				case "required":
					prev, _ := merged[k].([]string)
					merged[k] = append(prev[:len(prev):len(prev)], v.([]string)...)
				default:
					merged[k] = v
				}
			}
		}
		for k, v := range merged {
			prop[k] = v
		}
	}
	if len(val.OneOf) > 0 {
		oneOf := []any{}
		for _, sub := range val.OneOf {
			oneOf = append(oneOf, extractPropertyVisited(sub, doc, visited))
		}
		prop["oneOf"] = oneOf
	}
	if len(val.AnyOf) > 0 {
		anyOf := []any{}
		for _, sub := range val.AnyOf {
			anyOf = append(anyOf, extractPropertyVisited(sub, doc, visited))
		}
		prop["anyOf"] = anyOf
	}
	if val.Not != nil {
		prop["not"] = extractPropertyVisited(val.Not, doc, visited)
	}
	if val.Discriminator != nil {
		fmt.Fprintf(os.Stderr, "[warn] discriminator used in schema; only basic support is provided\n")
		prop["discriminator"] = val.Discriminator
	}
	if val.Type != nil && len(*val.Type) > 0 {
		prop["type"] = (*val.Type)[0]
	}
	if val.Format != "" {
		prop["format"] = val.Format
	}
	if val.Description != "" {
		prop["description"] = val.Description
	}
	if len(val.Enum) > 0 {
		prop["enum"] = val.Enum
	}
	if val.Default != nil {
		prop["default"] = val.Default
	}
	if val.Type != nil && val.Type.Is("object") && val.Properties != nil {
		objProps := map[string]any{}
		for name, sub := range val.Properties {
			objProps[name] = extractPropertyVisited(sub, doc, visited)
		}
		prop["properties"] = objProps
		if len(val.Required) > 0 {
			prop["required"] = val.Required
		}
	}
	if val.Type != nil && val.Type.Is("array") && val.Items != nil {
		prop["items"] = extractPropertyVisited(val.Items, doc, visited)
	}
	return prop
}

func getContentByType(content openapi3.Content, mediaType string) *openapi3.MediaType {
	if mt, ok := content[mediaType]; ok {
		return mt
	}
	for name, mt := range content {
		base := name
		if idx := strings.IndexByte(name, ';'); idx > 0 {
			base = strings.TrimSpace(name[:idx])
		}
		if base == mediaType {
			return mt
		}
	}
	return nil
}

// BuildInputSchemaWithContext converts an operation's parameters and request body into
// the single JSON-schema object used as a tool's inputSchema: every
// property carries x-parameter-location metadata recording where the
// executor must bind it from, and a primitive/array request body collapses
// to a single "body" property while an object body is merged directly
// (colliding names gain a "body_" prefix).
func BuildInputSchemaWithContext(params openapi3.Parameters, requestBody *openapi3.RequestBodyRef, doc *openapi3.T) map[string]any {
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	properties := schema["properties"].(map[string]any)
	var required []string

	for _, paramRef := range params {
		if paramRef == nil || paramRef.Value == nil {
			continue
		}
		p := paramRef.Value
		if p.Schema == nil || p.Schema.Value == nil {
			continue
		}
		if p.Schema.Value.Type != nil && p.Schema.Value.Type.Is("string") && p.Schema.Value.Format == "binary" {
			fmt.Fprintf(os.Stderr, "[warn] parameter %q uses string/binary format; non-JSON bodies are not fully supported\n", p.Name)
		}
		prop := extractPropertyWithContext(p.Schema, doc)
		if prop == nil {
			prop = map[string]any{}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		loc, ok := locationOf(p.In)
		if !ok {
			fmt.Fprintf(os.Stderr, "[warn] parameter %q uses unsupported location %q\n", p.Name, p.In)
			continue
		}
		prop["x-parameter-location"] = string(loc)
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if requestBody != nil && requestBody.Value != nil {
		for mtName := range requestBody.Value.Content {
			base := mtName
			if idx := strings.IndexByte(mtName, ';'); idx > 0 {
				base = strings.TrimSpace(mtName[:idx])
			}
			if base != "application/json" && base != "application/vnd.api+json" {
				fmt.Fprintf(os.Stderr, "[warn] request body uses media type %q; only application/json and application/vnd.api+json are fully supported\n", mtName)
			}
		}
		mt := getContentByType(requestBody.Value.Content, "application/json")
		if mt == nil {
			mt = getContentByType(requestBody.Value.Content, "application/vnd.api+json")
		}
		if mt != nil && mt.Schema != nil && mt.Schema.Value != nil {
			bodySchema := mt.Schema.Value
			isObject := bodySchema.Type != nil && bodySchema.Type.Is("object") && bodySchema.Properties != nil
			if isObject {
				for name, sub := range bodySchema.Properties {
					prop := extractPropertyWithContext(sub, doc)
					if prop == nil {
						prop = map[string]any{}
					}
					prop["x-parameter-location"] = string(LocationBody)
					prop["x-body-field"] = name
					key := name
					if _, collides := properties[key]; collides {
						key = "body_" + name
					}
					properties[key] = prop
					for _, req := range bodySchema.Required {
						if req == name {
							required = append(required, key)
						}
					}
				}
			} else {
				bodyProp := extractPropertyWithContext(mt.Schema, doc)
				if bodyProp == nil {
					bodyProp = map[string]any{}
				}
				bodyProp["description"] = "The request body."
				bodyProp["x-parameter-location"] = string(LocationBody)
				bodyProp["x-body-whole"] = true
				properties["body"] = bodyProp
				if requestBody.Value.Required {
					required = append(required, "body")
				}
			}
		}
	}

	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func locationOf(in string) (ParameterLocation, bool) {
	switch in {
	case "path":
		return LocationPath, true
	case "query":
		return LocationQuery, true
	case "header":
		return LocationHeader, true
	case "cookie":
		return LocationCookie, true
	default:
		return "", false
	}
}
