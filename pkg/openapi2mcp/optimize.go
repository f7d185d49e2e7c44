package openapi2mcp

import "github.com/getkin/kin-openapi/openapi3"

// OptimizeSpec strips example values from a loaded document's schemas and
// bodies. Examples can dominate a spec's memory footprint without being
// used by synthesis, so this runs once after loading and before synthesis.
func OptimizeSpec(spec *openapi3.T) {
	if spec == nil {
		return
	}
	if spec.Components != nil {
		for _, schemaRef := range spec.Components.Schemas {
			if schemaRef.Value != nil {
				optimizeSchema(schemaRef.Value, make(map[*openapi3.Schema]bool))
			}
		}
	}
	for _, pathItem := range spec.Paths.Map() {
		if pathItem != nil {
			optimizePathItem(pathItem)
		}
	}
}

func optimizeSchema(schema *openapi3.Schema, visited map[*openapi3.Schema]bool) {
	if schema == nil || visited[schema] {
		return
	}
	visited[schema] = true
	schema.Example = nil

	for _, propRef := range schema.Properties {
		if propRef.Value != nil {
			optimizeSchema(propRef.Value, visited)
		}
	}
	if schema.Items != nil && schema.Items.Value != nil {
		optimizeSchema(schema.Items.Value, visited)
	}
	if schema.AdditionalProperties.Schema != nil && schema.AdditionalProperties.Schema.Value != nil {
		optimizeSchema(schema.AdditionalProperties.Schema.Value, visited)
	}
}

func optimizePathItem(pathItem *openapi3.PathItem) {
	for _, m := range allMethods {
		if op := m.get(pathItem); op != nil {
			optimizeOperation(op)
		}
	}
}

func optimizeOperation(op *openapi3.Operation) {
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		for _, content := range op.RequestBody.Value.Content {
			content.Examples = nil
		}
	}
	for _, responseRef := range op.Responses.Map() {
		if responseRef.Value == nil {
			continue
		}
		for _, content := range responseRef.Value.Content {
			content.Examples = nil
		}
	}
}
