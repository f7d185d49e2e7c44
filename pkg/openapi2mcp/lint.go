package openapi2mcp

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// LintTools runs each tool's own InputSchema through a JSON-schema
// compiler as a self-check: a schema gojsonschema itself cannot load is
// one no MCP client could validate arguments against either. It never
// inspects arguments, only the shape of the schema synthesis produced,
// so it is safe to run once at startup against every tool regardless of
// which --tools mode filtered the registry down.
func LintTools(tools []*Tool) []string {
	var problems []string
	for _, t := range tools {
		loader := gojsonschema.NewGoLoader(t.InputSchema)
		if _, err := gojsonschema.NewSchema(loader); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid inputSchema: %v", t.ID, err))
		}
	}
	return problems
}
