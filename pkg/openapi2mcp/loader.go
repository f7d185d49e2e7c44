package openapi2mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
)

// SourceKind tags where a spec came from: a URL, a local file, stdin, or
// an inline string.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceFile   SourceKind = "file"
	SourceStdin  SourceKind = "stdin"
	SourceInline SourceKind = "inline"
)

// Source names a spec's origin.
type Source struct {
	Kind  SourceKind
	Value string // URL, file path, or inline content; ignored for stdin
}

// LoadSpec retrieves the raw bytes for source, parses them (JSON first,
// then restricted YAML), and returns a validated OpenAPI document.
func LoadSpec(ctx context.Context, source Source) (*openapi3.T, error) {
	content, err := readSource(ctx, source)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.SpecLoadError, err, "reading spec source")
	}

	data, err := toJSON(content)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.SpecLoadError, err, "parsing spec content")
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.SpecLoadError, err, "loading OpenAPI document")
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, mcperr.Wrap(mcperr.SpecShapeError, err, "validating OpenAPI document")
	}

	return doc, nil
}

func readSource(ctx context.Context, source Source) ([]byte, error) {
	switch source.Kind {
	case SourceInline:
		return []byte(source.Value), nil
	case SourceStdin:
		return io.ReadAll(os.Stdin)
	case SourceFile:
		if _, err := os.Stat(source.Value); os.IsNotExist(err) {
			return nil, fmt.Errorf("spec file not found: %s", source.Value)
		}
		return os.ReadFile(source.Value)
	case SourceURL:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.Value, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", source.Value, err)
		}
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", source.Value, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, source.Value)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, fmt.Errorf("unknown spec source kind %q", source.Kind)
	}
}

// toJSON attempts JSON first; on failure it falls back to a restricted YAML
// parse that rejects custom tags and merge-key aggregation before handing
// the result to the JSON-based OpenAPI loader.
func toJSON(content []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if json.Valid(trimmed) {
			return trimmed, nil
		}
	}
	return restrictedYAMLToJSON(content)
}

// restrictedYAMLToJSON decodes content as YAML under a restricted schema:
// no custom (non-standard) tags, and no "<<" merge-key aggregation, as a
// defence against YAML-based code-execution and prototype-pollution
// vectors. The walk happens over yaml.Node so both checks can be enforced
// before any Go value is constructed.
func restrictedYAMLToJSON(content []byte) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := checkRestrictedNode(&root); err != nil {
		return nil, err
	}

	var value any
	if err := yaml.Unmarshal(content, &value); err != nil {
		return nil, fmt.Errorf("decoding YAML: %w", err)
	}
	value = stringifyMapKeys(value)
	return json.Marshal(value)
}

func checkRestrictedNode(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	if node.Tag != "" && isCustomTag(node.Tag) {
		return fmt.Errorf("unsafe YAML tag %q is not permitted", node.Tag)
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i < len(node.Content)-1; i += 2 {
			key := node.Content[i]
			if key.Value == "<<" {
				return fmt.Errorf("YAML merge keys (\"<<\") are not permitted")
			}
		}
	}
	for _, child := range node.Content {
		if err := checkRestrictedNode(child); err != nil {
			return err
		}
	}
	return nil
}

func isCustomTag(tag string) bool {
	switch tag {
	case "!!map", "!!seq", "!!str", "!!int", "!!float", "!!bool", "!!null", "!!timestamp", "!!binary", "!!merge":
		return false
	default:
		return true
	}
}

// stringifyMapKeys converts map[interface{}]interface{} (yaml.v3's default
// for maps with non-string keys) into map[string]interface{} so the result
// marshals to JSON cleanly.
func stringifyMapKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = stringifyMapKeys(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = stringifyMapKeys(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = stringifyMapKeys(vv)
		}
		return out
	default:
		return val
	}
}
