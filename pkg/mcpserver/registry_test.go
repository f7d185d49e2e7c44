package mcpserver

import (
	"testing"

	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
)

func TestRegistryLookupByIDAndName(t *testing.T) {
	tool := sampleTool()
	r := NewRegistry([]*openapi2mcp.Tool{tool}, false, nil)

	if _, ok := r.Lookup("GET::widgets"); !ok {
		t.Errorf("expected lookup by id to succeed")
	}
	if _, ok := r.Lookup("get-widgets"); !ok {
		t.Errorf("expected lookup by name to succeed")
	}
	if _, ok := r.Lookup("GET-WIDGETS"); !ok {
		t.Errorf("expected case-insensitive lookup to succeed")
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Errorf("expected lookup of unknown tool to fail")
	}
}

func TestRegistryDynamicModeRegistersMetaTools(t *testing.T) {
	r := NewRegistry(nil, true, nil)
	for _, name := range []string{string(MetaListEndpoints), string(MetaGetSchema), string(MetaInvokeEndpoint)} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("expected meta-tool %q to be registered", name)
		}
	}
	if len(r.List()) != 3 {
		t.Errorf("expected exactly 3 meta-tools, got %d", len(r.List()))
	}
}
