package config

import "testing"

func TestLoadRequiresExactlyOneSpecSource(t *testing.T) {
	_, err := Load([]string{})
	if err == nil {
		t.Fatalf("expected an error when no spec source is given")
	}

	_, err = Load([]string{"--openapi-spec", "petstore.yaml", "--spec-from-stdin"})
	if err == nil {
		t.Fatalf("expected an error when two spec sources are given")
	}
}

func TestLoadAcceptsSingleSpecSource(t *testing.T) {
	cfg, err := Load([]string{"--openapi-spec", "petstore.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAPISpec != "petstore.yaml" {
		t.Errorf("OpenAPISpec = %q", cfg.OpenAPISpec)
	}
	if cfg.ToolsMode != "all" {
		t.Errorf("default ToolsMode = %q", cfg.ToolsMode)
	}
}

func TestLoadRejectsUnknownToolsMode(t *testing.T) {
	_, err := Load([]string{"--openapi-spec", "petstore.yaml", "--tools", "bogus"})
	if err == nil {
		t.Fatalf("expected an error for an unknown --tools mode")
	}
}

func TestLoadCollectsRepeatedFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--openapi-spec", "petstore.yaml",
		"--tool", "get-widgets",
		"--tool", "post-widgets",
		"--headers", "Authorization:Bearer xyz",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Tool) != 2 {
		t.Errorf("Tool = %v", cfg.Tool)
	}
	if len(cfg.Headers) != 1 {
		t.Errorf("Headers = %v", cfg.Headers)
	}
}
