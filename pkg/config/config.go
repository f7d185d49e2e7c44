// Package config parses and validates the CLI surface: transport
// selection, spec source, tool filtering, and authentication headers.
package config

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
)

// Config is the fully parsed and validated CLI surface.
type Config struct {
	Transport string // "stdio" or "http"
	Port      int
	Host      string
	Path      string

	APIBaseURL string

	OpenAPISpec   string
	SpecFromStdin bool
	SpecInline    string

	Headers []string // raw "Name:Value" pairs, not yet parsed into a provider

	ToolsMode openapi2mcp.ToolsMode
	Tool      []string
	Tag       []string
	Resource  []string
	Operation []string

	DisableAbbreviation bool

	SessionTTL time.Duration

	Interactive bool
}

// Load parses args (typically os.Args[1:]) into a Config.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mcp-openapi-server", flag.ContinueOnError)

	cfg := &Config{}
	var headers multiFlag
	var tool multiFlag
	var tag multiFlag
	var resource multiFlag
	var operation multiFlag
	var toolsMode string

	fs.StringVar(&cfg.Transport, "transport", "stdio", "transport to serve over: stdio or http")
	fs.IntVar(&cfg.Port, "port", 8080, "port to listen on in http mode")
	fs.StringVar(&cfg.Host, "host", "localhost", "host to bind in http mode")
	fs.StringVar(&cfg.Path, "path", "/mcp", "HTTP endpoint path in http mode")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", "", "base URL to prefix every synthesised tool's path with")
	fs.StringVar(&cfg.OpenAPISpec, "openapi-spec", "", "path or URL to the OpenAPI specification")
	fs.BoolVar(&cfg.SpecFromStdin, "spec-from-stdin", false, "read the OpenAPI specification from stdin")
	fs.StringVar(&cfg.SpecInline, "spec-inline", "", "the OpenAPI specification itself, passed inline")
	fs.Var(&headers, "headers", "a static \"Name:Value\" auth header, may be repeated")
	fs.StringVar(&toolsMode, "tools", "all", "tool filtering mode: all, dynamic, or explicit")
	fs.Var(&tool, "tool", "a tool id or name to include, may be repeated (explicit mode, or priority filter in all mode)")
	fs.Var(&tag, "tag", "an OpenAPI tag to include, may be repeated")
	fs.Var(&resource, "resource", "a path prefix to include, may be repeated")
	fs.Var(&operation, "operation", "an operation id or tool id to include (exact match), may be repeated")
	fs.BoolVar(&cfg.DisableAbbreviation, "disable-abbreviation", false, "skip the name-shortening steps of the abbreviator")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", 15*time.Minute, "idle-session time to live in http mode")
	fs.BoolVar(&cfg.Interactive, "interactive", false, "run an interactive debug shell instead of the protocol-conformant stdio loop")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Headers = headers
	cfg.Tool = tool
	cfg.Tag = tag
	cfg.Resource = resource
	cfg.Operation = operation
	cfg.ToolsMode = openapi2mcp.ToolsMode(toolsMode)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the CLI's mutual-exclusion and required-field rules.
func (c *Config) Validate() error {
	sources := 0
	if c.OpenAPISpec != "" {
		sources++
	}
	if c.SpecFromStdin {
		sources++
	}
	if c.SpecInline != "" {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of --openapi-spec, --spec-from-stdin, --spec-inline must be given (got %d)", sources)
	}

	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown --transport %q: must be stdio or http", c.Transport)
	}

	switch c.ToolsMode {
	case openapi2mcp.ModeAll, openapi2mcp.ModeDynamic, openapi2mcp.ModeExplicit:
	default:
		return fmt.Errorf("unknown --tools mode %q: must be all, dynamic, or explicit", c.ToolsMode)
	}

	return nil
}

// LogConfiguration writes a human-readable summary of the resolved
// configuration, masking header values since they commonly carry
// credentials.
func (c *Config) LogConfiguration() {
	log.Printf("transport=%s tools=%s", c.Transport, c.ToolsMode)
	if c.Transport == "http" {
		log.Printf("listening on %s:%d%s", c.Host, c.Port, c.Path)
	}
	switch {
	case c.OpenAPISpec != "":
		log.Printf("spec source: file/url %s", c.OpenAPISpec)
	case c.SpecFromStdin:
		log.Printf("spec source: stdin")
	case c.SpecInline != "":
		log.Printf("spec source: inline (%d bytes)", len(c.SpecInline))
	}
	for _, h := range c.Headers {
		log.Printf("auth header configured: %s", maskHeader(h))
	}
}

func maskHeader(pair string) string {
	name, value, found := strings.Cut(pair, ":")
	if !found {
		return "***"
	}
	value = strings.TrimSpace(value)
	if len(value) <= 8 {
		return name + ":" + strings.Repeat("*", len(value))
	}
	return name + ":" + value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

// multiFlag implements flag.Value to collect repeated string flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
