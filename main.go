package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivo-toby/mcp-openapi-server/pkg/auth"
	"github.com/ivo-toby/mcp-openapi-server/pkg/config"
	"github.com/ivo-toby/mcp-openapi-server/pkg/executor"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcpserver"
	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
	"github.com/ivo-toby/mcp-openapi-server/pkg/transport/httptransport"
	"github.com/ivo-toby/mcp-openapi-server/pkg/transport/stdiotransport"
)

const serverVersion = "0.1.0"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}
	cfg.LogConfiguration()

	doc, tools, err := loadAndSynthesise(cfg)
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	registry := mcpserver.NewRegistry(tools, cfg.ToolsMode == openapi2mcp.ModeDynamic, doc)

	var provider auth.Provider = auth.NoopProvider{}
	if len(cfg.Headers) > 0 {
		provider = auth.NewStaticProvider(cfg.Headers)
	}

	usesCookies := false
	for _, t := range tools {
		for _, pm := range t.ParametersMeta {
			if pm.Location == openapi2mcp.LocationCookie {
				usesCookies = true
			}
		}
	}

	client := executor.NewClient(usesCookies)
	serverName := "openapi-mcp-bridge"
	server := mcpserver.NewServer(registry, client, cfg.APIBaseURL, provider, serverName, serverVersion)

	switch cfg.Transport {
	case "http":
		err = serveHTTP(cfg, server)
	default:
		err = serveStdio(cfg, server)
	}
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

func loadAndSynthesise(cfg *config.Config) (*openapi2mcp.Document, []*openapi2mcp.Tool, error) {
	ctx := context.Background()
	source := specSource(cfg)

	doc, err := openapi2mcp.LoadSpec(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	openapi2mcp.OptimizeSpec(doc)

	allTools, err := openapi2mcp.SynthesiseTools(doc, openapi2mcp.SynthesisOptions{DisableAbbreviation: cfg.DisableAbbreviation})
	if err != nil {
		return nil, nil, err
	}

	for _, problem := range openapi2mcp.LintTools(allTools) {
		log.Printf("schema lint: %s", problem)
	}

	filtered := openapi2mcp.FilterTools(allTools, openapi2mcp.FilterOptions{
		Mode:              cfg.ToolsMode,
		IncludeTools:      cfg.Tool,
		IncludeOperations: cfg.Operation,
		IncludeResources:  cfg.Resource,
		IncludeTags:       cfg.Tag,
	})

	docWithTools := &openapi2mcp.Document{Doc: doc, AllTools: allTools}
	return docWithTools, filtered, nil
}

func specSource(cfg *config.Config) openapi2mcp.Source {
	switch {
	case cfg.SpecFromStdin:
		return openapi2mcp.Source{Kind: openapi2mcp.SourceStdin}
	case cfg.SpecInline != "":
		return openapi2mcp.Source{Kind: openapi2mcp.SourceInline, Value: cfg.SpecInline}
	default:
		if isURL(cfg.OpenAPISpec) {
			return openapi2mcp.Source{Kind: openapi2mcp.SourceURL, Value: cfg.OpenAPISpec}
		}
		return openapi2mcp.Source{Kind: openapi2mcp.SourceFile, Value: cfg.OpenAPISpec}
	}
}

func isURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

func serveStdio(cfg *config.Config, server *mcpserver.Server) error {
	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Interactive {
		return stdiotransport.ServeInteractive(ctx, server, os.Stdout)
	}
	return stdiotransport.Serve(ctx, server, os.Stdin, os.Stdout)
}

func serveHTTP(cfg *config.Config, server *mcpserver.Server) error {
	transport := httptransport.New(server, httptransport.Options{
		Path:    cfg.Path,
		IdleTTL: cfg.SessionTTL,
	})
	defer transport.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: transport}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	serverErrors := make(chan error, 1)

	go func() {
		log.Printf("listening on %s%s", addr, cfg.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return mcperr.Wrap(mcperr.Internal, err, "http server failed")
	case sig := <-quit:
		log.Printf("received signal %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return mcperr.Wrap(mcperr.Internal, err, "graceful shutdown failed")
		}
		return nil
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
