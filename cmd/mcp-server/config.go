package main

import (
	"fmt"
	"os"

	"github.com/Togather-Foundation/eventproxy/internal/config"
	"github.com/Togather-Foundation/eventproxy/internal/mcp"
)

// MCPConfig extends the proxy configuration with MCP server settings.
type MCPConfig struct {
	Base config.Config

	MCP MCPServerConfig

	Transport *mcp.TransportConfig
}

// MCPServerConfig is the identity reported during MCP initialization.
type MCPServerConfig struct {
	Name    string
	Version string
}

// LoadConfig reads the proxy configuration (CONFIG_FILE, if set, then the
// environment) plus:
//   - MCP_SERVER_NAME (default "eventproxy")
//   - MCP_SERVER_VERSION (default: the build version)
//   - MCP_TRANSPORT, MCP_PORT, MCP_HOST
func LoadConfig() (*MCPConfig, error) {
	base, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	transport, err := mcp.LoadTransportConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load transport config: %w", err)
	}

	return &MCPConfig{
		Base: base,
		MCP: MCPServerConfig{
			Name:    getEnv("MCP_SERVER_NAME", "eventproxy"),
			Version: getEnv("MCP_SERVER_VERSION", Version),
		},
		Transport: transport,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
