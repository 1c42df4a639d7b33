// Package config handles configuration loading for agentbus.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from AGENTBUS_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/agentbus/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AGENTBUS_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"    # WebSocket bus and HTTP API
//	  origin_patterns:             # Allowed WebSocket origins
//	    - "app.example.com"
//	  shutdown_timeout: "10s"
//
// Database:
//
//	database:
//	  path: "/var/lib/agentbus/directory.db"
//
// Authentication (optional; empty jwt_secret disables auth):
//
//	auth:
//	  jwt_secret: "${AGENTBUS_JWT_SECRET}"
//	  token_ttl: "24h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/agentbus/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
