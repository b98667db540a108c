// Package config handles configuration loading for awal-relay.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${AWAL_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:3001"   # API and agent websocket endpoint
//
// Database:
//
//	database:
//	  path: ":memory:"            # transcript store; in-memory by default
//
// Chat timing:
//
//	chat:
//	  reply_timeout: "2m"         # default deadline for an agent reply
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/awal/relay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
