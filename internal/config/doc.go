// Package config handles configuration loading for switchboard.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SWITCHBOARD_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/switchboard/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SWITCHBOARD_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	routing:
//	  sweep_interval: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # widget API, webhook, cron
//
// Database:
//
//	database:
//	  path: "/var/lib/switchboard/switchboard.db"
//
// Routing engine:
//
//	routing:
//	  sweep_interval: "10s"   # pending-agent timeout sweep cadence
//	  claim_emoji: "✅"       # reaction that counts as a claim
//
// Agent platform:
//
//	platform:
//	  matrix:
//	    enabled: true
//	    homeserver: "https://matrix.example.org"
//	    user_id: "@switchboard:example.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	    agent_room: "!agents:example.org"
//
// Realtime transports:
//
//	realtime:
//	  amqp:
//	    enabled: false
//	    url: "${AMQP_URL}"
//	    exchange: "switchboard.events"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${SWITCHBOARD_JWT_SECRET}"       # widget session tokens
//	  webhook_secret: "${SWITCHBOARD_HOOK_SECRET}"  # platform delivery HMAC
//	  cron_token: "${SWITCHBOARD_CRON_TOKEN}"       # guards /cron/sweep
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
//	cfg, err := config.Load("/etc/switchboard/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
