// Package config handles configuration loading for coven-handoff.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Files ending in .toml are decoded as TOML; anything else is YAML.
// Defaults are applied before the file is decoded, so omitted keys keep them.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_HANDOFF_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/handoff.yaml
//  3. ~/.config/coven/handoff.yaml
//
// # Environment Variable Expansion
//
//	matrix:
//	  access_token: "${MATRIX_ACCESS_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Example
//
//	broker:
//	  agents:
//	    - id: "@alice:example.org"
//	      name: "Alice"
//	  selection: true
//	  shared_blacklist: true
//	  conversation_timeout: "30m"   # empty or "0" means unlimited
//	  warning_window: "2m"
//	  queue_timeout: "1h"
//
//	matrix:
//	  homeserver: "https://matrix.example.org"
//	  user_id: "@handoff:example.org"
//	  access_token: "${MATRIX_ACCESS_TOKEN}"
//	  device_id: "HANDOFFBOT"
//	  allowed_rooms: ["!support:example.org"]
//	  command_prefix: "/"
//	  encryption:
//	    enabled: true
//	    recovery_key: "${MATRIX_RECOVERY_KEY}"
//
//	server:
//	  http_addr: "127.0.0.1:8095"
//
//	database:
//	  path: "/var/lib/coven/handoff.db"   # empty disables the ledger
//	  record_messages: false
//
//	auth:
//	  jwt_secret: "${COVEN_HANDOFF_JWT_SECRET}"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b, err := broker.New(cfg.BrokerSettings(), broker.Options{})
package config
