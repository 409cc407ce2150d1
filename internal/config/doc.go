// Package config loads flowreader's TOML configuration.
//
// # Configuration Discovery
//
// Load resolves the file in this order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/flowreader/config.toml
//  3. If the file does not exist, fall back to defaults
//
// # Fields
//
//	server           = "http://127.0.0.1:8080"  # reader server base URL
//	session          = ""                       # session_id cookie value
//	page_size        = 50                       # articles per page
//	reconnect_delay  = "5s"                     # wait before redialing the event stream
//	request_timeout  = "30s"                    # bound on every REST call
//	resync_interval  = "5m"                     # fallback counter poll
//	log_file         = "~/.local/state/flowreader/flowreader.log"
//	log_level        = "info"                   # debug, info, warn, error
//
// Durations use Go duration syntax. Missing or non-positive values fall back
// to the defaults above. Paths beginning with ~ are expanded against the
// user's home directory.
package config
