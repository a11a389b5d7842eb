// Package config loads coordinator and storage node settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied on top by the
// entry points, which call Validate last.
//
// Environment variables:
//
//	COORDINATOR_PORT, COORDINATOR_REPLICATION, COORDINATOR_TIMEOUT,
//	COORDINATOR_REBALANCE, COORDINATOR_ADMIN_ADDR,
//	COORDINATOR_CLIENT_RATE, COORDINATOR_CLIENT_BURST
//	NODE_PORT, COORDINATOR_ADDR, NODE_ADVERTISE, NODE_TIMEOUT, NODE_DIR,
//	NODE_JOIN_ATTEMPTS
//	REPLISTORE_LOG_LEVEL (both processes)
//
// Durations accept Go syntax ("1500ms", "2s") or a bare number of
// milliseconds.
package config
