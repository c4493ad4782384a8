// Package config loads and validates fleet node configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Engines never read
// the file directly: Handle holds an immutable *Config snapshot that the file
// watcher swaps atomically on change, so a reconciliation pass always sees
// one consistent configuration from start to finish.
package config
