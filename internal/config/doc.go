// Package config loads the callflow configuration from YAML, .env and
// CALLFLOW_* environment variables.
package config
